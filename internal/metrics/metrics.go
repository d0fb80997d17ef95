package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UsageEventsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lmabridge_usage_events_recorded_total",
		Help: "Usage events attributed to a known token and recorded.",
	})

	UsageEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lmabridge_usage_events_dropped_total",
		Help: "Usage events silently dropped because the token was unknown.",
	})

	PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lmabridge_store_persist_failures_total",
		Help: "Failed durable rewrites of the store file.",
	})

	GeoLookupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lmabridge_geo_lookup_failures_total",
		Help: "Geo lookups that degraded to the Unknown country.",
	})

	TokensCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lmabridge_tokens_created_total",
		Help: "Bearer tokens issued.",
	})
)
