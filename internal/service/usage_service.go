package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/SaddoSenpai/LMArenaBridge/internal/domain/token"
	"github.com/SaddoSenpai/LMArenaBridge/internal/geo"
	"github.com/SaddoSenpai/LMArenaBridge/internal/ierr"
	"github.com/SaddoSenpai/LMArenaBridge/internal/metrics"
	"github.com/SaddoSenpai/LMArenaBridge/internal/storage/jsonfile"
)

// UsageService ingests usage events and answers the analytics queries.
type UsageService struct {
	store    *jsonfile.Store
	resolver geo.Resolver
	logger   *zap.Logger
}

func NewUsageService(store *jsonfile.Store, resolver geo.Resolver, logger *zap.Logger) *UsageService {
	return &UsageService{
		store:    store,
		resolver: resolver,
		logger:   logger.Named("UsageService"),
	}
}

// Record attributes one usage event to the token behind secret. Events for
// unknown secrets are dropped silently: unauthenticated usage must not be
// attributable to any account. Geolocation runs outside the store lock and
// degrades to "Unknown" rather than failing the event. A persistence failure
// is the only reported error.
func (s *UsageService) Record(ctx context.Context, secret, model string, tokensUsed int64, ip string) error {
	// Cheap pre-check so we do not hit the geo endpoint for garbage secrets.
	if _, _, err := s.store.GetBySecret(secret); err != nil {
		metrics.UsageEventsDropped.Inc()
		s.logger.Debug("Dropping usage event for unknown token")
		return nil
	}

	country := s.resolver.Country(ctx, ip)

	err := s.store.RecordUsage(secret, model, tokensUsed, ip, country)
	if errors.Is(err, ierr.ErrTokenNotFound) {
		// Token deleted between the pre-check and the locked update.
		metrics.UsageEventsDropped.Inc()
		s.logger.Debug("Dropping usage event for unknown token")
		return nil
	}
	if err != nil {
		s.logger.Error("Failed to record usage event", zap.Error(err))
		return err
	}

	metrics.UsageEventsRecorded.Inc()
	s.logger.Debug("Usage event recorded",
		zap.String("model", model),
		zap.Int64("tokens_used", tokensUsed),
		zap.String("country", country),
	)
	return nil
}

// Timeline buckets the usage log per calendar day over the last days days.
// A non-empty secret scopes the result to that token.
func (s *UsageService) Timeline(ctx context.Context, secret string, days int) []token.TimelineBucket {
	tokenID := ""
	if secret != "" {
		tokenID = token.DeriveID(secret)
	}
	return s.store.Timeline(tokenID, days)
}

// Recent returns the newest limit usage log entries.
func (s *UsageService) Recent(ctx context.Context, limit int) []token.UsageLogEntry {
	return s.store.RecentUsage(limit)
}

// Stats returns the global stats snapshot.
func (s *UsageService) Stats(ctx context.Context) token.GlobalStats {
	return s.store.GlobalStats()
}
