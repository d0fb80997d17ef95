package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SaddoSenpai/LMArenaBridge/internal/config"
	"github.com/SaddoSenpai/LMArenaBridge/internal/metrics"
)

const (
	// CountryLocal is reported for loopback addresses without a remote call.
	CountryLocal = "Local"
	// CountryUnknown is reported whenever resolution fails or times out.
	CountryUnknown = "Unknown"

	redisKeyPrefix = "geo:country:"
)

// Resolver maps an IP address to a country name. Implementations never return
// an error: resolution failures degrade to CountryUnknown so that usage
// recording cannot stall or fail on geolocation unavailability.
type Resolver interface {
	Country(ctx context.Context, ip string) string
}

// Client resolves countries through an ip-api style endpoint. Successful
// lookups are cached in process and, when configured, in a shared Redis cache
// so that restarts and replicas do not re-query the same addresses.
type Client struct {
	endpoint string
	http     *http.Client
	local    *gocache.Cache
	redis    *redis.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

func NewClient(cfg *config.GeoConfig, logger *zap.Logger) *Client {
	c := &Client{
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: cfg.Timeout},
		local:    gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		cacheTTL: cfg.CacheTTL,
		logger:   logger.Named("GeoResolver"),
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			c.logger.Warn("Redis unavailable, geo lookups cached in process only", zap.Error(err))
			_ = client.Close()
		} else {
			c.logger.Info("Using shared Redis cache for geo lookups", zap.String("addr", cfg.Redis.Addr))
			c.redis = client
		}
	}

	return c
}

// Country resolves ip to a country name. Loopback and localhost map straight
// to CountryLocal; anything unresolvable maps to CountryUnknown.
func (c *Client) Country(ctx context.Context, ip string) string {
	if isLocal(ip) {
		return CountryLocal
	}

	if country, found := c.local.Get(ip); found {
		return country.(string)
	}

	if c.redis != nil {
		if country, err := c.redis.Get(ctx, redisKeyPrefix+ip).Result(); err == nil {
			c.local.SetDefault(ip, country)
			return country
		}
	}

	country, err := c.query(ctx, ip)
	if err != nil {
		metrics.GeoLookupFailures.Inc()
		c.logger.Debug("Geo lookup failed", zap.String("ip", ip), zap.Error(err))
		return CountryUnknown
	}

	c.local.SetDefault(ip, country)
	if c.redis != nil {
		if err := c.redis.Set(ctx, redisKeyPrefix+ip, country, c.cacheTTL).Err(); err != nil {
			c.logger.Debug("Failed to cache geo lookup in Redis", zap.String("ip", ip), zap.Error(err))
		}
	}
	return country
}

func (c *Client) query(ctx context.Context, ip string) (string, error) {
	url := fmt.Sprintf("%s/%s?fields=country", c.endpoint, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build geo request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("geo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geo endpoint returned status %d", resp.StatusCode)
	}

	var payload struct {
		Country string `json:"country"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode geo response: %w", err)
	}
	if payload.Country == "" {
		return CountryUnknown, nil
	}
	return payload.Country, nil
}

func isLocal(ip string) bool {
	if ip == "localhost" {
		return true
	}
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}
