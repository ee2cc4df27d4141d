package certstore

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var statusLookupDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "certgate_revocation_lookup_duration_ms",
	Help:    "Latency of revocation status lookups in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const revokedSerialKeyPrefix = "crl:serial:"

// RedisStatusCache is a shared revocation marker for distributed
// deployments: every replica sees a revocation as soon as one records
// it, without a round trip to Postgres on the hot path. Entries expire
// together with the certificate, after which the status is moot.
type RedisStatusCache struct {
	client *redis.Client
}

func NewRedisStatusCache(client *redis.Client) *RedisStatusCache {
	return &RedisStatusCache{client: client}
}

// MarkRevoked records a serial as revoked until the certificate's own
// expiry, at which point the key may lapse.
func (c *RedisStatusCache) MarkRevoked(ctx context.Context, serial string, until time.Time) error {
	if serial == "" {
		return nil
	}
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, revokedSerialKeyPrefix+serial, "1", ttl).Err()
}

// IsRevoked reports whether a serial carries a revocation marker.
// A missing key means not revoked (or already expired).
func (c *RedisStatusCache) IsRevoked(ctx context.Context, serial string) (bool, error) {
	start := time.Now()
	defer func() {
		statusLookupDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	if serial == "" {
		return false, nil
	}
	_, err := c.client.Get(ctx, revokedSerialKeyPrefix+serial).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
