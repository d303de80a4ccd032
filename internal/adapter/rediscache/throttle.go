// Package rediscache implements the ingestion throttle cache on Redis, for
// deployments running several instances that want cross-instance dedupe
// instead of the default per-process best-effort gate.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Throttle implements ingest.ThrottleCache on a Redis key per device with a
// TTL. Two concurrent accepts can still race between GET and SET; the
// throttle is a debounce, not a lock, so that is acceptable.
type Throttle struct {
	client *redis.Client
	prefix string
}

// New creates a Redis-backed throttle cache.
func New(addr string) *Throttle {
	return &Throttle{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: "flood-watch:throttle:",
	}
}

func (t *Throttle) LastAccepted(ctx context.Context, deviceID string) (time.Time, bool, error) {
	val, err := t.client.Get(ctx, t.prefix+deviceID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("throttle get: %w", err)
	}

	millis, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("throttle entry corrupt: %w", err)
	}
	return time.UnixMilli(millis), true, nil
}

func (t *Throttle) MarkAccepted(ctx context.Context, deviceID string, at time.Time, ttl time.Duration) error {
	if err := t.client.Set(ctx, t.prefix+deviceID, strconv.FormatInt(at.UnixMilli(), 10), ttl).Err(); err != nil {
		return fmt.Errorf("throttle set: %w", err)
	}
	return nil
}

// Ping checks connectivity at startup.
func (t *Throttle) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Close releases the underlying connections.
func (t *Throttle) Close() error {
	return t.client.Close()
}
