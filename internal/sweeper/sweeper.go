// Package sweeper deletes expired reading and alert records on a fixed
// schedule. Retention is advisory cleanup, not a correctness boundary: a
// record may still be read between expiring and being deleted.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flood-watch-service/internal/observability"
)

// RetentionStore deletes up to limit records whose expiry timestamp has
// passed, as one atomic batch, returning the number deleted.
type RetentionStore interface {
	DeleteExpiredReadings(ctx context.Context, now time.Time, limit int) (int, error)
	DeleteExpiredAlerts(ctx context.Context, now time.Time, limit int) (int, error)
}

// Sweeper runs the retention sweep loop.
type Sweeper struct {
	store     RetentionStore
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	interval  time.Duration
	batchSize int
}

// New creates a Sweeper that sweeps every interval in batches of batchSize.
func New(store RetentionStore, clock clockwork.Clock, logger *slog.Logger,
	metrics *observability.Metrics, interval time.Duration, batchSize int) *Sweeper {
	return &Sweeper{
		store:     store,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run sweeps once immediately, then on every tick until the context is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("retention sweeper started", "interval", s.interval, "batch_size", s.batchSize)

	s.SweepOnce(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention sweeper stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce sweeps both collections and returns the deleted counts. Each
// batch commits independently, so an interrupted sweep never loses partial
// progress and re-running is idempotent. A failed batch aborts only that
// collection's sweep for this run.
func (s *Sweeper) SweepOnce(ctx context.Context) (readings, alerts int) {
	readings = s.sweepCollection(ctx, "readings", s.store.DeleteExpiredReadings)
	alerts = s.sweepCollection(ctx, "alerts", s.store.DeleteExpiredAlerts)
	if readings > 0 || alerts > 0 {
		s.logger.Info("retention sweep complete", "readings_deleted", readings, "alerts_deleted", alerts)
	}
	return readings, alerts
}

func (s *Sweeper) sweepCollection(ctx context.Context, name string,
	deleteBatch func(context.Context, time.Time, int) (int, error)) int {
	total := 0
	for {
		n, err := deleteBatch(ctx, s.clock.Now(), s.batchSize)
		if err != nil {
			s.metrics.SweepFailures.WithLabelValues(name).Inc()
			s.logger.Error("retention sweep batch failed", "collection", name, "deleted_so_far", total, "error", err)
			return total
		}
		total += n
		s.metrics.SweepDeleted.WithLabelValues(name).Add(float64(n))
		if n < s.batchSize {
			return total
		}
	}
}
