package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-watch-service/internal/observability"
)

// fakeRetentionStore hands out batch counts from a queue per collection. A
// negative count means that batch fails. Safe for use from the Run loop
// goroutine.
type fakeRetentionStore struct {
	mu             sync.Mutex
	readingBatches []int
	alertBatches   []int
	readingCalls   int
	alertCalls     int
}

func (f *fakeRetentionStore) DeleteExpiredReadings(_ context.Context, _ time.Time, _ int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readingCalls++
	return nextBatch(&f.readingBatches)
}

func (f *fakeRetentionStore) DeleteExpiredAlerts(_ context.Context, _ time.Time, _ int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alertCalls++
	return nextBatch(&f.alertBatches)
}

func (f *fakeRetentionStore) calls() (readings, alerts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readingCalls, f.alertCalls
}

func nextBatch(queue *[]int) (int, error) {
	if len(*queue) == 0 {
		return 0, nil
	}
	n := (*queue)[0]
	*queue = (*queue)[1:]
	if n < 0 {
		return 0, errors.New("delete failed")
	}
	return n, nil
}

func newSweeper(store RetentionStore) *Sweeper {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, clock, logger, observability.NewMetricsForTesting(), time.Hour, 500)
}

func TestSweepOnce_DrainsFullBatches(t *testing.T) {
	// Two full batches then a partial one: the loop keeps going until a
	// batch comes back short.
	store := &fakeRetentionStore{
		readingBatches: []int{500, 500, 120},
		alertBatches:   []int{42},
	}

	readings, alerts := newSweeper(store).SweepOnce(context.Background())

	assert.Equal(t, 1120, readings)
	assert.Equal(t, 42, alerts)
	readingCalls, alertCalls := store.calls()
	assert.Equal(t, 3, readingCalls)
	assert.Equal(t, 1, alertCalls)
}

func TestSweepOnce_NothingExpired(t *testing.T) {
	store := &fakeRetentionStore{}
	readings, alerts := newSweeper(store).SweepOnce(context.Background())
	assert.Zero(t, readings)
	assert.Zero(t, alerts)
}

func TestSweepOnce_FailureIsIsolatedPerCollection(t *testing.T) {
	store := &fakeRetentionStore{
		readingBatches: []int{500, -1},
		alertBatches:   []int{7},
	}

	readings, alerts := newSweeper(store).SweepOnce(context.Background())

	assert.Equal(t, 500, readings, "progress before the failed batch is kept")
	assert.Equal(t, 7, alerts, "alert sweep still runs after readings fail")
}

func TestRun_SweepsImmediatelyAndOnTicks(t *testing.T) {
	store := &fakeRetentionStore{}
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(store, clock, logger, observability.NewMetricsForTesting(), time.Hour, 500)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	// The immediate sweep happens before the loop blocks on the ticker.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	readingCalls, _ := store.calls()
	assert.Equal(t, 1, readingCalls, "one sweep before the first tick")

	clock.Advance(time.Hour)
	assert.Eventually(t, func() bool {
		n, _ := store.calls()
		return n == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}
