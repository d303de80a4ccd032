package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-watch-service/internal/domain"
	"github.com/couchcryptid/flood-watch-service/internal/observability"
	"github.com/couchcryptid/flood-watch-service/internal/signature"
)

type committed struct {
	device  domain.DeviceState
	reading domain.SensorReading
	alert   *domain.AlertEvent
}

type mockStore struct {
	devices   map[string]domain.DeviceState
	commits   []committed
	loadErr   error
	commitErr error
}

func newMockStore() *mockStore {
	return &mockStore{devices: make(map[string]domain.DeviceState)}
}

func (m *mockStore) LoadDevice(_ context.Context, deviceID string) (domain.DeviceState, bool, error) {
	if m.loadErr != nil {
		return domain.DeviceState{}, false, m.loadErr
	}
	d, ok := m.devices[deviceID]
	return d, ok, nil
}

func (m *mockStore) CommitReading(_ context.Context, device domain.DeviceState, reading domain.SensorReading, alert *domain.AlertEvent) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.devices[device.DeviceID] = device
	m.commits = append(m.commits, committed{device: device, reading: reading, alert: alert})
	return nil
}

type mockNotifier struct {
	sent []Notification
	err  error
}

func (m *mockNotifier) NotifyAlert(_ context.Context, n Notification) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, n)
	return nil
}

type failingThrottle struct {
	lookupErr error
}

func (f *failingThrottle) LastAccepted(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, f.lookupErr
}

func (f *failingThrottle) MarkAccepted(context.Context, string, time.Time, time.Duration) error {
	return nil
}

var testDefaults = DeviceDefaults{
	MountHeightCm: 200,
	Thresholds:    domain.Thresholds{WarnCm: 30, AlertCm: 60},
}

func uplinkBody(deviceID string, distanceCm float64) []byte {
	return []byte(fmt.Sprintf(
		`{"end_device_ids":{"device_id":"%s"},"uplink_message":{"decoded_payload":{"distanceCm":%g,"batteryV":3.6}}}`,
		deviceID, distanceCm))
}

type pipelineHarness struct {
	pipeline *Pipeline
	store    *mockStore
	notifier *mockNotifier
	clock    *clockwork.FakeClock
}

func newHarness(t *testing.T) *pipelineHarness {
	t.Helper()
	store := newMockStore()
	notifier := &mockNotifier{}
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(store, notifier, NewMemoryThrottle(clock), clock, logger,
		observability.NewMetricsForTesting(), "", 4*time.Second, testDefaults)
	return &pipelineHarness{pipeline: p, store: store, notifier: notifier, clock: clock}
}

func TestIngest_AcceptsAndClassifies(t *testing.T) {
	h := newHarness(t)

	// mount 200, distance 160 -> level 40 -> WARN.
	res, err := h.pipeline.Ingest(context.Background(), uplinkBody("river-01", 160), "")
	require.NoError(t, err)

	assert.Equal(t, OutcomeAccepted, res.Outcome)
	assert.Equal(t, "river-01", res.DeviceID)
	assert.Equal(t, domain.StatusWarn, res.Status)
	assert.Equal(t, 40.0, res.WaterLevelCm)
	assert.True(t, res.Transitioned, "fresh device starts OK, WARN is a transition")

	require.Len(t, h.store.commits, 1)
	commit := h.store.commits[0]
	assert.Equal(t, domain.StatusWarn, commit.device.Status)
	assert.Equal(t, domain.StatusOK, commit.device.PrevStatus)
	assert.Equal(t, h.clock.Now(), commit.device.LastSeen)
	assert.Equal(t, 200.0, commit.device.MountHeightCm, "unknown device seeded from defaults")
	require.NotNil(t, commit.alert)
	assert.Equal(t, domain.StatusOK, commit.alert.FromStatus)
	assert.Equal(t, domain.StatusWarn, commit.alert.ToStatus)

	assert.Empty(t, h.notifier.sent, "WARN does not dispatch a push")
}

func TestIngest_NoAlertWithoutTransition(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipeline.Ingest(context.Background(), uplinkBody("river-01", 160), "")
	require.NoError(t, err)
	h.clock.Advance(5 * time.Second)

	res, err := h.pipeline.Ingest(context.Background(), uplinkBody("river-01", 165), "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWarn, res.Status)
	assert.False(t, res.Transitioned)

	require.Len(t, h.store.commits, 2)
	assert.Nil(t, h.store.commits[1].alert, "steady WARN creates no alert event")
}

func TestIngest_AlertDispatchesNotification(t *testing.T) {
	h := newHarness(t)

	// mount 200, distance 130 -> level 70 -> ALERT.
	res, err := h.pipeline.Ingest(context.Background(), uplinkBody("river-01", 130), "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAlert, res.Status)

	require.Len(t, h.notifier.sent, 1)
	n := h.notifier.sent[0]
	assert.Equal(t, "river-01", n.DeviceID)
	assert.Equal(t, domain.StatusAlert, n.Status)
	assert.Equal(t, 70.0, n.WaterLevelCm)

	// A later ALERT reading without a transition still dispatches.
	h.clock.Advance(5 * time.Second)
	res, err = h.pipeline.Ingest(context.Background(), uplinkBody("river-01", 128), "")
	require.NoError(t, err)
	assert.False(t, res.Transitioned)
	assert.Len(t, h.notifier.sent, 2)
}

func TestIngest_NotifierFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("broker unreachable")

	res, err := h.pipeline.Ingest(context.Background(), uplinkBody("river-01", 130), "")
	require.NoError(t, err, "dispatch failure never fails the ingestion")
	assert.Equal(t, OutcomeAccepted, res.Outcome)
	assert.Len(t, h.store.commits, 1)
}

func TestIngest_Throttling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.pipeline.Ingest(ctx, uplinkBody("river-01", 160), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, res.Outcome)

	h.clock.Advance(2 * time.Second)
	res, err = h.pipeline.Ingest(ctx, uplinkBody("river-01", 150), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeThrottled, res.Outcome)
	assert.Equal(t, "river-01", res.DeviceID)
	assert.Len(t, h.store.commits, 1, "throttled uplink is not persisted")

	// Another device is unaffected.
	res, err = h.pipeline.Ingest(ctx, uplinkBody("river-02", 160), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, res.Outcome)

	// Past the window the first device is admitted again.
	h.clock.Advance(3 * time.Second)
	res, err = h.pipeline.Ingest(ctx, uplinkBody("river-01", 150), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, res.Outcome)
	assert.Len(t, h.store.commits, 3)
}

func TestIngest_FailedCommitIsNotThrottledOnRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.store.commitErr = errors.New("connection reset")
	_, err := h.pipeline.Ingest(ctx, uplinkBody("river-01", 160), "")
	require.Error(t, err)

	// Immediate retry inside the window must not be suppressed: the throttle
	// entry is only written after a successful persist.
	h.store.commitErr = nil
	h.clock.Advance(time.Second)
	res, err := h.pipeline.Ingest(ctx, uplinkBody("river-01", 160), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, res.Outcome)
	assert.Len(t, h.store.commits, 1)
}

func TestIngest_ThrottleLookupFailureAdmits(t *testing.T) {
	h := newHarness(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(h.store, h.notifier, &failingThrottle{lookupErr: errors.New("redis down")},
		h.clock, logger, observability.NewMetricsForTesting(), "", 4*time.Second, testDefaults)

	res, err := p.Ingest(context.Background(), uplinkBody("river-01", 160), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, res.Outcome)
}

func TestIngest_SignatureVerification(t *testing.T) {
	h := newHarness(t)
	secret := "hook-secret"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(h.store, h.notifier, NewMemoryThrottle(h.clock), h.clock, logger,
		observability.NewMetricsForTesting(), secret, 4*time.Second, testDefaults)
	body := uplinkBody("river-01", 160)

	t.Run("missing signature", func(t *testing.T) {
		_, err := p.Ingest(context.Background(), body, "")
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Empty(t, h.store.commits)
	})

	t.Run("wrong signature", func(t *testing.T) {
		_, err := p.Ingest(context.Background(), body, signature.Sign(body, "other"))
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("valid signature", func(t *testing.T) {
		res, err := p.Ingest(context.Background(), body, signature.Sign(body, secret))
		require.NoError(t, err)
		assert.Equal(t, OutcomeAccepted, res.Outcome)
	})
}

func TestIngest_ValidationErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipeline.Ingest(context.Background(), []byte(`{"end_device_ids":{}}`), "")
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Empty(t, h.store.commits)
}

func TestIngest_KnownDeviceConfigWins(t *testing.T) {
	h := newHarness(t)
	h.store.devices["river-01"] = domain.DeviceState{
		DeviceID:      "river-01",
		Name:          "Quebrada Norte",
		MountHeightCm: 300,
		Thresholds:    domain.Thresholds{WarnCm: 100, AlertCm: 150},
		Status:        domain.StatusOK,
		PrevStatus:    domain.StatusOK,
	}

	// mount 300, distance 160 -> level 140: WARN under device thresholds,
	// would be ALERT under the defaults.
	res, err := h.pipeline.Ingest(context.Background(), uplinkBody("river-01", 160), "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWarn, res.Status)
	assert.Equal(t, 140.0, res.WaterLevelCm)
}

func TestMemoryThrottle_Expiry(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC))
	m := NewMemoryThrottle(clock)
	ctx := context.Background()

	_, ok, err := m.LastAccepted(ctx, "river-01")
	require.NoError(t, err)
	assert.False(t, ok)

	at := clock.Now()
	require.NoError(t, m.MarkAccepted(ctx, "river-01", at, 4*time.Second))

	got, ok, err := m.LastAccepted(ctx, "river-01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, at, got)

	clock.Advance(5 * time.Second)
	_, ok, err = m.LastAccepted(ctx, "river-01")
	require.NoError(t, err)
	assert.False(t, ok, "entry expires after its ttl")
}
