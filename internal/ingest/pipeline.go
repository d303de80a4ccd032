// Package ingest orchestrates webhook uplink ingestion: signature check,
// payload parsing, per-device throttling, status classification, atomic
// persistence, and best-effort alert notification.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flood-watch-service/internal/domain"
	"github.com/couchcryptid/flood-watch-service/internal/observability"
	"github.com/couchcryptid/flood-watch-service/internal/signature"
)

// ErrUnauthorized is returned on signature verification failure. It is
// deliberately opaque: callers learn nothing beyond "invalid signature".
var ErrUnauthorized = errors.New("invalid signature")

// Outcome distinguishes the two non-error ingestion results.
type Outcome string

const (
	OutcomeAccepted  Outcome = "ok"
	OutcomeThrottled Outcome = "throttled"
)

// Result reports what an accepted (or throttled) uplink produced.
type Result struct {
	Outcome      Outcome
	DeviceID     string
	Status       domain.Status
	WaterLevelCm float64
	Transitioned bool
}

// DeviceStore is the persistence collaborator. CommitReading must apply the
// device upsert, the reading insert, and the optional alert insert as one
// atomic batch: readers never observe a snapshot without its reading, nor a
// transition without its alert.
type DeviceStore interface {
	LoadDevice(ctx context.Context, deviceID string) (domain.DeviceState, bool, error)
	CommitReading(ctx context.Context, device domain.DeviceState, reading domain.SensorReading, alert *domain.AlertEvent) error
}

// Notification is the payload handed to the dispatch collaborator when a
// device escalates to ALERT.
type Notification struct {
	DeviceID     string        `json:"deviceId"`
	DeviceName   string        `json:"deviceName,omitempty"`
	Title        string        `json:"title"`
	Body         string        `json:"body"`
	Status       domain.Status `json:"status"`
	WaterLevelCm float64       `json:"waterLevelCm"`
	TriggeredAt  time.Time     `json:"triggeredAt"`
}

// Notifier dispatches a push notification to the broadcast topic. Delivery
// is fire-and-forget from the pipeline's perspective.
type Notifier interface {
	NotifyAlert(ctx context.Context, n Notification) error
}

// ThrottleCache is the per-device dedupe gate. The default implementation is
// in-process and best-effort; a shared store can be swapped in when stronger
// guarantees are needed.
type ThrottleCache interface {
	// LastAccepted returns the last accepted wall-clock time for a device,
	// or false when none is cached.
	LastAccepted(ctx context.Context, deviceID string) (time.Time, bool, error)
	// MarkAccepted records an accepted uplink. The entry may be dropped
	// after ttl.
	MarkAccepted(ctx context.Context, deviceID string, at time.Time, ttl time.Duration) error
}

// DeviceDefaults seed the state of a device on its first uplink.
type DeviceDefaults struct {
	MountHeightCm float64
	Thresholds    domain.Thresholds
}

// Pipeline ingests raw webhook bodies end to end.
type Pipeline struct {
	store    DeviceStore
	notifier Notifier
	throttle ThrottleCache
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	secret           string
	throttleInterval time.Duration
	defaults         DeviceDefaults
}

// New creates a Pipeline. An empty secret disables signature verification; a
// nil notifier disables dispatch.
func New(store DeviceStore, notifier Notifier, throttle ThrottleCache, clock clockwork.Clock,
	logger *slog.Logger, metrics *observability.Metrics,
	secret string, throttleInterval time.Duration, defaults DeviceDefaults) *Pipeline {
	return &Pipeline{
		store:            store,
		notifier:         notifier,
		throttle:         throttle,
		clock:            clock,
		logger:           logger,
		metrics:          metrics,
		secret:           secret,
		throttleInterval: throttleInterval,
		defaults:         defaults,
	}
}

// Ingest processes one webhook delivery. Error taxonomy, all distinguishable
// by the caller:
//   - ErrUnauthorized: signature verification failed (no side effects)
//   - *domain.ValidationError: payload rejected with a reason (no side effects)
//   - any other error: persistence failure, nothing partially visible
//
// A throttled uplink is not an error: the Result carries OutcomeThrottled
// and nothing was persisted.
func (p *Pipeline) Ingest(ctx context.Context, body []byte, providedSignature string) (Result, error) {
	start := p.clock.Now()
	p.metrics.UplinksReceived.Inc()

	if p.secret != "" && !signature.Verify(body, providedSignature, p.secret) {
		p.metrics.UplinksRejected.WithLabelValues("unauthorized").Inc()
		return Result{}, ErrUnauthorized
	}

	reading, err := domain.ParseUplink(body, start)
	if err != nil {
		p.metrics.UplinksRejected.WithLabelValues("validation").Inc()
		return Result{}, err
	}

	throttled, err := p.withinThrottleWindow(ctx, reading.DeviceID, start)
	if err != nil {
		// A broken cache must not drop telemetry; admit and move on.
		p.logger.Warn("throttle cache lookup failed", "device_id", reading.DeviceID, "error", err)
	}
	if throttled {
		p.metrics.UplinksThrottled.Inc()
		return Result{Outcome: OutcomeThrottled, DeviceID: reading.DeviceID}, nil
	}

	device, found, err := p.store.LoadDevice(ctx, reading.DeviceID)
	if err != nil {
		p.metrics.UplinksRejected.WithLabelValues("internal").Inc()
		return Result{}, fmt.Errorf("load device %s: %w", reading.DeviceID, err)
	}
	if !found {
		device = domain.DeviceState{
			DeviceID:      reading.DeviceID,
			MountHeightCm: p.defaults.MountHeightCm,
			Thresholds:    p.defaults.Thresholds,
			Status:        domain.StatusOK,
			PrevStatus:    domain.StatusOK,
		}
	}

	// The device's own mount height is authoritative; a device-reported
	// water level is ignored once a distance measurement is present.
	reading.WaterLevelCm = domain.ComputeWaterLevel(device.MountHeightCm, reading.DistanceCm)
	reading.Status = domain.ClassifyStatus(reading.WaterLevelCm, device.Thresholds)

	transitioned := reading.Status != device.Status
	var alert *domain.AlertEvent
	if transitioned {
		alert = &domain.AlertEvent{
			DeviceID:     device.DeviceID,
			DeviceName:   device.Name,
			FromStatus:   device.Status,
			ToStatus:     reading.Status,
			WaterLevelCm: reading.WaterLevelCm,
			TriggeredAt:  start,
		}
	}

	device.PrevStatus = device.Status
	device.Status = reading.Status
	device.LastSeen = start

	if err := p.store.CommitReading(ctx, device, reading, alert); err != nil {
		p.metrics.UplinksRejected.WithLabelValues("internal").Inc()
		return Result{}, fmt.Errorf("commit reading for %s: %w", reading.DeviceID, err)
	}

	// The throttle entry is committed only after a successful persist, so a
	// failed commit retried inside the window is not falsely suppressed.
	if err := p.throttle.MarkAccepted(ctx, reading.DeviceID, start, p.throttleInterval); err != nil {
		p.logger.Warn("throttle cache write failed", "device_id", reading.DeviceID, "error", err)
	}

	p.metrics.UplinksAccepted.Inc()
	if alert != nil {
		p.metrics.AlertsCreated.Inc()
	}
	if reading.Status == domain.StatusAlert {
		p.dispatchAlert(ctx, device, reading)
	}

	p.metrics.IngestDuration.Observe(p.clock.Since(start).Seconds())
	return Result{
		Outcome:      OutcomeAccepted,
		DeviceID:     reading.DeviceID,
		Status:       reading.Status,
		WaterLevelCm: reading.WaterLevelCm,
		Transitioned: transitioned,
	}, nil
}

func (p *Pipeline) withinThrottleWindow(ctx context.Context, deviceID string, now time.Time) (bool, error) {
	last, ok, err := p.throttle.LastAccepted(ctx, deviceID)
	if err != nil {
		return false, err
	}
	return ok && now.Sub(last) < p.throttleInterval, nil
}

// dispatchAlert is advisory: a failure is logged and swallowed, never
// failing the ingestion that triggered it.
func (p *Pipeline) dispatchAlert(ctx context.Context, device domain.DeviceState, reading domain.SensorReading) {
	if p.notifier == nil {
		return
	}

	name := device.Name
	if name == "" {
		name = device.DeviceID
	}
	n := Notification{
		DeviceID:     device.DeviceID,
		DeviceName:   device.Name,
		Title:        "Flood alert",
		Body:         fmt.Sprintf("%s water level at %.1f cm", name, reading.WaterLevelCm),
		Status:       reading.Status,
		WaterLevelCm: reading.WaterLevelCm,
		TriggeredAt:  device.LastSeen,
	}
	if err := p.notifier.NotifyAlert(ctx, n); err != nil {
		p.metrics.NotifyFailures.Inc()
		p.logger.Warn("alert notification dispatch failed", "device_id", device.DeviceID, "error", err)
	}
}
