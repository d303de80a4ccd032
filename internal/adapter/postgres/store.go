// Package postgres implements the document-store collaborator on PostgreSQL:
// device snapshots keyed by device_id plus append-only readings and alerts,
// each row carrying an explicit expiry timestamp for the retention sweeper.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/flood-watch-service/internal/domain"
)

// Store wraps a pgx pool with the queries this service needs.
type Store struct {
	pool             *pgxpool.Pool
	readingRetention time.Duration
	alertRetention   time.Duration
}

// New creates a Store backed by a pgx pool.
func New(ctx context.Context, databaseURL string, readingRetention, alertRetention time.Duration) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &Store{
		pool:             pool,
		readingRetention: readingRetention,
		alertRetention:   alertRetention,
	}, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks connectivity, used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS devices (
    device_id       TEXT PRIMARY KEY,
    name            TEXT NOT NULL DEFAULT '',
    lat             DOUBLE PRECISION NOT NULL DEFAULT 0,
    lng             DOUBLE PRECISION NOT NULL DEFAULT 0,
    mount_height_cm DOUBLE PRECISION NOT NULL,
    warn_cm         DOUBLE PRECISION NOT NULL,
    alert_cm        DOUBLE PRECISION NOT NULL,
    status          TEXT NOT NULL,
    prev_status     TEXT NOT NULL,
    last_seen       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS readings (
    id             BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    device_id      TEXT NOT NULL,
    ts             TIMESTAMPTZ NOT NULL,
    distance_cm    DOUBLE PRECISION NOT NULL,
    water_level_cm DOUBLE PRECISION NOT NULL,
    battery_v      DOUBLE PRECISION NOT NULL,
    status         TEXT NOT NULL,
    notes          TEXT NOT NULL DEFAULT '',
    rssi           DOUBLE PRECISION,
    snr            DOUBLE PRECISION,
    expires_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS readings_expires_at_idx ON readings (expires_at);
CREATE INDEX IF NOT EXISTS readings_device_ts_idx ON readings (device_id, ts DESC);

CREATE TABLE IF NOT EXISTS alerts (
    id             BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    device_id      TEXT NOT NULL,
    device_name    TEXT NOT NULL DEFAULT '',
    from_status    TEXT NOT NULL,
    to_status      TEXT NOT NULL,
    water_level_cm DOUBLE PRECISION NOT NULL,
    triggered_at   TIMESTAMPTZ NOT NULL,
    acknowledged   BOOLEAN NOT NULL DEFAULT FALSE,
    expires_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS alerts_expires_at_idx ON alerts (expires_at);
`

// Migrate creates the schema when missing. Safe to run on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const loadDeviceSQL = `
    SELECT device_id, name, lat, lng, mount_height_cm, warn_cm, alert_cm, status, prev_status, last_seen
    FROM devices
    WHERE device_id = $1`

// LoadDevice fetches the current snapshot for a device. The second return is
// false when the device has never been seen.
func (s *Store) LoadDevice(ctx context.Context, deviceID string) (domain.DeviceState, bool, error) {
	var d domain.DeviceState
	err := s.pool.QueryRow(ctx, loadDeviceSQL, deviceID).Scan(
		&d.DeviceID, &d.Name, &d.Lat, &d.Lng, &d.MountHeightCm,
		&d.Thresholds.WarnCm, &d.Thresholds.AlertCm,
		&d.Status, &d.PrevStatus, &d.LastSeen,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DeviceState{}, false, nil
	}
	if err != nil {
		return domain.DeviceState{}, false, fmt.Errorf("load device: %w", err)
	}
	return d, true, nil
}

const upsertDeviceSQL = `
    INSERT INTO devices (device_id, name, lat, lng, mount_height_cm, warn_cm, alert_cm, status, prev_status, last_seen)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    ON CONFLICT (device_id) DO UPDATE SET
        status = EXCLUDED.status,
        prev_status = EXCLUDED.prev_status,
        last_seen = EXCLUDED.last_seen`

const insertReadingSQL = `
    INSERT INTO readings (device_id, ts, distance_cm, water_level_cm, battery_v, status, notes, rssi, snr, expires_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const insertAlertSQL = `
    INSERT INTO alerts (device_id, device_name, from_status, to_status, water_level_cm, triggered_at, expires_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7)`

// CommitReading applies the device upsert, the reading insert, and the
// optional alert insert in a single transaction. On error nothing is
// partially visible. Owner-assigned fields are preserved by the upsert; only
// status, prev_status, and last_seen change on subsequent readings.
func (s *Store) CommitReading(ctx context.Context, device domain.DeviceState, reading domain.SensorReading, alert *domain.AlertEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, upsertDeviceSQL,
		device.DeviceID, device.Name, device.Lat, device.Lng, device.MountHeightCm,
		device.Thresholds.WarnCm, device.Thresholds.AlertCm,
		device.Status, device.PrevStatus, device.LastSeen,
	); err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}

	if _, err := tx.Exec(ctx, insertReadingSQL,
		reading.DeviceID, reading.Timestamp, reading.DistanceCm, reading.WaterLevelCm,
		reading.BatteryV, reading.Status, reading.Notes, reading.RSSI, reading.SNR,
		reading.Timestamp.Add(s.readingRetention),
	); err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}

	if alert != nil {
		if _, err := tx.Exec(ctx, insertAlertSQL,
			alert.DeviceID, alert.DeviceName, alert.FromStatus, alert.ToStatus,
			alert.WaterLevelCm, alert.TriggeredAt,
			alert.TriggeredAt.Add(s.alertRetention),
		); err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const listDevicesSQL = `
    SELECT device_id, name, lat, lng, mount_height_cm, warn_cm, alert_cm, status, prev_status, last_seen
    FROM devices
    ORDER BY device_id`

// ListDevices returns all device snapshots, the input to flood-risk checks.
func (s *Store) ListDevices(ctx context.Context) ([]domain.DeviceState, error) {
	rows, err := s.pool.Query(ctx, listDevicesSQL)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []domain.DeviceState
	for rows.Next() {
		var d domain.DeviceState
		if err := rows.Scan(
			&d.DeviceID, &d.Name, &d.Lat, &d.Lng, &d.MountHeightCm,
			&d.Thresholds.WarnCm, &d.Thresholds.AlertCm,
			&d.Status, &d.PrevStatus, &d.LastSeen,
		); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

const deleteExpiredSQL = `
    DELETE FROM %s
    WHERE id IN (SELECT id FROM %s WHERE expires_at <= $1 ORDER BY expires_at LIMIT $2)`

// DeleteExpiredReadings removes up to limit expired readings as one batch.
func (s *Store) DeleteExpiredReadings(ctx context.Context, now time.Time, limit int) (int, error) {
	return s.deleteExpired(ctx, "readings", now, limit)
}

// DeleteExpiredAlerts removes up to limit expired alerts as one batch.
func (s *Store) DeleteExpiredAlerts(ctx context.Context, now time.Time, limit int) (int, error) {
	return s.deleteExpired(ctx, "alerts", now, limit)
}

func (s *Store) deleteExpired(ctx context.Context, table string, now time.Time, limit int) (int, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(deleteExpiredSQL, table, table), now, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired %s: %w", table, err)
	}
	return int(tag.RowsAffected()), nil
}
