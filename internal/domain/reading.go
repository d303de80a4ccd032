package domain

import "time"

// Status is the three-tier flood severity of a device.
type Status string

const (
	StatusOK    Status = "OK"
	StatusWarn  Status = "WARN"
	StatusAlert Status = "ALERT"
)

// ParseStatus maps a device-reported status string to a Status.
// Unrecognized or empty input defaults to OK; the authoritative status is
// recomputed server-side regardless.
func ParseStatus(s string) Status {
	switch s {
	case string(StatusWarn):
		return StatusWarn
	case string(StatusAlert):
		return StatusAlert
	default:
		return StatusOK
	}
}

// rank orders statuses by severity for escalation checks.
func (s Status) rank() int {
	switch s {
	case StatusAlert:
		return 2
	case StatusWarn:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is at least as severe as other.
func (s Status) AtLeast(other Status) bool {
	return s.rank() >= other.rank()
}

// Thresholds are the per-device classification boundaries in centimeters.
// Well-formed configurations satisfy AlertCm >= WarnCm >= 0; violating
// configurations are accepted as-is since threshold authoring is external.
type Thresholds struct {
	WarnCm  float64 `json:"warnCm"`
	AlertCm float64 `json:"alertCm"`
}

// SensorReading is one accepted measurement from a device. Immutable once
// persisted.
type SensorReading struct {
	DeviceID     string    `json:"deviceId"`
	Timestamp    time.Time `json:"timestamp"`
	DistanceCm   float64   `json:"distanceCm"`
	WaterLevelCm float64   `json:"waterLevelCm"`
	BatteryV     float64   `json:"batteryV"`
	Status       Status    `json:"status"`
	Notes        string    `json:"notes,omitempty"`
	RSSI         *float64  `json:"rssi,omitempty"`
	SNR          *float64  `json:"snr,omitempty"`
}

// DeviceState is the latest-known snapshot of a device. Lat/Lng stay zero
// until the owner assigns a location.
type DeviceState struct {
	DeviceID      string     `json:"deviceId"`
	Name          string     `json:"name,omitempty"`
	Lat           float64    `json:"lat"`
	Lng           float64    `json:"lng"`
	MountHeightCm float64    `json:"mountHeightCm"`
	Thresholds    Thresholds `json:"thresholds"`
	Status        Status     `json:"status"`
	PrevStatus    Status     `json:"prevStatus"`
	LastSeen      time.Time  `json:"lastSeen"`
}

// AlertEvent records one status transition. Exactly one is created per
// accepted reading whose computed status differs from the device's previous
// status.
type AlertEvent struct {
	DeviceID     string    `json:"deviceId"`
	DeviceName   string    `json:"deviceName,omitempty"`
	FromStatus   Status    `json:"fromStatus"`
	ToStatus     Status    `json:"toStatus"`
	WaterLevelCm float64   `json:"waterLevelCm"`
	TriggeredAt  time.Time `json:"triggeredAt"`
	Acknowledged bool      `json:"acknowledged"`
}
