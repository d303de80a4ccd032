package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// ValidationError reports why an uplink payload was rejected. It carries a
// caller-safe reason string surfaced verbatim in the HTTP response.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %s", e.Reason)
}

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// fieldAliases maps each logical measurement field to the payload spellings
// accepted from heterogeneous device decoders, in resolution order.
var fieldAliases = map[string][]string{
	"distanceCm":   {"distanceCm", "distance_cm"},
	"batteryV":     {"batteryV", "battery_v"},
	"waterLevelCm": {"waterLevelCm", "water_level_cm"},
	"status":       {"status"},
	"notes":        {"notes", "note"},
}

// ParseUplink normalizes a TTN-style webhook envelope into a SensorReading
// draft. The draft's WaterLevelCm and Status are device-reported hints; the
// ingestion pipeline recomputes both from the device's configured mount
// height and thresholds before anything is persisted.
//
// receiptTime is used when the envelope carries no parseable received_at.
// Pure function: no side effects.
func ParseUplink(body []byte, receiptTime time.Time) (SensorReading, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil || envelope == nil {
		return SensorReading{}, invalid("body is not a JSON object")
	}

	deviceID := extractDeviceID(envelope)
	if deviceID == "" {
		return SensorReading{}, invalid("missing end_device_ids.device_id")
	}

	var uplink struct {
		DecodedPayload json.RawMessage `json:"decoded_payload"`
		RxMetadata     []rxMetadata    `json:"rx_metadata"`
	}
	if raw, ok := envelope["uplink_message"]; ok {
		if err := json.Unmarshal(raw, &uplink); err != nil {
			return SensorReading{}, invalid("uplink_message is not an object")
		}
	}

	var decoded map[string]any
	if len(uplink.DecodedPayload) == 0 {
		return SensorReading{}, invalid("missing uplink_message.decoded_payload")
	}
	if err := json.Unmarshal(uplink.DecodedPayload, &decoded); err != nil || decoded == nil {
		return SensorReading{}, invalid("decoded_payload is not an object")
	}

	distanceCm, ok := lookupNumber(decoded, "distanceCm")
	if !ok {
		return SensorReading{}, invalid("missing or non-numeric distanceCm")
	}
	batteryV, ok := lookupNumber(decoded, "batteryV")
	if !ok {
		return SensorReading{}, invalid("missing or non-numeric batteryV")
	}

	reading := SensorReading{
		DeviceID:   deviceID,
		Timestamp:  parseReceivedAt(envelope, receiptTime),
		DistanceCm: distanceCm,
		BatteryV:   batteryV,
		Status:     ParseStatus(lookupString(decoded, "status")),
		Notes:      lookupString(decoded, "notes"),
	}
	if level, ok := lookupNumber(decoded, "waterLevelCm"); ok {
		reading.WaterLevelCm = level
	}
	reading.RSSI, reading.SNR = bestSignal(uplink.RxMetadata)

	return reading, nil
}

// rxMetadata is one receiving gateway's radio metadata.
type rxMetadata struct {
	GatewayIDs map[string]any `json:"gateway_ids"`
	RSSI       *float64       `json:"rssi"`
	SNR        *float64       `json:"snr"`
}

// bestSignal picks the rssi/snr pair with the maximum RSSI across all
// receivers. Empty metadata yields nil/nil, not an error.
func bestSignal(receivers []rxMetadata) (*float64, *float64) {
	var rssi, snr *float64
	for _, rx := range receivers {
		if rx.RSSI == nil {
			continue
		}
		if rssi == nil || *rx.RSSI > *rssi {
			rssi = rx.RSSI
			snr = rx.SNR
		}
	}
	return rssi, snr
}

func extractDeviceID(envelope map[string]json.RawMessage) string {
	raw, ok := envelope["end_device_ids"]
	if !ok {
		return ""
	}
	var ids struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.Unmarshal(raw, &ids); err != nil {
		return ""
	}
	return ids.DeviceID
}

func parseReceivedAt(envelope map[string]json.RawMessage, fallback time.Time) time.Time {
	raw, ok := envelope["received_at"]
	if !ok {
		return fallback
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return fallback
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fallback
	}
	return t
}

// lookupNumber resolves a logical field through its alias list and returns
// the first finite numeric value found.
func lookupNumber(decoded map[string]any, field string) (float64, bool) {
	for _, alias := range fieldAliases[field] {
		v, ok := decoded[alias]
		if !ok {
			continue
		}
		f, ok := v.(float64)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func lookupString(decoded map[string]any, field string) string {
	for _, alias := range fieldAliases[field] {
		if v, ok := decoded[alias]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
