// Package domain models water-level telemetry from LoRaWAN flood sensors and
// the flood-risk evaluation built on top of it.
//
// # Data Source
//
// Field sensors report over The Things Network (TTN). Each uplink arrives as
// a webhook delivery envelope:
//
//	{
//	  "end_device_ids": {"device_id": "..."},
//	  "received_at": "...RFC3339...",
//	  "uplink_message": {
//	    "decoded_payload": {...},
//	    "rx_metadata": [{"gateway_ids": {...}, "rssi": ..., "snr": ...}, ...]
//	  }
//	}
//
// Device decoders are not uniform: some emit camelCase field names
// ("distanceCm"), some snake_case ("distance_cm"). [ParseUplink] resolves
// each logical field through an ordered alias list rather than ad hoc
// probing. Radio metadata may list several receiving gateways; the pair with
// the strongest RSSI is kept.
//
// # Water Level and Status
//
// A sensor is mounted a fixed height above the surface it measures against
// when dry. The water level is inferred as mount height minus the measured
// distance, clamped at zero (a negative result means the sensor is blocked
// or miscalibrated, not that the water is below ground).
//
// Status is always a pure function of (water level, per-device thresholds):
//
//	level >= alertCm -> ALERT
//	level >= warnCm  -> WARN
//	otherwise        -> OK
//
// Boundaries are inclusive. A device-reported status is advisory only and is
// never persisted without recomputation.
//
// # Flood Risk
//
// Route and place checks filter the current sensor snapshot to non-OK
// sensors within a detection radius, using great-circle distance. Severity
// is severe when any matched sensor is in ALERT, moderate when anything
// matched, none otherwise. These functions are total and perform no I/O, so
// callers recompute them on every fresh snapshot.
package domain
