package domain

import "math"

// ComputeWaterLevel infers the water level from the device's mount height and
// the measured air distance, rounded to one decimal place. Negative results
// clamp to zero (sensor blocked or miscalibrated).
func ComputeWaterLevel(mountHeightCm, distanceCm float64) float64 {
	level := round1(mountHeightCm - distanceCm)
	if level < 0 {
		return 0
	}
	return level
}

// ClassifyStatus maps a water level to a status. Boundaries are inclusive:
// a level exactly at alertCm is ALERT, exactly at warnCm is WARN.
func ClassifyStatus(waterLevelCm float64, t Thresholds) Status {
	switch {
	case waterLevelCm >= t.AlertCm:
		return StatusAlert
	case waterLevelCm >= t.WarnCm:
		return StatusWarn
	default:
		return StatusOK
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
