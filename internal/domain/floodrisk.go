package domain

import "math"

// Severity classifies the outcome of a flood check.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// DefaultDetectionRadiusMeters is used when a watcher carries no radius of
// its own. Flood checks run on every snapshot and must be total, so a
// missing radius falls back here rather than failing.
const DefaultDetectionRadiusMeters = 500

// AlertThreshold is a watcher's minimum severity of interest.
type AlertThreshold string

const (
	ThresholdAny   AlertThreshold = "any"
	ThresholdWarn  AlertThreshold = "warn"
	ThresholdAlert AlertThreshold = "alert"
)

// minStatus maps a threshold to the lowest device status that matches it.
// Unrecognized or empty thresholds are permissive.
func (t AlertThreshold) minStatus() Status {
	if t == ThresholdAlert {
		return StatusAlert
	}
	return StatusWarn
}

// RouteCandidate is one road route proposed by the external routing
// provider. Consumed read-only; never persisted.
type RouteCandidate struct {
	ID              string       `json:"id"`
	Label           string       `json:"label,omitempty"`
	Polyline        []Coordinate `json:"polyline"`
	DistanceMeters  float64      `json:"distanceMeters"`
	DurationSeconds float64      `json:"durationSeconds"`
}

// FloodCheckResult is the subset of sensors affecting a route or place and
// the resulting severity. Derived on demand, never persisted.
type FloodCheckResult struct {
	Sensors  []DeviceState `json:"sensors"`
	Severity Severity      `json:"severity"`
}

// WatchedPlace is a user-configured point of interest with its own detection
// radius and severity threshold.
type WatchedPlace struct {
	ID           string         `json:"id"`
	Lat          float64        `json:"lat"`
	Lng          float64        `json:"lng"`
	RadiusMeters float64        `json:"radiusMeters,omitempty"`
	Threshold    AlertThreshold `json:"threshold,omitempty"`
}

// RouteSelection is a chosen route together with the flood hits found along
// it, so callers can present a degraded-but-defensible default instead of
// failing when every candidate is affected.
type RouteSelection struct {
	Route RouteCandidate   `json:"route"`
	Check FloodCheckResult `json:"check"`
}

// CheckRoute returns the non-OK sensors within radiusMeters of the route and
// the overall severity. Route proximity uses the per-point minimum against
// the polyline rather than segment projection; provider polylines are dense
// enough that the cheaper check suffices.
func CheckRoute(route RouteCandidate, sensors []DeviceState, radiusMeters float64) FloodCheckResult {
	if radiusMeters <= 0 {
		radiusMeters = DefaultDetectionRadiusMeters
	}
	var hits []DeviceState
	for _, s := range sensors {
		if s.Status == StatusOK {
			continue
		}
		if minDistanceToPoints(s.Lat, s.Lng, route.Polyline) <= radiusMeters {
			hits = append(hits, s)
		}
	}
	return FloodCheckResult{Sensors: hits, Severity: severityOf(hits)}
}

// CheckPlace returns the sensors affecting a watched place, using
// straight-line distance against the place's own radius and threshold.
func CheckPlace(place WatchedPlace, sensors []DeviceState) FloodCheckResult {
	radius := place.RadiusMeters
	if radius <= 0 {
		radius = DefaultDetectionRadiusMeters
	}
	min := place.Threshold.minStatus()

	var hits []DeviceState
	for _, s := range sensors {
		if s.Status == StatusOK || !s.Status.AtLeast(min) {
			continue
		}
		if DistanceMeters(place.Lat, place.Lng, s.Lat, s.Lng) <= radius {
			hits = append(hits, s)
		}
	}
	return FloodCheckResult{Sensors: hits, Severity: severityOf(hits)}
}

// SelectRoute picks the first candidate (provider order is fastest-first)
// with zero flood hits. When none are hit-free it returns the overall
// fastest by duration, tagged with its hit set. The second return is false
// only when there are no candidates at all.
func SelectRoute(candidates []RouteCandidate, sensors []DeviceState, radiusMeters float64) (RouteSelection, bool) {
	if len(candidates) == 0 {
		return RouteSelection{}, false
	}

	checks := make([]FloodCheckResult, len(candidates))
	for i, c := range candidates {
		checks[i] = CheckRoute(c, sensors, radiusMeters)
		if len(checks[i].Sensors) == 0 {
			return RouteSelection{Route: c, Check: checks[i]}, true
		}
	}

	fastest := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].DurationSeconds < candidates[fastest].DurationSeconds {
			fastest = i
		}
	}
	return RouteSelection{Route: candidates[fastest], Check: checks[fastest]}, true
}

// SelectAvoidance picks the alternative with the fewest flood hits, ties
// broken by first-seen order. A flooded best-available is still returned so
// the caller can show degraded safety; false only when no alternatives
// exist.
func SelectAvoidance(alternatives []RouteCandidate, floodedSensors []DeviceState, radiusMeters float64) (RouteSelection, bool) {
	if len(alternatives) == 0 {
		return RouteSelection{}, false
	}

	best := RouteSelection{Route: alternatives[0], Check: CheckRoute(alternatives[0], floodedSensors, radiusMeters)}
	for _, alt := range alternatives[1:] {
		check := CheckRoute(alt, floodedSensors, radiusMeters)
		if len(check.Sensors) < len(best.Check.Sensors) {
			best = RouteSelection{Route: alt, Check: check}
		}
	}
	return best, true
}

func severityOf(hits []DeviceState) Severity {
	if len(hits) == 0 {
		return SeverityNone
	}
	for _, s := range hits {
		if s.Status == StatusAlert {
			return SeveritySevere
		}
	}
	return SeverityModerate
}

// minDistanceToPoints is the per-point variant of DistanceToPolyline: the
// minimum great-circle distance to any vertex. +Inf for an empty polyline.
func minDistanceToPoints(lat, lng float64, points []Coordinate) float64 {
	minDist := math.Inf(1)
	for _, p := range points {
		if d := DistanceMeters(lat, lng, p.Lat, p.Lng); d < minDist {
			minDist = d
		}
	}
	return minDist
}
