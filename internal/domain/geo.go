package domain

import "math"

const earthRadiusMeters = 6371000

// Coordinate is a WGS-84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceMeters returns the great-circle (haversine) distance between two
// coordinates in meters.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// DistanceToPolyline returns the minimum distance in meters from a point to
// any segment of the polyline. Each segment is treated as a straight line in
// a local planar frame; the point projects onto it with the parameter
// clamped to [0,1] so endpoints are handled. Zero-length segments fall back
// to point-to-point distance. An empty or single-point polyline has no
// segments and yields +Inf.
func DistanceToPolyline(lat, lng float64, points []Coordinate) float64 {
	minDist := math.Inf(1)
	for i := 0; i+1 < len(points); i++ {
		d := distanceToSegment(lat, lng, points[i], points[i+1])
		if d < minDist {
			minDist = d
		}
	}
	return minDist
}

// distanceToSegment projects (lat,lng) onto the segment a-b in an
// equirectangular frame scaled by cos(latitude), then measures the
// great-circle distance to the projection.
func distanceToSegment(lat, lng float64, a, b Coordinate) float64 {
	scale := math.Cos(toRad(lat))
	ax, ay := a.Lng*scale, a.Lat
	bx, by := b.Lng*scale, b.Lat
	px, py := lng*scale, lat

	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return DistanceMeters(lat, lng, a.Lat, a.Lng)
	}

	t := ((px-ax)*dx + (py-ay)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))

	projLat := a.Lat + t*(b.Lat-a.Lat)
	projLng := a.Lng + t*(b.Lng-a.Lng)
	return DistanceMeters(lat, lng, projLat, projLng)
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
