package model

import "math"

const earthRadiusMeters = 6371000.0

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DistanceMeters returns the great-circle distance to other in meters using
// the haversine formula.
func (p GeoPoint) DistanceMeters(other GeoPoint) float64 {
	const degToRad = math.Pi / 180
	dLat := (other.Lat - p.Lat) * degToRad
	dLon := (other.Lon - p.Lon) * degToRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(p.Lat*degToRad)*math.Cos(other.Lat*degToRad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}
