// Package geo provides great-circle distance and coordinate helpers for
// GPS-tagged scan events. Coordinates are WGS84 decimal degrees; distances
// are meters.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// MetersPerDegreeLat is the approximate north-south span of one degree of
// latitude. Longitude spans shrink with latitude; see LocalXY.
const MetersPerDegreeLat = EarthRadiusMeters * math.Pi / 180.0

// Point is a coordinate in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// DistanceMeters returns the great-circle distance between a and b using the
// haversine formula. Identical points return 0.
func DistanceMeters(a, b Point) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(latA)*math.Cos(latB)*sinLon*sinLon

	// Clamp before Asin: rounding can push h a hair above 1 for antipodes.
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Centroid returns the arithmetic mean of the given points.
// ok is false when points is empty.
func Centroid(points []Point) (c Point, ok bool) {
	if len(points) == 0 {
		return Point{}, false
	}
	var sumLat, sumLon float64
	for _, p := range points {
		sumLat += p.Lat
		sumLon += p.Lon
	}
	n := float64(len(points))
	return Point{Lat: sumLat / n, Lon: sumLon / n}, true
}

// LocalXY projects p onto a local tangent plane centred at origin using an
// equirectangular approximation. x is east, y is north, both in meters.
// Accurate to well under a meter at venue scale (a few hundred meters).
func LocalXY(origin, p Point) (x, y float64) {
	lonScale := math.Cos(origin.Lat * math.Pi / 180)
	x = (p.Lon - origin.Lon) * MetersPerDegreeLat * lonScale
	y = (p.Lat - origin.Lat) * MetersPerDegreeLat
	return x, y
}
