// Package geo contains pure geographic computation helpers used by the
// region resolver: great-circle distance and point-in-polygon testing.
package geo

import "math"

const earthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate in decimal degrees (lon/lat order, EPSG:4326).
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Valid reports whether the point is inside the WGS84 coordinate range.
func (p Point) Valid() bool {
	return p.Lon >= -180 && p.Lon <= 180 && p.Lat >= -90 && p.Lat <= 90
}

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(a, b Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLon := degreesToRadians(b.Lon - a.Lon)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// CloseRing appends the first vertex to the end when the ring is open.
// Admin tooling is supposed to store closed rings; lookups must not depend
// on that.
func CloseRing(ring []Point) []Point {
	if len(ring) == 0 {
		return ring
	}
	first, last := ring[0], ring[len(ring)-1]
	if first == last {
		return ring
	}
	out := make([]Point, len(ring)+1)
	copy(out, ring)
	out[len(ring)] = first
	return out
}

// PointInRing applies even-odd ray casting against a single ring. The ring
// is closed defensively before testing. Rings with fewer than three distinct
// vertices never contain anything.
func PointInRing(p Point, ring []Point) bool {
	ring = CloseRing(ring)
	if len(ring) < 4 {
		return false
	}

	inside := false
	for i := 0; i < len(ring)-1; i++ {
		a, b := ring[i], ring[i+1]
		if (a.Lat > p.Lat) == (b.Lat > p.Lat) {
			continue
		}
		// longitude of the edge at the ray's latitude
		x := a.Lon + (p.Lat-a.Lat)/(b.Lat-a.Lat)*(b.Lon-a.Lon)
		if p.Lon < x {
			inside = !inside
		}
	}
	return inside
}

// PointInPolygon tests containment for a polygon whose first ring is the
// outer boundary and whose remaining rings are holes. A point inside a hole
// is outside the polygon.
func PointInPolygon(p Point, rings [][]Point) bool {
	if len(rings) == 0 || len(rings[0]) == 0 {
		return false
	}
	if !PointInRing(p, rings[0]) {
		return false
	}
	for _, hole := range rings[1:] {
		if PointInRing(p, hole) {
			return false
		}
	}
	return true
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
