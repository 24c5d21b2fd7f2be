// Package geo computes great-circle distance and ETA for hospital selection.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Point is a lat/lng pair, matching the wire shape used by VitalsReading and
// Hospital location fields.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceKM returns the great-circle distance between two points in
// kilometres, via orb's haversine implementation.
func DistanceKM(a, b Point) float64 {
	meters := geo.Distance(orb.Point{a.Lng, a.Lat}, orb.Point{b.Lng, b.Lat})
	return meters / 1000
}

// ETAMinutes assumes an average road speed of 50 km/h.
func ETAMinutes(distanceKM float64) int {
	minutes := int(math.Ceil(distanceKM / 50 * 60))
	if minutes < 1 {
		return 1
	}
	return minutes
}
