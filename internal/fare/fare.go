// Package fare computes a driver's fare for a candidate trip and the
// aggregate quote ceiling offered to a passenger before a trip exists.
package fare

import (
	"math"
	"sort"

	"caballus/internal/domain"
)

// Fare enforces the minimum-fare floor: short trips still cost at least
// minFare, same guarantee as a surge-adjusted taxi fare never undercutting
// the flag-fall.
func Fare(minFare, rate, distanceM float64) float64 {
	return math.Max(minFare, rate*distanceM)
}

// DriverFare prices a trip for one driver: rate times the sum of the
// driver's distance to the route origin and the route's own distance,
// floored at minFare.
func DriverFare(minFare, rate float64, driverPt, originPt domain.Coordinates, routeDistanceM float64) float64 {
	toOrigin := domain.HaversineMeters(driverPt, originPt)
	return Fare(minFare, rate, toOrigin+routeDistanceM)
}

// QuoteCeiling returns the 50th-percentile fare across fares, using the
// nearest-rank method (ceil(0.5*n)-th smallest value, 1-indexed): for an
// even-sized set this picks the lower of the two middle values rather than
// interpolating. An empty slice means no eligible drivers, so the quote is
// absent; the caller must treat the false return as such rather than
// defaulting to 0.
func QuoteCeiling(fares []float64) (float64, bool) {
	if len(fares) == 0 {
		return 0, false
	}
	sorted := make([]float64, len(fares))
	copy(sorted, fares)
	sort.Float64s(sorted)

	rank := int(math.Ceil(0.5 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1], true
}
