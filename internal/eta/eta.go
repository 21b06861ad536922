package eta

// DefaultSpeedKmh is a loaded truck's average over highways and city legs.
const DefaultSpeedKmh = 45.0

// EstimateHours is a naive transit estimate: straight-line distance over an
// average speed. Road distance is longer, so this is a lower bound.
func EstimateHours(distanceKm, speedKmh float64) float64 {
	if speedKmh <= 0 {
		speedKmh = DefaultSpeedKmh
	}
	if distanceKm <= 0 {
		return 0
	}
	return distanceKm / speedKmh
}
