package matcher

import (
	"github.com/example/backhaul-matching/internal/eta"
	"github.com/example/backhaul-matching/internal/geo"
	"github.com/example/backhaul-matching/internal/models"
)

// FilterMatches keeps the candidates whose origin is within deviationKm of
// pickup and whose destination is within deviationKm of drop. The two limits
// are independent: a small origin deviation does not buy room at the other end.
// Scores are left unset.
func FilterMatches(cands []models.PostedRoute, pickup, drop models.Coordinate, deviationKm, speedKmh float64) []models.MatchResult {
	bookingKm := geo.DistanceKm(pickup, drop)
	transit := eta.EstimateHours(bookingKm, speedKmh)

	out := make([]models.MatchResult, 0, len(cands))
	for _, c := range cands {
		originDev := geo.DistanceKm(c.Origin.Location, pickup)
		if originDev > deviationKm {
			continue
		}
		destDev := geo.DistanceKm(c.Destination.Location, drop)
		if destDev > deviationKm {
			continue
		}
		out = append(out, models.MatchResult{
			Route: c,
			Metrics: models.MatchMetrics{
				OriginDeviationKm:     originDev,
				DestDeviationKm:       destDev,
				TotalDeviationKm:      originDev + destDev,
				BookingDistanceKm:     bookingKm,
				EstimatedCostRupees:   bookingKm * c.PricePerKm,
				EstimatedTransitHours: transit,
			},
		})
	}
	return out
}
