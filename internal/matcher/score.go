package matcher

import (
	"math"

	"github.com/example/backhaul-matching/internal/models"
)

const (
	// PriceCeilingPerKm is the rate treated as the most expensive in practice.
	PriceCeilingPerKm = 100.0

	PriceWeight     = 0.4
	DeviationWeight = 0.35
	RatingWeight    = 0.25

	// NeutralRatingScore is used for drivers without rating history, the same
	// as a 2.5 star average. It is a cold-start policy, not derived from data.
	NeutralRatingScore = 0.5

	maxRating = 5.0
)

func PriceScore(pricePerKm float64) float64 {
	return math.Min(pricePerKm/PriceCeilingPerKm, 1)
}

// DeviationScore normalizes against the largest combined deviation the
// search radius allows.
func DeviationScore(totalDeviationKm, deviationKm float64) float64 {
	if deviationKm <= 0 {
		return 0
	}
	return totalDeviationKm / (2 * deviationKm)
}

func RatingScore(d models.DriverSummary) float64 {
	if !d.HasRating() {
		return NeutralRatingScore
	}
	return (maxRating - *d.AverageRating) / maxRating
}

// Score is a weighted heuristic for ordering one result set; lower is
// better. Values outside [0,1] are possible for outlier inputs and are kept.
func Score(m models.MatchResult, deviationKm float64) float64 {
	return PriceWeight*PriceScore(m.Route.PricePerKm) +
		DeviationWeight*DeviationScore(m.Metrics.TotalDeviationKm, deviationKm) +
		RatingWeight*RatingScore(m.Route.Driver)
}

func ScoreAll(ms []models.MatchResult, deviationKm float64) {
	for i := range ms {
		ms[i].Metrics.Score = Score(ms[i], deviationKm)
	}
}
