package matcher

import (
	"sort"

	"github.com/example/backhaul-matching/internal/models"
)

// SortMatches orders ms in place. The sort is stable so ties keep the
// order the store returned them in.
func SortMatches(ms []models.MatchResult, key models.SortKey) {
	var less func(a, b models.MatchResult) bool
	switch key {
	case models.SortPriceLow:
		less = func(a, b models.MatchResult) bool { return a.Route.PricePerKm < b.Route.PricePerKm }
	case models.SortPriceHigh:
		less = func(a, b models.MatchResult) bool { return a.Route.PricePerKm > b.Route.PricePerKm }
	case models.SortRating:
		less = func(a, b models.MatchResult) bool { return a.Route.Driver.Rating() > b.Route.Driver.Rating() }
	case models.SortNearest:
		less = func(a, b models.MatchResult) bool { return a.Metrics.OriginDeviationKm < b.Metrics.OriginDeviationKm }
	case models.SortDeviation:
		less = func(a, b models.MatchResult) bool { return a.Metrics.TotalDeviationKm < b.Metrics.TotalDeviationKm }
	default:
		less = func(a, b models.MatchResult) bool { return a.Metrics.Score < b.Metrics.Score }
	}
	sort.SliceStable(ms, func(i, j int) bool { return less(ms[i], ms[j]) })
}

// Paginate slices the 1-indexed page out of ms. total is always len(ms);
// pages past the end come back empty.
func Paginate(ms []models.MatchResult, page, pageSize int) ([]models.MatchResult, int) {
	total := len(ms)
	if page < 1 || pageSize < 1 || page-1 > total/pageSize {
		return []models.MatchResult{}, total
	}
	start := (page - 1) * pageSize
	if start >= total {
		return []models.MatchResult{}, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return ms[start:end], total
}
