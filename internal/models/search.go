package models

import (
	"strings"
	"time"
)

type SortKey string

const (
	SortScore     SortKey = "score"
	SortPriceLow  SortKey = "price_low"
	SortPriceHigh SortKey = "price_high"
	SortRating    SortKey = "rating"
	SortNearest   SortKey = "nearest"
	SortDeviation SortKey = "deviation"
)

// ParseSortKey maps user input to a key; "recommended", empty and unknown
// values all mean SortScore.
func ParseSortKey(s string) SortKey {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortPriceLow, SortPriceHigh, SortRating, SortNearest, SortDeviation:
		return k
	}
	return SortScore
}

// SearchQuery is a shipper's request for routes between two points.
// Nil pointers mean "not supplied".
type SearchQuery struct {
	Pickup      *Coordinate
	Drop        *Coordinate
	Date        *time.Time
	TruckType   string
	DeviationKm *float64
	SortBy      SortKey
	Page        int
	PageSize    int
}

type MatchMetrics struct {
	OriginDeviationKm     float64 `json:"origin_deviation_km"`
	DestDeviationKm       float64 `json:"dest_deviation_km"`
	TotalDeviationKm      float64 `json:"total_deviation_km"`
	BookingDistanceKm     float64 `json:"booking_distance_km"`
	EstimatedCostRupees   float64 `json:"estimated_cost_rupees"`
	EstimatedTransitHours float64 `json:"estimated_transit_hours"`
	Score                 float64 `json:"score"`
}

// MatchResult is a route that passed the exact deviation check. It only
// lives for the duration of one search.
type MatchResult struct {
	Route   PostedRoute  `json:"route"`
	Metrics MatchMetrics `json:"match_metrics"`
}

type SearchResult struct {
	Matches         []MatchResult `json:"matches"`
	Total           int           `json:"total"`
	Page            int           `json:"page"`
	PageSize        int           `json:"page_size"`
	Pages           int           `json:"pages"`
	DeviationKmUsed float64       `json:"deviation_km_used"`
}
