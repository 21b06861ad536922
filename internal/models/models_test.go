package models

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCoordinate(t *testing.T) {
	cases := []struct {
		name    string
		lng     float64
		lat     float64
		wantErr bool
	}{
		{"delhi", 77.10, 28.70, false},
		{"bounds", 180, -90, false},
		{"lng too large", 180.01, 0, true},
		{"lat too small", 0, -90.5, true},
		{"nan", math.NaN(), 0, true},
		{"inf", 0, math.Inf(1), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewCoordinate(tc.lng, tc.lat)
			if tc.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidCoordinate))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Coordinate{Lng: tc.lng, Lat: tc.lat}, c)
		})
	}
}

func TestDayWindowIsHalfOpen(t *testing.T) {
	from := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	w := DayWindow(from)
	assert.True(t, w.Contains(from))
	assert.True(t, w.Contains(from.Add(23*time.Hour)))
	assert.False(t, w.Contains(from.Add(24*time.Hour)))
	assert.False(t, w.Contains(from.Add(-time.Second)))
}

func TestParseSortKey(t *testing.T) {
	assert.Equal(t, SortScore, ParseSortKey(""))
	assert.Equal(t, SortScore, ParseSortKey("recommended"))
	assert.Equal(t, SortScore, ParseSortKey("bogus"))
	assert.Equal(t, SortPriceHigh, ParseSortKey(" PRICE_HIGH "))
	assert.Equal(t, SortNearest, ParseSortKey("nearest"))
}

func TestParseRouteStatus(t *testing.T) {
	st, err := ParseRouteStatus("In_Progress")
	require.NoError(t, err)
	assert.Equal(t, RouteInProgress, st)
	assert.False(t, st.Eligible())
	assert.True(t, RouteActive.Eligible())

	_, err = ParseRouteStatus("parked")
	assert.Error(t, err)
}

func TestDriverSummaryRating(t *testing.T) {
	zero, four := 0.0, 4.2
	assert.False(t, DriverSummary{}.HasRating())
	assert.False(t, DriverSummary{AverageRating: &zero}.HasRating())
	assert.True(t, DriverSummary{AverageRating: &four}.HasRating())
	assert.Equal(t, 4.2, DriverSummary{AverageRating: &four}.Rating())
	assert.Equal(t, 0.0, DriverSummary{}.Rating())
}

func TestPostedRouteValidate(t *testing.T) {
	valid := PostedRoute{
		Origin:        Place{Address: "Delhi", Location: Coordinate{Lng: 77.2, Lat: 28.75}},
		Destination:   Place{Address: "Mumbai", Location: Coordinate{Lng: 72.9, Lat: 19.1}},
		AvailableDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PricePerKm:    20,
		TruckType:     "container",
		CapacityTons:  10,
		Status:        RouteActive,
	}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.PricePerKm = -1
	bad.TruckType = ""
	bad.Destination.Location.Lat = 91
	err := bad.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRoute))
	assert.Contains(t, err.Error(), "price per km")
	assert.Contains(t, err.Error(), "truck type")
	assert.Contains(t, err.Error(), "destination")
}
