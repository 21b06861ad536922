package geo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/backhaul-matching/internal/models"
)

var day = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func route(id string, origin models.Coordinate, truck string, status models.RouteStatus) models.PostedRoute {
	return models.PostedRoute{
		ID:            id,
		DriverID:      "driver-" + id,
		Origin:        models.Place{Address: "origin " + id, Location: origin},
		Destination:   models.Place{Address: "mumbai", Location: mumbai},
		AvailableDate: day.Add(6 * time.Hour),
		PricePerKm:    20,
		TruckType:     truck,
		Status:        status,
	}
}

func TestIndexNearbyOrdersByDistance(t *testing.T) {
	idx := NewIndex()
	idx.Upsert(route("far", models.Coordinate{Lng: 77.9, Lat: 28.7}, "open", models.RouteActive))   // ~78km
	idx.Upsert(route("near", models.Coordinate{Lng: 77.2, Lat: 28.75}, "open", models.RouteActive)) // ~11km
	idx.Upsert(route("out", models.Coordinate{Lng: 80.0, Lat: 26.0}, "open", models.RouteActive))

	got, err := idx.FindActiveRoutesNear(context.Background(), delhi, 100, models.DayWindow(day), "", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].ID)
	assert.Equal(t, "far", got[1].ID)
}

func TestIndexFiltersStatusWindowAndType(t *testing.T) {
	idx := NewIndex()
	idx.Upsert(route("booked", delhi, "open", models.RouteBooked))
	idx.Upsert(route("container", delhi, "container", models.RouteActive))
	late := route("late", delhi, "open", models.RouteActive)
	late.AvailableDate = day.Add(30 * time.Hour)
	idx.Upsert(late)
	idx.Upsert(route("ok", delhi, "Open", models.RouteActive))

	got, err := idx.FindActiveRoutesNear(context.Background(), delhi, 10, models.DayWindow(day), "open", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].ID)
	assert.Equal(t, 3, idx.Len())
}

func TestIndexUpsertToInactiveRemoves(t *testing.T) {
	idx := NewIndex()
	r := route("r1", delhi, "open", models.RouteActive)
	idx.Upsert(r)
	r.Status = models.RouteCancelled
	idx.Upsert(r)
	assert.Equal(t, 0, idx.Len())

	got, err := idx.FindActiveRoutesNear(context.Background(), delhi, 50, models.DayWindow(day), "", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIndexMovedOriginIsRebucketed(t *testing.T) {
	idx := NewIndex()
	r := route("r1", mumbai, "open", models.RouteActive)
	idx.Upsert(r)
	r.Origin.Location = delhi
	idx.Upsert(r)

	got, _ := idx.FindActiveRoutesNear(context.Background(), mumbai, 20, models.DayWindow(day), "", 10)
	assert.Empty(t, got)
	got, _ = idx.FindActiveRoutesNear(context.Background(), delhi, 20, models.DayWindow(day), "", 10)
	assert.Len(t, got, 1)
}

func TestIndexRespectsLimit(t *testing.T) {
	idx := NewIndex()
	for i := 0; i < 30; i++ {
		idx.Upsert(route(fmt.Sprintf("r%02d", i), models.Coordinate{Lng: delhi.Lng + float64(i)*0.01, Lat: delhi.Lat}, "open", models.RouteActive))
	}
	got, err := idx.FindActiveRoutesNear(context.Background(), delhi, 150, models.DayWindow(day), "", 5)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, "r00", got[0].ID)
	assert.Equal(t, "r04", got[4].ID)
}

// A route just inside the radius but in a different geohash cell than the
// query point must still be found.
func TestIndexFindsAcrossCellBoundaries(t *testing.T) {
	idx := NewIndex()
	for i := 0; i < 36; i++ {
		lng := delhi.Lng + 1.2*float64(i%6-3)/3
		lat := delhi.Lat + 1.0*float64(i/6-3)/3
		idx.Upsert(route(fmt.Sprintf("g%02d", i), models.Coordinate{Lng: lng, Lat: lat}, "open", models.RouteActive))
	}
	const radius = 150.0
	got, err := idx.FindActiveRoutesNear(context.Background(), delhi, radius, models.DayWindow(day), "", 0)
	require.NoError(t, err)

	want := 0
	for i := 0; i < 36; i++ {
		lng := delhi.Lng + 1.2*float64(i%6-3)/3
		lat := delhi.Lat + 1.0*float64(i/6-3)/3
		if DistanceKm(models.Coordinate{Lng: lng, Lat: lat}, delhi) <= radius {
			want++
		}
	}
	assert.Equal(t, want, len(got))
}

func TestLookupPrecision(t *testing.T) {
	assert.Equal(t, maxPrecision, lookupPrecision(0, 1))
	assert.Less(t, lookupPrecision(28.7, 150), lookupPrecision(28.7, 10))
	assert.Equal(t, 0, lookupPrecision(89.99, 500))
}
