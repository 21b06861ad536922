package geo

import (
	"math"
	"testing"

	"github.com/example/backhaul-matching/internal/models"
)

var (
	delhi  = models.Coordinate{Lng: 77.10, Lat: 28.70}
	mumbai = models.Coordinate{Lng: 72.88, Lat: 19.08}
)

func TestDistanceZero(t *testing.T) {
	for _, c := range []models.Coordinate{{}, delhi, {Lng: -180, Lat: 90}, {Lng: 179.9, Lat: -45}} {
		if d := DistanceKm(c, c); d != 0 {
			t.Fatalf("expected 0 for %+v, got %f", c, d)
		}
	}
}

func TestDistanceSymmetric(t *testing.T) {
	pts := []models.Coordinate{delhi, mumbai, {Lng: -0.12, Lat: 51.5}, {Lng: 151.2, Lat: -33.86}, {Lng: 179.5, Lat: 0}, {Lng: -179.5, Lat: 0}}
	for _, a := range pts {
		for _, b := range pts {
			if ab, ba := DistanceKm(a, b), DistanceKm(b, a); math.Abs(ab-ba) > 1e-9 {
				t.Fatalf("asymmetric %+v %+v: %f vs %f", a, b, ab, ba)
			}
		}
	}
}

func TestDistanceDelhiMumbai(t *testing.T) {
	d := DistanceKm(delhi, mumbai)
	if d < 1150 || d > 1200 {
		t.Fatalf("expected ~1150-1200km, got %f", d)
	}
}

func TestDistanceAcrossAntimeridian(t *testing.T) {
	d := DistanceKm(models.Coordinate{Lng: 179.5, Lat: 0}, models.Coordinate{Lng: -179.5, Lat: 0})
	if d < 110 || d > 112 {
		t.Fatalf("expected ~111km across the antimeridian, got %f", d)
	}
}

func TestBoundingBoxContainsRadius(t *testing.T) {
	box := BoundingBoxAround(delhi, 100)
	if !box.Contains(delhi) {
		t.Fatal("box must contain its center")
	}
	// points 99km away along each axis stay inside
	north := models.Coordinate{Lng: delhi.Lng, Lat: delhi.Lat + 99/KmPerDegreeLat}
	if !box.Contains(north) {
		t.Fatalf("expected %+v inside %+v", north, box)
	}
	if box.Contains(mumbai) {
		t.Fatal("mumbai is not within 100km of delhi")
	}
}

func TestBoundingBoxNearPole(t *testing.T) {
	box := BoundingBoxAround(models.Coordinate{Lng: 10, Lat: 89.9}, 50)
	if box.MinLng != -180 || box.MaxLng != 180 || box.MaxLat != 90 {
		t.Fatalf("expected full longitude span near the pole, got %+v", box)
	}
}

func TestBoundingBoxWrapsAntimeridian(t *testing.T) {
	fiji := models.Coordinate{Lng: 179.9, Lat: -17.7}
	box := BoundingBoxAround(fiji, 100)
	if !box.Wraps() {
		t.Fatalf("expected box to wrap the antimeridian, got %+v", box)
	}
	east := models.Coordinate{Lng: -179.6, Lat: -17.7}
	if d := DistanceKm(fiji, east); d > 100 {
		t.Fatalf("test point should be within 100km, got %f", d)
	}
	if !box.Contains(east) || !box.Contains(fiji) {
		t.Fatalf("expected both sides of the antimeridian inside %+v", box)
	}
	if box.Contains(models.Coordinate{Lng: 0, Lat: -17.7}) {
		t.Fatal("greenwich is far outside the box")
	}
	r := box.LngRanges()
	if r[0][0] != box.MinLng || r[0][1] != 180 || r[1][0] != -180 || r[1][1] != box.MaxLng {
		t.Fatalf("unexpected ranges %v for %+v", r, box)
	}
}

func TestBoundingBoxLngRangesUnwrapped(t *testing.T) {
	box := BoundingBoxAround(delhi, 100)
	if box.Wraps() {
		t.Fatalf("delhi box should not wrap: %+v", box)
	}
	r := box.LngRanges()
	if r[0] != r[1] || r[0][0] != box.MinLng || r[0][1] != box.MaxLng {
		t.Fatalf("unexpected ranges %v", r)
	}
}
