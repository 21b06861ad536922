package geo

import (
	"math"

	"github.com/example/backhaul-matching/internal/models"
)

const (
	// EarthRadiusKm is the mean radius used for the spherical approximation.
	EarthRadiusKm = 6371.0
	// KmPerDegreeLat approximates the length of one degree of latitude.
	KmPerDegreeLat = 111.0
)

// DistanceKm returns the great-circle distance between a and b.
func DistanceKm(a, b models.Coordinate) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// BoundingBoxAround returns a lat/lng box around every point within radiusKm
// of c. Near the poles the longitude span widens to the full range. A box
// that crosses the antimeridian wraps, leaving MinLng > MaxLng.
func BoundingBoxAround(c models.Coordinate, radiusKm float64) BoundingBox {
	latDelta := radiusKm / KmPerDegreeLat
	box := BoundingBox{
		MinLat: math.Max(-90, c.Lat-latDelta),
		MaxLat: math.Min(90, c.Lat+latDelta),
		MinLng: -180,
		MaxLng: 180,
	}
	cosLat := math.Cos(toRad(c.Lat))
	if cosLat < 1e-6 {
		return box
	}
	lngDelta := radiusKm / (KmPerDegreeLat * cosLat)
	if lngDelta >= 180 {
		return box
	}
	box.MinLng = wrapLng(c.Lng - lngDelta)
	box.MaxLng = wrapLng(c.Lng + lngDelta)
	return box
}

func wrapLng(lng float64) float64 {
	switch {
	case lng < -180:
		return lng + 360
	case lng > 180:
		return lng - 360
	}
	return lng
}

// Wraps reports whether the box crosses the antimeridian.
func (b BoundingBox) Wraps() bool { return b.MinLng > b.MaxLng }

// LngRanges splits the longitude span into two closed ranges that never
// cross the antimeridian. An unwrapped box repeats its single range.
func (b BoundingBox) LngRanges() [2][2]float64 {
	if b.Wraps() {
		return [2][2]float64{{b.MinLng, 180}, {-180, b.MaxLng}}
	}
	return [2][2]float64{{b.MinLng, b.MaxLng}, {b.MinLng, b.MaxLng}}
}

func (b BoundingBox) Contains(c models.Coordinate) bool {
	if c.Lat < b.MinLat || c.Lat > b.MaxLat {
		return false
	}
	if b.Wraps() {
		return c.Lng >= b.MinLng || c.Lng <= b.MaxLng
	}
	return c.Lng >= b.MinLng && c.Lng <= b.MaxLng
}
