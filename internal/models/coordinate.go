package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate is a longitude/latitude pair in decimal degrees.
type Coordinate struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// NewCoordinate validates the ranges before building the value.
func NewCoordinate(lng, lat float64) (Coordinate, error) {
	c := Coordinate{Lng: lng, Lat: lat}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lng) || math.IsNaN(c.Lat) || math.IsInf(c.Lng, 0) || math.IsInf(c.Lat, 0) {
		return fmt.Errorf("%w: non-finite value", ErrInvalidCoordinate)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinate, c.Lng)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinate, c.Lat)
	}
	return nil
}

// Place is a route endpoint: a postal address plus its location.
type Place struct {
	Address  string     `json:"address"`
	City     string     `json:"city,omitempty"`
	State    string     `json:"state,omitempty"`
	Pincode  string     `json:"pincode,omitempty"`
	Location Coordinate `json:"location"`
}

// DateWindow is the half-open interval [From, To).
type DateWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// DayWindow returns [t, t+24h).
func DayWindow(t time.Time) DateWindow {
	return DateWindow{From: t, To: t.Add(24 * time.Hour)}
}

func (w DateWindow) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}
