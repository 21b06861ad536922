package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidRoute = errors.New("invalid route")

type RouteStatus string

const (
	RouteActive     RouteStatus = "active"
	RouteBooked     RouteStatus = "booked"
	RouteInProgress RouteStatus = "in_progress"
	RouteCompleted  RouteStatus = "completed"
	RouteCancelled  RouteStatus = "cancelled"
	RouteExpired    RouteStatus = "expired"
)

func ParseRouteStatus(s string) (RouteStatus, error) {
	switch st := RouteStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case RouteActive, RouteBooked, RouteInProgress, RouteCompleted, RouteCancelled, RouteExpired:
		return st, nil
	}
	return "", fmt.Errorf("unknown route status %q", s)
}

// Eligible reports whether a route in this status may be returned by a search.
func (s RouteStatus) Eligible() bool { return s == RouteActive }

// DriverSummary is the slice of the driver profile carried alongside a route.
type DriverSummary struct {
	ID            string   `json:"id" db:"id"`
	Name          string   `json:"name" db:"name"`
	AverageRating *float64 `json:"average_rating,omitempty" db:"average_rating"`
	TotalRatings  int      `json:"total_ratings" db:"total_ratings"`
	TruckNumber   string   `json:"truck_number,omitempty" db:"truck_number"`
	TotalTrips    int      `json:"total_trips" db:"total_trips"`
}

// HasRating is false for drivers without rating history. A stored zero
// average is what an unrated profile looks like, so it counts as absent.
func (d DriverSummary) HasRating() bool {
	return d.AverageRating != nil && *d.AverageRating > 0
}

// Rating returns the average rating, or 0 when absent.
func (d DriverSummary) Rating() float64 {
	if !d.HasRating() {
		return 0
	}
	return *d.AverageRating
}

// PostedRoute is a driver's advertised return leg.
type PostedRoute struct {
	ID              string        `json:"id"`
	DriverID        string        `json:"driver_id"`
	Origin          Place         `json:"origin"`
	Destination     Place         `json:"destination"`
	AvailableDate   time.Time     `json:"available_date"`
	AvailableUntil  *time.Time    `json:"available_until,omitempty"`
	PricePerKm      float64       `json:"price_per_km"`
	MinimumCharge   float64       `json:"minimum_charge"`
	TruckType       string        `json:"truck_type"`
	CapacityTons    float64       `json:"capacity_tons"`
	TotalDistanceKm float64       `json:"total_distance_km"`
	EstimatedPrice  float64       `json:"estimated_price"`
	Status          RouteStatus   `json:"status"`
	Notes           string        `json:"notes,omitempty"`
	AcceptedGoods   []string      `json:"accepted_goods,omitempty"`
	RejectedGoods   []string      `json:"rejected_goods,omitempty"`
	Views           int           `json:"views"`
	Driver          DriverSummary `json:"driver"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

const maxNotesLen = 500

func (r PostedRoute) Validate() error {
	var errs []error
	if strings.TrimSpace(r.Origin.Address) == "" {
		errs = append(errs, errors.New("origin address required"))
	}
	if strings.TrimSpace(r.Destination.Address) == "" {
		errs = append(errs, errors.New("destination address required"))
	}
	if err := r.Origin.Location.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("origin: %w", err))
	}
	if err := r.Destination.Location.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("destination: %w", err))
	}
	if r.AvailableDate.IsZero() {
		errs = append(errs, errors.New("available date required"))
	}
	if r.AvailableUntil != nil && r.AvailableUntil.Before(r.AvailableDate) {
		errs = append(errs, errors.New("available until precedes available date"))
	}
	if r.PricePerKm < 0 {
		errs = append(errs, errors.New("price per km cannot be negative"))
	}
	if r.MinimumCharge < 0 {
		errs = append(errs, errors.New("minimum charge cannot be negative"))
	}
	if r.CapacityTons < 0 {
		errs = append(errs, errors.New("capacity cannot be negative"))
	}
	if strings.TrimSpace(r.TruckType) == "" {
		errs = append(errs, errors.New("truck type required"))
	}
	if len(r.Notes) > maxNotesLen {
		errs = append(errs, fmt.Errorf("notes cannot exceed %d characters", maxNotesLen))
	}
	if _, err := ParseRouteStatus(string(r.Status)); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRoute, errors.Join(errs...))
	}
	return nil
}
