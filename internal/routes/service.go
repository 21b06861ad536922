package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/example/backhaul-matching/internal/geo"
	"github.com/example/backhaul-matching/internal/models"
	"github.com/example/backhaul-matching/internal/observability"
	"github.com/example/backhaul-matching/internal/storage"
)

var (
	ErrNotOwner    = errors.New("route belongs to another driver")
	ErrRouteLocked = errors.New("route can no longer be changed")
)

// EventPublisher receives route lifecycle events, e.g. for the Redis indexer.
type EventPublisher interface {
	PublishRouteEvent(ctx context.Context, ev models.RouteEvent) error
}

// PostInput is what a driver submits when advertising a return leg.
type PostInput struct {
	Origin         models.Place `json:"origin"`
	Destination    models.Place `json:"destination"`
	AvailableDate  time.Time    `json:"available_date"`
	AvailableUntil *time.Time   `json:"available_until,omitempty"`
	PricePerKm     float64      `json:"price_per_km"`
	MinimumCharge  float64      `json:"minimum_charge"`
	TruckType      string       `json:"truck_type"`
	CapacityTons   float64      `json:"capacity_tons"`
	Notes          string       `json:"notes,omitempty"`
	AcceptedGoods  []string     `json:"accepted_goods,omitempty"`
	RejectedGoods  []string     `json:"rejected_goods,omitempty"`
}

// Update lists the fields a driver may change after posting. Nil means unchanged.
type Update struct {
	AvailableDate  *time.Time `json:"available_date,omitempty"`
	AvailableUntil *time.Time `json:"available_until,omitempty"`
	PricePerKm     *float64   `json:"price_per_km,omitempty"`
	MinimumCharge  *float64   `json:"minimum_charge,omitempty"`
	CapacityTons   *float64   `json:"capacity_tons,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	AcceptedGoods  []string   `json:"accepted_goods,omitempty"`
	RejectedGoods  []string   `json:"rejected_goods,omitempty"`
}

type Service struct {
	store     storage.RouteStore
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

func NewService(store storage.RouteStore, publisher EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Post stores a new active route for driver. The straight-line length and
// the resulting full-trip price are derived here, rounded to whole units.
func (s *Service) Post(ctx context.Context, driver models.DriverSummary, in PostInput) (*models.PostedRoute, error) {
	now := s.now()
	dist := geo.DistanceKm(in.Origin.Location, in.Destination.Location)
	r := &models.PostedRoute{
		ID:              s.newID(),
		DriverID:        driver.ID,
		Origin:          in.Origin,
		Destination:     in.Destination,
		AvailableDate:   in.AvailableDate,
		AvailableUntil:  in.AvailableUntil,
		PricePerKm:      in.PricePerKm,
		MinimumCharge:   in.MinimumCharge,
		TruckType:       in.TruckType,
		CapacityTons:    in.CapacityTons,
		TotalDistanceKm: math.Round(dist),
		EstimatedPrice:  math.Round(dist * in.PricePerKm),
		Status:          models.RouteActive,
		Notes:           in.Notes,
		AcceptedGoods:   in.AcceptedGoods,
		RejectedGoods:   in.RejectedGoods,
		Driver:          driver,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.SaveRoute(ctx, r); err != nil {
		return nil, fmt.Errorf("post route: %w", err)
	}
	observability.RoutesPosted.Inc()
	s.publish(ctx, models.RoutePosted, *r)
	return r, nil
}

// Get returns a route and counts the view.
func (s *Service) Get(ctx context.Context, id string) (*models.PostedRoute, error) {
	r, err := s.store.GetRoute(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.IncrementViews(ctx, id); err != nil {
		s.logger.Warn("increment route views failed", "route_id", id, "error", err)
	} else {
		r.Views++
	}
	return r, nil
}

// Edit applies u to a route owned by driverID that is not booked or under way.
func (s *Service) Edit(ctx context.Context, driverID, id string, u Update) (*models.PostedRoute, error) {
	r, err := s.owned(ctx, driverID, id)
	if err != nil {
		return nil, err
	}
	if r.Status == models.RouteBooked || r.Status == models.RouteInProgress {
		return nil, ErrRouteLocked
	}
	if u.AvailableDate != nil {
		r.AvailableDate = *u.AvailableDate
	}
	if u.AvailableUntil != nil {
		r.AvailableUntil = u.AvailableUntil
	}
	if u.PricePerKm != nil {
		r.PricePerKm = *u.PricePerKm
		r.EstimatedPrice = math.Round(r.TotalDistanceKm * r.PricePerKm)
	}
	if u.MinimumCharge != nil {
		r.MinimumCharge = *u.MinimumCharge
	}
	if u.CapacityTons != nil {
		r.CapacityTons = *u.CapacityTons
	}
	if u.Notes != nil {
		r.Notes = *u.Notes
	}
	if u.AcceptedGoods != nil {
		r.AcceptedGoods = u.AcceptedGoods
	}
	if u.RejectedGoods != nil {
		r.RejectedGoods = u.RejectedGoods
	}
	r.UpdatedAt = s.now()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.SaveRoute(ctx, r); err != nil {
		return nil, fmt.Errorf("edit route: %w", err)
	}
	s.publish(ctx, models.RouteUpdated, *r)
	return r, nil
}

// Cancel withdraws a route. Only its driver may cancel it, and not while
// the trip is under way.
func (s *Service) Cancel(ctx context.Context, driverID, id string) (*models.PostedRoute, error) {
	r, err := s.owned(ctx, driverID, id)
	if err != nil {
		return nil, err
	}
	if r.Status == models.RouteInProgress {
		return nil, ErrRouteLocked
	}
	return s.UpdateStatus(ctx, id, models.RouteCancelled)
}

// UpdateStatus moves a route through its lifecycle without ownership checks.
// Cancel uses it after its own checks; operators call it directly.
func (s *Service) UpdateStatus(ctx context.Context, id string, status models.RouteStatus) (*models.PostedRoute, error) {
	r, err := s.store.UpdateRouteStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, models.RouteStatusChanged, *r)
	return r, nil
}

// ListMine pages through a driver's own routes, newest first.
func (s *Service) ListMine(ctx context.Context, driverID string, status models.RouteStatus, page, limit int) ([]models.PostedRoute, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	return s.store.ListDriverRoutes(ctx, driverID, status, page, limit)
}

func (s *Service) owned(ctx context.Context, driverID, id string) (*models.PostedRoute, error) {
	r, err := s.store.GetRoute(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.DriverID != driverID {
		return nil, ErrNotOwner
	}
	return r, nil
}

// publish is best effort; failures are only logged.
func (s *Service) publish(ctx context.Context, t models.RouteEventType, r models.PostedRoute) {
	if s.publisher == nil {
		return
	}
	ev := models.RouteEvent{Type: t, Route: r, OccurredAt: s.now()}
	if err := s.publisher.PublishRouteEvent(ctx, ev); err != nil {
		s.logger.Warn("publish route event failed", "route_id", r.ID, "type", t, "error", err)
	}
}
