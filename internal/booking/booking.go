package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/backhaul-matching/internal/dispatch"
	"github.com/example/backhaul-matching/internal/geo"
	"github.com/example/backhaul-matching/internal/models"
	"github.com/example/backhaul-matching/internal/observability"
	"github.com/example/backhaul-matching/internal/payments"
)

var (
	ErrInvalidRequest   = errors.New("invalid booking request")
	ErrRouteUnavailable = errors.New("route is no longer available")
	ErrPaymentDeclined  = errors.New("payment hold declined")
)

type RouteGetter interface {
	GetRoute(ctx context.Context, id string) (*models.PostedRoute, error)
}

type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, ev models.BookingEvent) error
}

// PaymentHolder reserves the quoted amount until the driver responds.
type PaymentHolder interface {
	Hold(ctx context.Context, h payments.Hold) (string, error)
	Cancel(ctx context.Context, paymentIntentID string) error
}

// Quote prices a booking on route for distanceKm of carriage. The price is
// never below the route's minimum charge.
func Quote(distanceKm float64, route models.PostedRoute, commissionPercent float64) models.BookingQuote {
	quoted := math.Max(math.Round(distanceKm*route.PricePerKm), route.MinimumCharge)
	commission := math.Round(quoted * commissionPercent / 100)
	return models.BookingQuote{
		DistanceKm:        math.Round(distanceKm*10) / 10,
		QuotedPrice:       quoted,
		CommissionPercent: commissionPercent,
		Commission:        commission,
		DriverEarnings:    quoted - commission,
	}
}

type Customer struct {
	ID   string
	Name string
}

type RequestInput struct {
	RouteID       string       `json:"route_id"`
	Pickup        models.Place `json:"pickup"`
	Dropoff       models.Place `json:"dropoff"`
	ScheduledDate time.Time    `json:"scheduled_date"`
	GoodsType     string       `json:"goods_type"`
	GoodsWeight   float64      `json:"goods_weight,omitempty"`
	Notes         string       `json:"notes,omitempty"`
}

func (in RequestInput) validate() error {
	var errs []error
	if strings.TrimSpace(in.RouteID) == "" {
		errs = append(errs, errors.New("route id required"))
	}
	if strings.TrimSpace(in.Pickup.Address) == "" {
		errs = append(errs, errors.New("pickup address required"))
	}
	if strings.TrimSpace(in.Dropoff.Address) == "" {
		errs = append(errs, errors.New("dropoff address required"))
	}
	if err := in.Pickup.Location.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pickup: %w", err))
	}
	if err := in.Dropoff.Location.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("dropoff: %w", err))
	}
	if in.ScheduledDate.IsZero() {
		errs = append(errs, errors.New("scheduled date required"))
	}
	if strings.TrimSpace(in.GoodsType) == "" {
		errs = append(errs, errors.New("goods type required"))
	}
	if in.GoodsWeight < 0 {
		errs = append(errs, errors.New("goods weight cannot be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, errors.Join(errs...))
	}
	return nil
}

type Service struct {
	routes            RouteGetter
	events            EventPublisher
	payments          PaymentHolder
	notifier          dispatch.Notifier
	commissionPercent float64
	logger            *slog.Logger
	now               func() time.Time
}

// NewService wires the booking flow. events is required; payments and
// notifier may be nil.
func NewService(routes RouteGetter, events EventPublisher, holder PaymentHolder, notifier dispatch.Notifier, commissionPercent float64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		routes:            routes,
		events:            events,
		payments:          holder,
		notifier:          notifier,
		commissionPercent: commissionPercent,
		logger:            logger,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// Request quotes a customer's load on an active route, holds the amount,
// emits booking.requested and tells the driver.
func (s *Service) Request(ctx context.Context, customer Customer, in RequestInput) (*models.BookingRequest, error) {
	if err := in.validate(); err != nil {
		observability.BookingRequests.WithLabelValues("invalid").Inc()
		return nil, err
	}
	route, err := s.routes.GetRoute(ctx, in.RouteID)
	if err != nil {
		observability.BookingRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	if route.Status != models.RouteActive {
		observability.BookingRequests.WithLabelValues("unavailable").Inc()
		return nil, ErrRouteUnavailable
	}

	b := &models.BookingRequest{
		ID:            uuid.NewString(),
		RouteID:       route.ID,
		DriverID:      route.DriverID,
		CustomerID:    customer.ID,
		CustomerName:  customer.Name,
		Pickup:        in.Pickup,
		Dropoff:       in.Dropoff,
		ScheduledDate: in.ScheduledDate,
		GoodsType:     in.GoodsType,
		GoodsWeight:   in.GoodsWeight,
		Notes:         in.Notes,
		Quote:         Quote(geo.DistanceKm(in.Pickup.Location, in.Dropoff.Location), *route, s.commissionPercent),
		CreatedAt:     s.now(),
	}

	// Nothing to reserve on a free quote.
	if s.payments != nil && b.Quote.QuotedPrice > 0 {
		pi, err := s.payments.Hold(ctx, payments.Hold{
			AmountRupees: b.Quote.QuotedPrice,
			BookingID:    b.ID,
			RouteID:      b.RouteID,
			CustomerID:   b.CustomerID,
		})
		if err != nil {
			observability.BookingRequests.WithLabelValues("payment_declined").Inc()
			return nil, fmt.Errorf("%w: %w", ErrPaymentDeclined, err)
		}
		b.PaymentIntentID = pi
	}

	ev := models.BookingEvent{Type: models.BookingRequested, Booking: *b, OccurredAt: b.CreatedAt}
	if err := s.events.PublishBookingEvent(ctx, ev); err != nil {
		s.releaseHold(ctx, b)
		observability.BookingRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("publish booking %s: %w", b.ID, err)
	}

	if s.notifier != nil {
		n := dispatch.Notification{
			Type: models.BookingRequested,
			Payload: map[string]any{
				"booking_id":   b.ID,
				"route_id":     b.RouteID,
				"customer":     map[string]string{"id": customer.ID, "name": customer.Name},
				"quoted_price": b.Quote.QuotedPrice,
			},
		}
		if err := s.notifier.Notify(b.DriverID, n); err != nil {
			s.logger.Info("driver not notified", "driver_id", b.DriverID, "booking_id", b.ID, "error", err)
		}
	}

	observability.BookingRequests.WithLabelValues("ok").Inc()
	s.logger.Info("booking requested",
		"booking_id", b.ID,
		"route_id", b.RouteID,
		"quoted_price", b.Quote.QuotedPrice,
		"distance_km", b.Quote.DistanceKm,
	)
	return b, nil
}

func (s *Service) releaseHold(ctx context.Context, b *models.BookingRequest) {
	if s.payments == nil || b.PaymentIntentID == "" {
		return
	}
	if err := s.payments.Cancel(ctx, b.PaymentIntentID); err != nil {
		s.logger.Error("release payment hold failed", "booking_id", b.ID, "payment_intent", b.PaymentIntentID, "error", err)
	}
}
