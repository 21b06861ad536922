package models

import "time"

type RouteEventType string

const (
	RoutePosted        RouteEventType = "route.posted"
	RouteUpdated       RouteEventType = "route.updated"
	RouteStatusChanged RouteEventType = "route.status_changed"
)

// RouteEvent carries the full route so consumers can rebuild their index
// without a round trip to the store.
type RouteEvent struct {
	Type       RouteEventType `json:"type"`
	Route      PostedRoute    `json:"route"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type BookingQuote struct {
	DistanceKm        float64 `json:"distance_km"`
	QuotedPrice       float64 `json:"quoted_price"`
	CommissionPercent float64 `json:"platform_commission_percent"`
	Commission        float64 `json:"platform_commission"`
	DriverEarnings    float64 `json:"driver_earnings"`
}

type BookingRequest struct {
	ID              string       `json:"id"`
	RouteID         string       `json:"route_id"`
	DriverID        string       `json:"driver_id"`
	CustomerID      string       `json:"customer_id"`
	CustomerName    string       `json:"customer_name,omitempty"`
	Pickup          Place        `json:"pickup"`
	Dropoff         Place        `json:"dropoff"`
	ScheduledDate   time.Time    `json:"scheduled_date"`
	GoodsType       string       `json:"goods_type"`
	GoodsWeight     float64      `json:"goods_weight,omitempty"`
	Notes           string       `json:"notes,omitempty"`
	Quote           BookingQuote `json:"quote"`
	PaymentIntentID string       `json:"payment_intent_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

const BookingRequested = "booking.requested"

type BookingEvent struct {
	Type       string         `json:"type"`
	Booking    BookingRequest `json:"booking"`
	OccurredAt time.Time      `json:"occurred_at"`
}
