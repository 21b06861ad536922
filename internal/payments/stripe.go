package payments

import (
	"context"
	"fmt"
	"math"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

const CurrencyINR = "inr"

// Hold describes an authorization placed for a booking quote.
type Hold struct {
	AmountRupees float64
	BookingID    string
	RouteID      string
	CustomerID   string
}

// StripeClient is a thin wrapper around stripe-go for PaymentIntent
// hold/capture/cancel flows on booking quotes.
type StripeClient struct {
	api *client.API
}

func NewStripeClient(apiKey string) *StripeClient {
	return &StripeClient{api: client.New(apiKey, nil)}
}

// newStripeClientWithBackend points the client at a custom API base URL.
func newStripeClientWithBackend(apiKey, baseURL string) *StripeClient {
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(baseURL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return &StripeClient{api: client.New(apiKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})}
}

// ToPaise converts a rupee amount to the smallest currency unit.
func ToPaise(rupees float64) int64 {
	return int64(math.Round(rupees * 100))
}

// Hold creates a PaymentIntent with capture_method=manual to reserve the
// quoted amount. It returns the PaymentIntent ID on success.
func (s *StripeClient) Hold(ctx context.Context, h Hold) (string, error) {
	amount := ToPaise(h.AmountRupees)
	if amount <= 0 {
		return "", fmt.Errorf("hold amount must be positive, got %v", h.AmountRupees)
	}
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(CurrencyINR),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.Context = ctx
	params.AddMetadata("booking_id", h.BookingID)
	params.AddMetadata("route_id", h.RouteID)
	params.AddMetadata("customer_id", h.CustomerID)
	if h.BookingID != "" {
		params.SetIdempotencyKey("hold-" + h.BookingID)
	}
	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe hold: %w", err)
	}
	return pi.ID, nil
}

// Capture finalizes a previously-held PaymentIntent.
func (s *StripeClient) Capture(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if _, err := s.api.PaymentIntents.Capture(paymentIntentID, params); err != nil {
		return fmt.Errorf("stripe capture %s: %w", paymentIntentID, err)
	}
	return nil
}

// Cancel releases the hold on a PaymentIntent.
func (s *StripeClient) Cancel(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	_, err := s.api.PaymentIntents.Cancel(paymentIntentID, params)
	return err
}
