package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/backhaul-matching/internal/auth"
	"github.com/example/backhaul-matching/internal/booking"
	"github.com/example/backhaul-matching/internal/matcher"
	"github.com/example/backhaul-matching/internal/models"
	"github.com/example/backhaul-matching/internal/routes"
	"github.com/example/backhaul-matching/internal/storage"
)

var errBadRequest = errors.New("bad request")

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return errBadRequest }

func badRequest(msg string) error { return &requestError{msg: msg} }

type errorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, matcher.ErrInvalidQuery),
		errors.Is(err, models.ErrInvalidRoute),
		errors.Is(err, booking.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, booking.ErrPaymentDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, routes.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, routes.ErrRouteLocked), errors.Is(err, booking.ErrRouteUnavailable):
		return http.StatusConflict
	case errors.Is(err, matcher.ErrSearchUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status code. Server-side failures are logged and
// their details kept out of the response body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		s.logger.Error("request failed", "route", routeTemplate(r), "error", err, "request_id", requestIDFromContext(r.Context()))
		msg = "internal error"
	case http.StatusServiceUnavailable:
		s.logger.Warn("dependency unavailable", "route", routeTemplate(r), "error", err, "request_id", requestIDFromContext(r.Context()))
		msg = matcher.ErrSearchUnavailable.Error()
	}
	writeJSON(w, status, errorResponse{Message: msg, RequestID: requestIDFromContext(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
