package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/backhaul-matching/internal/auth"
	"github.com/example/backhaul-matching/internal/booking"
	"github.com/example/backhaul-matching/internal/dispatch"
	"github.com/example/backhaul-matching/internal/matcher"
	"github.com/example/backhaul-matching/internal/models"
	"github.com/example/backhaul-matching/internal/routes"
)

// Pinger is a dependency checked by /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DriverDirectory keeps the driver profile copy used for ranking.
type DriverDirectory interface {
	UpsertDriver(ctx context.Context, d models.DriverSummary) error
}

type Deps struct {
	Search        *matcher.Service
	Routes        *routes.Service
	Bookings      *booking.Service
	Drivers       DriverDirectory
	Auth          *auth.Authenticator
	WSReg         *dispatch.WSRegistry
	Ready         map[string]Pinger
	SearchTimeout time.Duration
	Logger        *slog.Logger
}

type Server struct {
	search        *matcher.Service
	routes        *routes.Service
	bookings      *booking.Service
	drivers       DriverDirectory
	auth          *auth.Authenticator
	wsreg         *dispatch.WSRegistry
	ready         map[string]Pinger
	searchTimeout time.Duration
	logger        *slog.Logger
	mux           *mux.Router
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Auth == nil {
		d.Auth = auth.NewAuthenticator("", d.Logger)
	}
	if d.WSReg == nil {
		d.WSReg = dispatch.NewWSRegistry(d.Logger)
	}
	if d.SearchTimeout <= 0 {
		d.SearchTimeout = 3 * time.Second
	}
	s := &Server{
		search:        d.Search,
		routes:        d.Routes,
		bookings:      d.Bookings,
		drivers:       d.Drivers,
		auth:          d.Auth,
		wsreg:         d.WSReg,
		ready:         d.Ready,
		searchTimeout: d.SearchTimeout,
		logger:        d.Logger,
		mux:           mux.NewRouter(),
	}
	s.registerMiddleware()
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Handle("/routes/search", s.withRole(s.handleSearch, auth.RoleCustomer, auth.RoleAdmin)).Methods(http.MethodGet)
	api.Handle("/routes/mine", s.withRole(s.handleMyRoutes, auth.RoleDriver)).Methods(http.MethodGet)
	api.Handle("/routes", s.withRole(s.handlePostRoute, auth.RoleDriver)).Methods(http.MethodPost)
	api.Handle("/routes/{id}", s.withRole(s.handleGetRoute)).Methods(http.MethodGet)
	api.Handle("/routes/{id}", s.withRole(s.handleEditRoute, auth.RoleDriver)).Methods(http.MethodPut)
	api.Handle("/routes/{id}", s.withRole(s.handleCancelRoute, auth.RoleDriver)).Methods(http.MethodDelete)
	api.Handle("/routes/{id}/status", s.withRole(s.handleRouteStatus, auth.RoleAdmin)).Methods(http.MethodPatch)
	api.Handle("/bookings", s.withRole(s.handleRequestBooking, auth.RoleCustomer)).Methods(http.MethodPost)
	if s.drivers != nil {
		api.Handle("/drivers/{id}", s.withRole(s.handleUpsertDriver, auth.RoleAdmin)).Methods(http.MethodPut)
	}

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/drivers/{driver_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handlePostRoute(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	var in routes.PostInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	route, err := s.routes.Post(r.Context(), models.DriverSummary{ID: id.UserID, Name: id.Name}, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "route": route})
}

func (s *Server) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	route, err := s.routes.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "route": route})
}

func (s *Server) handleEditRoute(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	var u routes.Update
	if err := decodeJSON(r, &u); err != nil {
		s.writeError(w, r, err)
		return
	}
	route, err := s.routes.Edit(r.Context(), id.UserID, mux.Vars(r)["id"], u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "route": route})
}

func (s *Server) handleCancelRoute(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	route, err := s.routes.Cancel(r.Context(), id.UserID, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "route cancelled", "route": route})
}

func (s *Server) handleRouteStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	status, err := models.ParseRouteStatus(body.Status)
	if err != nil {
		s.writeError(w, r, badRequest(err.Error()))
		return
	}
	route, err := s.routes.UpdateStatus(r.Context(), mux.Vars(r)["id"], status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "route": route})
}

func (s *Server) handleMyRoutes(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	q := r.URL.Query()
	var status models.RouteStatus
	if v := q.Get("status"); v != "" {
		st, err := models.ParseRouteStatus(v)
		if err != nil {
			s.writeError(w, r, badRequest(err.Error()))
			return
		}
		status = st
	}
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	list, total, err := s.routes.ListMine(r.Context(), id.UserID, status, page, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": len(list), "total": total, "routes": list})
}

func (s *Server) handleRequestBooking(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	var in booking.RequestInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.bookings.Request(r.Context(), booking.Customer{ID: id.UserID, Name: id.Name}, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "booking request sent", "booking": b})
}

// handleUpsertDriver syncs a driver's profile summary from the account service.
func (s *Server) handleUpsertDriver(w http.ResponseWriter, r *http.Request) {
	var d models.DriverSummary
	if err := decodeJSON(r, &d); err != nil {
		s.writeError(w, r, err)
		return
	}
	d.ID = mux.Vars(r)["id"]
	if d.AverageRating != nil && (*d.AverageRating < 0 || *d.AverageRating > 5) {
		s.writeError(w, r, badRequest("average_rating must be within [0, 5]"))
		return
	}
	if err := s.drivers.UpsertDriver(r.Context(), d); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "driver": d})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	checks := make(map[string]string, len(s.ready))
	status := http.StatusOK
	for name, p := range s.ready {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"ready": status == http.StatusOK, "checks": checks})
}

var upgrader = websocket.Upgrader{}

// handleWS registers the driver's notification socket. Browsers cannot set
// headers on the upgrade request, so a token query parameter is accepted too.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	id, err := s.auth.Authenticate(r)
	if err != nil && s.auth.Enabled() {
		if tok := r.URL.Query().Get("token"); tok != "" {
			id, err = s.auth.Parse(tok)
		}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if id.UserID != driverID && !id.HasRole(auth.RoleAdmin) {
		s.writeError(w, r, auth.ErrForbidden)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "driver_id", driverID, "error", err)
		return
	}
	s.wsreg.Add(driverID, conn)
	defer func() {
		s.wsreg.Remove(driverID, conn)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				s.logger.Debug("ws read ended", "driver_id", driverID, "error", err)
			}
			return
		}
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body: " + err.Error())
	}
	return nil
}
