package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/backhaul-matching/internal/auth"
	"github.com/example/backhaul-matching/internal/booking"
	"github.com/example/backhaul-matching/internal/dispatch"
	"github.com/example/backhaul-matching/internal/geo"
	"github.com/example/backhaul-matching/internal/matcher"
	"github.com/example/backhaul-matching/internal/models"
	"github.com/example/backhaul-matching/internal/routes"
	"github.com/example/backhaul-matching/internal/storage"
)

const testSecret = "handler-secret"

var searchDay = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type bookingSink struct{ events []models.BookingEvent }

func (b *bookingSink) PublishBookingEvent(_ context.Context, ev models.BookingEvent) error {
	b.events = append(b.events, ev)
	return nil
}

type failingFinder struct{}

func (failingFinder) FindActiveRoutesNear(context.Context, models.Coordinate, float64, models.DateWindow, string, int) ([]models.PostedRoute, error) {
	return nil, errors.New("dial tcp 10.0.0.5:5432: connection refused")
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type testEnv struct {
	srv      *Server
	store    *storage.MemoryStore
	auth     *auth.Authenticator
	bookings *bookingSink
	wsreg    *dispatch.WSRegistry
}

func newTestEnv(t *testing.T, finder matcher.Finder) *testEnv {
	t.Helper()
	store := storage.NewMemoryStore()
	if finder == nil {
		finder = store
	}
	search, err := matcher.NewService(finder, matcher.DefaultConfig(), nil)
	require.NoError(t, err)

	a := auth.NewAuthenticator(testSecret, nil)
	sink := &bookingSink{}
	wsreg := dispatch.NewWSRegistry(nil)
	srv := NewServer(Deps{
		Search:   search,
		Routes:   routes.NewService(store, nil, nil),
		Bookings: booking.NewService(store, sink, nil, wsreg, 8, nil),
		Drivers:  store,
		Auth:     a,
		WSReg:    wsreg,
		Ready:    map[string]Pinger{"store": pinger{}},
	})
	return &testEnv{srv: srv, store: store, auth: a, bookings: sink, wsreg: wsreg}
}

func (e *testEnv) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := e.auth.Issue(auth.Identity{UserID: userID, Role: role, Name: "Test " + role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, target, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedRoute(t *testing.T, id string, origin, dest models.Coordinate, price, rating float64) {
	t.Helper()
	driverID := "drv-" + id
	require.NoError(t, e.store.UpsertDriver(context.Background(), models.DriverSummary{ID: driverID, Name: "Driver " + id, AverageRating: &rating}))
	require.NoError(t, e.store.SaveRoute(context.Background(), &models.PostedRoute{
		ID:            id,
		DriverID:      driverID,
		Origin:        models.Place{Address: "origin", Location: origin},
		Destination:   models.Place{Address: "destination", Location: dest},
		AvailableDate: searchDay,
		PricePerKm:    price,
		TruckType:     "container",
		Status:        models.RouteActive,
	}))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const searchURL = "/api/v1/routes/search?pickupLat=28.70&pickupLng=77.10&dropLat=19.08&dropLng=72.88&date=2026-03-01"

func TestSearchRequiresCustomerOrAdmin(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, searchURL, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, searchURL, env.token(t, "drv-1", auth.RoleDriver), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decode[errorResponse](t, rec)
	assert.False(t, body.Success)
	assert.NotEmpty(t, body.RequestID)

	rec = env.do(t, http.MethodGet, searchURL, env.token(t, "adm-1", auth.RoleAdmin), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSearchRanksAndPages(t *testing.T) {
	env := newTestEnv(t, nil)
	origin := models.Coordinate{Lng: 77.20, Lat: 28.75}
	dest := models.Coordinate{Lng: 72.90, Lat: 19.10}
	env.seedRoute(t, "cheap", origin, dest, 10, 3.0)
	env.seedRoute(t, "pricey", origin, dest, 90, 4.8)
	env.seedRoute(t, "far", models.Coordinate{Lng: 77.10, Lat: 29.42}, dest, 5, 5)

	tok := env.token(t, "cust-1", auth.RoleCustomer)

	rec := env.do(t, http.MethodGet, searchURL, tok, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[searchResponse](t, rec)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 50.0, res.DeviationKmUsed)
	require.Len(t, res.Matches, 2)
	assert.Equal(t, "cheap", res.Matches[0].Route.ID)
	assert.InDelta(t, 1150, res.Matches[0].Metrics.BookingDistanceKm, 30)

	rec = env.do(t, http.MethodGet, searchURL+"&sortBy=rating", tok, "")
	res = decode[searchResponse](t, rec)
	assert.Equal(t, "pricey", res.Matches[0].Route.ID)

	rec = env.do(t, http.MethodGet, searchURL+"&page=2&limit=1", tok, "")
	res = decode[searchResponse](t, rec)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 1, res.Count)

	rec = env.do(t, http.MethodGet, searchURL+"&page=9", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"matches":[]`)

	rec = env.do(t, http.MethodGet, searchURL+"&deviation=500", tok, "")
	res = decode[searchResponse](t, rec)
	assert.Equal(t, 100.0, res.DeviationKmUsed)
	assert.Equal(t, 3, res.Total)
}

func TestSearchFromRedisIndexUsesStoredRatings(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	idx := geo.NewRedisIndex(client, "api")
	env := newTestEnv(t, idx)
	idx.WithDrivers(env.store)

	origin := models.Coordinate{Lng: 77.20, Lat: 28.75}
	dest := models.Coordinate{Lng: 72.90, Lat: 19.10}
	for id, rating := range map[string]float64{"a-low": 2.0, "b-high": 4.9} {
		env.seedRoute(t, id, origin, dest, 20, rating)
		// Route events carry no profile; ratings live in the driver store.
		require.NoError(t, idx.Upsert(context.Background(), models.PostedRoute{
			ID:            id,
			DriverID:      "drv-" + id,
			Origin:        models.Place{Address: "origin", Location: origin},
			Destination:   models.Place{Address: "destination", Location: dest},
			AvailableDate: searchDay,
			PricePerKm:    20,
			TruckType:     "container",
			Status:        models.RouteActive,
		}))
	}

	tok := env.token(t, "cust-1", auth.RoleCustomer)
	for _, target := range []string{searchURL, searchURL + "&sortBy=rating"} {
		rec := env.do(t, http.MethodGet, target, tok, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		res := decode[searchResponse](t, rec)
		require.Len(t, res.Matches, 2)
		assert.Equal(t, "b-high", res.Matches[0].Route.ID, target)
		assert.Equal(t, 4.9, res.Matches[0].Route.Driver.Rating())
		assert.Equal(t, 2.0, res.Matches[1].Route.Driver.Rating())
	}
}

func TestSearchErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	tok := env.token(t, "cust-1", auth.RoleCustomer)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"missing drop", "/api/v1/routes/search?pickupLat=28.7&pickupLng=77.1", http.StatusBadRequest},
		{"non numeric", "/api/v1/routes/search?pickupLat=north&pickupLng=77.1&dropLat=19&dropLng=72", http.StatusBadRequest},
		{"out of range", "/api/v1/routes/search?pickupLat=128.7&pickupLng=77.1&dropLat=19&dropLng=72", http.StatusBadRequest},
		{"bad date", searchURL + "x", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.target, tok, "")
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.False(t, decode[errorResponse](t, rec).Success)
		})
	}

	t.Run("store down", func(t *testing.T) {
		down := newTestEnv(t, failingFinder{})
		rec := down.do(t, http.MethodGet, searchURL, down.token(t, "cust-1", auth.RoleCustomer), "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	})
}

func TestParseSearchQuery(t *testing.T) {
	v := url.Values{
		"pickupLat": {"28.7"}, "pickupLng": {"77.1"},
		"dropLat": {"19.08"}, "dropLng": {"72.88"},
		"date":      {"2026-03-01T06:30:00+05:30"},
		"truckType": {" container "},
		"deviation": {"abc"},
		"sortBy":    {"recommended"},
		"limit":     {"5"},
	}
	q, err := parseSearchQuery(v)
	require.NoError(t, err)
	assert.Equal(t, &models.Coordinate{Lng: 77.1, Lat: 28.7}, q.Pickup)
	assert.Equal(t, time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC), q.Date.UTC())
	assert.Equal(t, "container", q.TruckType)
	assert.Nil(t, q.DeviationKm, "unparsable deviation falls back to the default")
	assert.Equal(t, models.SortScore, q.SortBy)
	assert.Equal(t, 0, q.Page)
	assert.Equal(t, 5, q.PageSize)

	v.Set("deviationKm", "30")
	v.Set("pageSize", "7")
	q, err = parseSearchQuery(v)
	require.NoError(t, err)
	assert.Equal(t, 30.0, *q.DeviationKm)
	assert.Equal(t, 7, q.PageSize)
}

func TestRouteLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	driverTok := env.token(t, "drv-9", auth.RoleDriver)

	post := `{
		"origin": {"address": "Okhla, Delhi", "location": {"lng": 77.2090, "lat": 28.6139}},
		"destination": {"address": "Andheri, Mumbai", "location": {"lng": 72.8777, "lat": 19.0760}},
		"available_date": "2026-03-01T08:00:00Z",
		"price_per_km": 20,
		"truck_type": "container",
		"capacity_tons": 12
	}`
	rec := env.do(t, http.MethodPost, "/api/v1/routes", driverTok, post)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[struct {
		Route models.PostedRoute `json:"route"`
	}](t, rec).Route
	assert.Equal(t, "drv-9", created.DriverID)
	assert.Equal(t, 1148.0, created.TotalDistanceKm)

	rec = env.do(t, http.MethodPost, "/api/v1/routes", env.token(t, "cust-1", auth.RoleCustomer), post)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/routes", driverTok, `{"truck_type": "open", "bogus": 1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/routes/"+created.ID, env.token(t, "cust-1", auth.RoleCustomer), "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[struct {
		Route models.PostedRoute `json:"route"`
	}](t, rec).Route
	assert.Equal(t, 1, got.Views)

	rec = env.do(t, http.MethodGet, "/api/v1/routes/missing", driverTok, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/routes/"+created.ID, driverTok, `{"price_per_km": 25}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/routes/mine?status=active", driverTok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	rec = env.do(t, http.MethodGet, "/api/v1/routes/mine?status=lost", driverTok, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/routes/"+created.ID, env.token(t, "drv-other", auth.RoleDriver), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/routes/"+created.ID, driverTok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"cancelled"`)
}

func TestRequestBooking(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedRoute(t, "r1", models.Coordinate{Lng: 77.2090, Lat: 28.6139}, models.Coordinate{Lng: 75.7873, Lat: 26.9124}, 20, 4.5)
	custTok := env.token(t, "cust-1", auth.RoleCustomer)

	body := `{
		"route_id": "r1",
		"pickup": {"address": "Gurugram", "location": {"lng": 77.0266, "lat": 28.4595}},
		"dropoff": {"address": "Jaipur", "location": {"lng": 75.7873, "lat": 26.9124}},
		"scheduled_date": "2026-03-01T08:00:00Z",
		"goods_type": "furniture"
	}`
	rec := env.do(t, http.MethodPost, "/api/v1/bookings", custTok, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode[struct {
		Booking models.BookingRequest `json:"booking"`
	}](t, rec).Booking
	assert.Equal(t, "drv-r1", b.DriverID)
	assert.Equal(t, "cust-1", b.CustomerID)
	assert.Equal(t, 8.0, b.Quote.CommissionPercent)
	require.Len(t, env.bookings.events, 1)

	rec = env.do(t, http.MethodPost, "/api/v1/bookings", env.token(t, "drv-1", auth.RoleDriver), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	_, err := env.store.UpdateRouteStatus(context.Background(), "r1", models.RouteBooked)
	require.NoError(t, err)
	rec = env.do(t, http.MethodPost, "/api/v1/bookings", custTok, body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/bookings", custTok, `{"route_id": "r1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = env.do(t, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	env.srv.ready["redis"] = pinger{err: errors.New("connection refused")}
	rec = env.do(t, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"connection refused"`)
}

func TestDriverWebsocketReceivesBookingNotice(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.srv)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/drivers/drv-r1?token=" + env.token(t, "drv-r1", auth.RoleDriver)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.wsreg.Connected("drv-r1") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, env.wsreg.Notify("drv-r1", dispatch.Notification{Type: models.BookingRequested}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var n dispatch.Notification
	require.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, models.BookingRequested, n.Type)

	_, resp, err := websocket.DefaultDialer.Dial(strings.Replace(wsURL, "drivers/drv-r1", "drivers/drv-2", 1), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUpsertDriverProfile(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedRoute(t, "r1", models.Coordinate{Lng: 77.10, Lat: 28.70}, models.Coordinate{Lng: 75.79, Lat: 26.91}, 20, 4)
	adminTok := env.token(t, "ops-1", auth.RoleAdmin)

	rec := env.do(t, http.MethodPut, "/api/v1/drivers/drv-r1", adminTok, `{"name": "Ravi Kumar", "average_rating": 4.8, "total_ratings": 12}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/routes/r1", adminTok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[struct {
		Route models.PostedRoute `json:"route"`
	}](t, rec).Route
	assert.Equal(t, "Ravi Kumar", got.Driver.Name)
	assert.Equal(t, 4.8, got.Driver.Rating())

	rec = env.do(t, http.MethodPut, "/api/v1/drivers/drv-r1", adminTok, `{"average_rating": 7}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/drivers/drv-r1", env.token(t, "drv-r1", auth.RoleDriver), `{"name": "x"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminRouteStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedRoute(t, "r1", models.Coordinate{Lng: 77.10, Lat: 28.70}, models.Coordinate{Lng: 72.88, Lat: 19.08}, 20, 4)
	adminTok := env.token(t, "ops-1", auth.RoleAdmin)

	rec := env.do(t, http.MethodPatch, "/api/v1/routes/r1/status", adminTok, `{"status": "booked"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, searchURL, env.token(t, "cust-1", auth.RoleCustomer), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[searchResponse](t, rec).Total)

	rec = env.do(t, http.MethodPatch, "/api/v1/routes/r1/status", adminTok, `{"status": "parked"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/v1/routes/missing/status", adminTok, `{"status": "completed"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/v1/routes/r1/status", env.token(t, "drv-r1", auth.RoleDriver), `{"status": "active"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
