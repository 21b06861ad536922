package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/backhaul-matching/internal/models"
)

type searchResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
	models.SearchResult
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q, err := parseSearchQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.searchTimeout)
	defer cancel()

	res, err := s.search.Search(ctx, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Success: true, Count: len(res.Matches), SearchResult: res})
}

// parseSearchQuery reads the query string. Missing coordinates are left nil
// for the matcher to reject; malformed numbers fail here.
func parseSearchQuery(v url.Values) (models.SearchQuery, error) {
	var q models.SearchQuery
	var err error
	if q.Pickup, err = coordinateParam(v, "pickupLng", "pickupLat"); err != nil {
		return q, err
	}
	if q.Drop, err = coordinateParam(v, "dropLng", "dropLat"); err != nil {
		return q, err
	}
	if raw := firstParam(v, "date"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return q, badRequest(fmt.Sprintf("invalid date %q", raw))
		}
		q.Date = &t
	}
	q.TruckType = strings.TrimSpace(v.Get("truckType"))

	// An unparsable deviation falls back to the default radius.
	if raw := firstParam(v, "deviationKm", "deviation"); raw != "" {
		if d, err := strconv.ParseFloat(raw, 64); err == nil {
			q.DeviationKm = &d
		}
	}
	q.SortBy = models.ParseSortKey(v.Get("sortBy"))
	q.Page, _ = strconv.Atoi(firstParam(v, "page"))
	q.PageSize, _ = strconv.Atoi(firstParam(v, "pageSize", "limit"))
	return q, nil
}

func coordinateParam(v url.Values, lngKey, latKey string) (*models.Coordinate, error) {
	rawLng, rawLat := strings.TrimSpace(v.Get(lngKey)), strings.TrimSpace(v.Get(latKey))
	if rawLng == "" || rawLat == "" {
		return nil, nil
	}
	lng, err := strconv.ParseFloat(rawLng, 64)
	if err != nil {
		return nil, badRequest(fmt.Sprintf("%s must be a number", lngKey))
	}
	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return nil, badRequest(fmt.Sprintf("%s must be a number", latKey))
	}
	return &models.Coordinate{Lng: lng, Lat: lat}, nil
}

func firstParam(v url.Values, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(v.Get(k)); s != "" {
			return s
		}
	}
	return ""
}

// parseDate accepts a full RFC 3339 timestamp or a calendar date, which is
// taken as midnight UTC.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}
