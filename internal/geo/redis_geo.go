package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/backhaul-matching/internal/models"
)

const (
	dayLayout = "2006-01-02"
	docBatch  = 200
)

// DriverLookup resolves the current profile summaries for a set of drivers.
type DriverLookup interface {
	GetDrivers(ctx context.Context, ids []string) (map[string]models.DriverSummary, error)
}

// RedisIndex keeps active routes in Redis GEO sets, one per available day and
// one per day and truck type, with the route document stored beside them.
type RedisIndex struct {
	client  *redis.Client
	prefix  string
	drivers DriverLookup
}

func NewRedisIndex(client *redis.Client, prefix string) *RedisIndex {
	if prefix == "" {
		prefix = "routes"
	}
	return &RedisIndex{client: client, prefix: prefix}
}

// WithDrivers makes search results carry the driver profiles held by lookup
// instead of the snapshot embedded in the indexed route event.
func (r *RedisIndex) WithDrivers(lookup DriverLookup) *RedisIndex {
	r.drivers = lookup
	return r
}

func (r *RedisIndex) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Upsert writes the route into the day sets, or removes it when it is no
// longer searchable. A previously indexed copy is always removed first so a
// changed date or truck type does not leave stale members behind.
func (r *RedisIndex) Upsert(ctx context.Context, route models.PostedRoute) error {
	if err := r.Remove(ctx, route.ID); err != nil {
		return err
	}
	if !route.Status.Eligible() {
		return nil
	}
	doc, err := json.Marshal(route)
	if err != nil {
		return fmt.Errorf("encode route %s: %w", route.ID, err)
	}
	loc := &redis.GeoLocation{
		Name:      route.ID,
		Longitude: route.Origin.Location.Lng,
		Latitude:  route.Origin.Location.Lat,
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, key := range r.geoKeys(route) {
			p.GeoAdd(ctx, key, loc)
		}
		p.Set(ctx, r.docKey(route.ID), doc, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("index route %s: %w", route.ID, err)
	}
	return nil
}

func (r *RedisIndex) Remove(ctx context.Context, id string) error {
	prev, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	if prev == nil {
		return nil
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, key := range r.geoKeys(*prev) {
			p.ZRem(ctx, key, id)
		}
		p.Del(ctx, r.docKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("unindex route %s: %w", id, err)
	}
	return nil
}

// FindActiveRoutesNear implements the coarse proximity query. Each day set
// overlapping the window is searched with GEORADIUS; the merged hits are then
// checked against the exact window, status and truck type. limit caps the
// routes that pass those checks, not the raw GEO hits.
func (r *RedisIndex) FindActiveRoutesNear(ctx context.Context, point models.Coordinate, radiusKm float64, window models.DateWindow, truckType string, limit int) ([]models.PostedRoute, error) {
	dist := make(map[string]float64)
	for _, day := range daysIn(window) {
		key := r.dayKey(day, truckType)
		res, err := r.client.GeoRadius(ctx, key, point.Lng, point.Lat, &redis.GeoRadiusQuery{
			Radius:   radiusKm,
			Unit:     "km",
			WithDist: true,
			Sort:     "ASC",
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("georadius %s: %w", key, err)
		}
		for _, g := range res {
			if d, ok := dist[g.Name]; !ok || g.Dist < d {
				dist[g.Name] = g.Dist
			}
		}
	}
	if len(dist) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(dist))
	for id := range dist {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if dist[ids[i]] == dist[ids[j]] {
			return ids[i] < ids[j]
		}
		return dist[ids[i]] < dist[ids[j]]
	})

	var out []models.PostedRoute
	for len(ids) > 0 && (limit <= 0 || len(out) < limit) {
		n := min(len(ids), docBatch)
		batch, err := r.loadMatching(ctx, ids[:n], window, truckType)
		if err != nil {
			return nil, err
		}
		ids = ids[n:]
		out = append(out, batch...)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if err := r.attachDrivers(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// loadMatching fetches the documents for ids, in order, keeping those that
// are still searchable inside window.
func (r *RedisIndex) loadMatching(ctx context.Context, ids []string, window models.DateWindow, truckType string) ([]models.PostedRoute, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.docKey(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load route docs: %w", err)
	}

	out := make([]models.PostedRoute, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var route models.PostedRoute
		if err := json.Unmarshal([]byte(s), &route); err != nil {
			return nil, fmt.Errorf("decode route doc: %w", err)
		}
		if !route.Status.Eligible() || !window.Contains(route.AvailableDate) {
			continue
		}
		if truckType != "" && !strings.EqualFold(route.TruckType, truckType) {
			continue
		}
		out = append(out, route)
	}
	return out, nil
}

func (r *RedisIndex) attachDrivers(ctx context.Context, routes []models.PostedRoute) error {
	if r.drivers == nil || len(routes) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(routes))
	ids := make([]string, 0, len(routes))
	for _, route := range routes {
		if route.DriverID != "" && !seen[route.DriverID] {
			seen[route.DriverID] = true
			ids = append(ids, route.DriverID)
		}
	}
	profiles, err := r.drivers.GetDrivers(ctx, ids)
	if err != nil {
		return fmt.Errorf("load drivers: %w", err)
	}
	for i := range routes {
		if d, ok := profiles[routes[i].DriverID]; ok {
			routes[i].Driver = d
		}
	}
	return nil
}

func (r *RedisIndex) load(ctx context.Context, id string) (*models.PostedRoute, error) {
	b, err := r.client.Get(ctx, r.docKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load route %s: %w", id, err)
	}
	var route models.PostedRoute
	if err := json.Unmarshal(b, &route); err != nil {
		return nil, fmt.Errorf("decode route %s: %w", id, err)
	}
	return &route, nil
}

func (r *RedisIndex) geoKeys(route models.PostedRoute) []string {
	day := route.AvailableDate.UTC().Format(dayLayout)
	return []string{r.dayKey(day, ""), r.dayKey(day, route.TruckType)}
}

func (r *RedisIndex) dayKey(day, truckType string) string {
	if truckType == "" {
		return r.prefix + ":geo:" + day
	}
	return r.prefix + ":geo:" + day + ":" + strings.ToLower(truckType)
}

func (r *RedisIndex) docKey(id string) string { return r.prefix + ":doc:" + id }

// daysIn lists the UTC calendar days touched by the half-open window.
func daysIn(w models.DateWindow) []string {
	if !w.To.After(w.From) {
		return nil
	}
	var days []string
	last := w.To.Add(-time.Nanosecond).UTC()
	for d := w.From.UTC().Truncate(24 * time.Hour); !d.After(last); d = d.Add(24 * time.Hour) {
		days = append(days, d.Format(dayLayout))
	}
	return days
}
