package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/backhaul-matching/internal/geo"
	"github.com/example/backhaul-matching/internal/models"
)

var ErrNotFound = errors.New("not found")

// RouteStore defines persistence operations for posted routes.
type RouteStore interface {
	SaveRoute(ctx context.Context, r *models.PostedRoute) error
	GetRoute(ctx context.Context, id string) (*models.PostedRoute, error)
	UpdateRouteStatus(ctx context.Context, id string, status models.RouteStatus) (*models.PostedRoute, error)
	IncrementViews(ctx context.Context, id string) error
	ListDriverRoutes(ctx context.Context, driverID string, status models.RouteStatus, page, limit int) ([]models.PostedRoute, int, error)
	FindActiveRoutesNear(ctx context.Context, point models.Coordinate, radiusKm float64, window models.DateWindow, truckType string, limit int) ([]models.PostedRoute, error)
}

// MemoryStore keeps routes in process. Proximity queries go through a
// geo.Index that only ever holds the active routes.
type MemoryStore struct {
	mu      sync.RWMutex
	routes  map[string]*models.PostedRoute
	drivers map[string]models.DriverSummary
	index   *geo.Index
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		routes:  make(map[string]*models.PostedRoute),
		drivers: make(map[string]models.DriverSummary),
		index:   geo.NewIndex(),
	}
}

// UpsertDriver records the profile summary attached to that driver's routes.
func (m *MemoryStore) UpsertDriver(_ context.Context, d models.DriverSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.ID] = d
	for _, r := range m.routes {
		if r.DriverID == d.ID {
			r.Driver = d
			m.index.Upsert(*r)
		}
	}
	return nil
}

// GetDrivers returns the known profiles among ids. Unknown ids are absent
// from the result.
func (m *MemoryStore) GetDrivers(_ context.Context, ids []string) (map[string]models.DriverSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]models.DriverSummary, len(ids))
	for _, id := range ids {
		if d, ok := m.drivers[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveRoute(_ context.Context, r *models.PostedRoute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	if d, ok := m.drivers[cp.DriverID]; ok {
		cp.Driver = d
	}
	m.routes[cp.ID] = &cp
	m.index.Upsert(cp)
	return nil
}

func (m *MemoryStore) GetRoute(_ context.Context, id string) (*models.PostedRoute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.routes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) UpdateRouteStatus(_ context.Context, id string, status models.RouteStatus) (*models.PostedRoute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return nil, ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = time.Now()
	m.index.Upsert(*r)
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) IncrementViews(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return ErrNotFound
	}
	r.Views++
	return nil
}

func (m *MemoryStore) ListDriverRoutes(_ context.Context, driverID string, status models.RouteStatus, page, limit int) ([]models.PostedRoute, int, error) {
	m.mu.RLock()
	var all []models.PostedRoute
	for _, r := range m.routes {
		if r.DriverID != driverID || (status != "" && r.Status != status) {
			continue
		}
		all = append(all, *r)
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	total := len(all)
	start := (page - 1) * limit
	if page < 1 || limit < 1 || start >= total {
		return []models.PostedRoute{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (m *MemoryStore) FindActiveRoutesNear(ctx context.Context, point models.Coordinate, radiusKm float64, window models.DateWindow, truckType string, limit int) ([]models.PostedRoute, error) {
	return m.index.FindActiveRoutesNear(ctx, point, radiusKm, window, truckType, limit)
}
