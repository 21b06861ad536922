package matcher

import (
	"context"
	"time"

	"github.com/example/backhaul-matching/internal/models"
)

// Finder is the storage boundary: a coarse proximity query over active
// routes that returns each route with its driver summary attached.
type Finder interface {
	FindActiveRoutesNear(ctx context.Context, point models.Coordinate, radiusKm float64, window models.DateWindow, truckType string, limit int) ([]models.PostedRoute, error)
}

// Retriever narrows the route pool to a bounded candidate set. The radius is
// padded by BufferKm so routes whose origin is slightly off are not lost
// before the exact check; Limit caps the work done afterwards.
type Retriever struct {
	Finder   Finder
	BufferKm float64
	Limit    int
	Now      func() time.Time
}

func (r *Retriever) Candidates(ctx context.Context, pickup models.Coordinate, date *time.Time, truckType string, deviationKm float64) ([]models.PostedRoute, models.DateWindow, error) {
	from := r.now()
	if date != nil {
		from = *date
	}
	window := models.DayWindow(from)
	cands, err := r.Finder.FindActiveRoutesNear(ctx, pickup, deviationKm+r.BufferKm, window, truckType, r.Limit)
	if err != nil {
		return nil, window, err
	}
	return cands, window, nil
}

func (r *Retriever) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
