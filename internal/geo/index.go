package geo

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/mmcloughlin/geohash"

	"github.com/example/backhaul-matching/internal/models"
)

// maxPrecision is the finest geohash level kept in the buckets (~4.9km cells).
const maxPrecision = 5

// Index is an in-memory proximity index over the origins of active routes.
// Routes are bucketed by origin geohash at every level up to maxPrecision so a
// query can pick the level whose 3x3 neighbourhood covers its radius.
type Index struct {
	mu      sync.RWMutex
	routes  map[string]models.PostedRoute
	hashes  map[string]string
	buckets [maxPrecision + 1]map[string]map[string]struct{}
}

func NewIndex() *Index {
	idx := &Index{
		routes: make(map[string]models.PostedRoute),
		hashes: make(map[string]string),
	}
	for p := 1; p <= maxPrecision; p++ {
		idx.buckets[p] = make(map[string]map[string]struct{})
	}
	return idx
}

// Upsert indexes r, or drops it when its status is no longer searchable.
func (g *Index) Upsert(r models.PostedRoute) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeLocked(r.ID)
	if !r.Status.Eligible() {
		return
	}
	hash := geohash.EncodeWithPrecision(r.Origin.Location.Lat, r.Origin.Location.Lng, maxPrecision)
	g.routes[r.ID] = r
	g.hashes[r.ID] = hash
	for p := 1; p <= maxPrecision; p++ {
		cell := hash[:p]
		ids, ok := g.buckets[p][cell]
		if !ok {
			ids = make(map[string]struct{})
			g.buckets[p][cell] = ids
		}
		ids[r.ID] = struct{}{}
	}
}

func (g *Index) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeLocked(id)
}

func (g *Index) removeLocked(id string) {
	hash, ok := g.hashes[id]
	if !ok {
		return
	}
	for p := 1; p <= maxPrecision; p++ {
		cell := hash[:p]
		if ids, ok := g.buckets[p][cell]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(g.buckets[p], cell)
			}
		}
	}
	delete(g.hashes, id)
	delete(g.routes, id)
}

func (g *Index) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.routes)
}

// FindActiveRoutesNear returns active routes whose origin lies within
// radiusKm of point, available inside window and of the given truck type
// (any type when empty), nearest first, at most limit of them.
func (g *Index) FindActiveRoutesNear(_ context.Context, point models.Coordinate, radiusKm float64, window models.DateWindow, truckType string, limit int) ([]models.PostedRoute, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	type pair struct {
		r    models.PostedRoute
		dist float64
	}
	var arr []pair
	consider := func(id string) {
		r := g.routes[id]
		if !window.Contains(r.AvailableDate) {
			return
		}
		if truckType != "" && !strings.EqualFold(r.TruckType, truckType) {
			return
		}
		if d := DistanceKm(r.Origin.Location, point); d <= radiusKm {
			arr = append(arr, pair{r, d})
		}
	}

	if p := lookupPrecision(point.Lat, radiusKm); p > 0 {
		center := geohash.EncodeWithPrecision(point.Lat, point.Lng, uint(p))
		seen := make(map[string]struct{}, 9)
		for _, cell := range append(geohash.Neighbors(center), center) {
			if _, dup := seen[cell]; dup {
				continue
			}
			seen[cell] = struct{}{}
			for id := range g.buckets[p][cell] {
				consider(id)
			}
		}
	} else {
		for id := range g.routes {
			consider(id)
		}
	}

	sort.Slice(arr, func(i, j int) bool {
		if arr[i].dist == arr[j].dist {
			return arr[i].r.ID < arr[j].r.ID
		}
		return arr[i].dist < arr[j].dist
	})
	if limit > 0 && len(arr) > limit {
		arr = arr[:limit]
	}
	out := make([]models.PostedRoute, 0, len(arr))
	for _, p := range arr {
		out = append(out, p.r)
	}
	return out, nil
}

// lookupPrecision picks the finest geohash level whose cells are at least
// radiusKm tall and wide around lat. Zero means no level is coarse enough
// and the caller should scan everything.
func lookupPrecision(lat, radiusKm float64) int {
	// the narrowest neighbour cell sits on the poleward side
	edgeLat := math.Min(90, math.Abs(lat)+radiusKm/KmPerDegreeLat)
	cosEdge := math.Cos(toRad(edgeLat))
	for p := maxPrecision; p >= 1; p-- {
		bits := 5 * p
		lngBits := (bits + 1) / 2
		latBits := bits / 2
		heightKm := 180 / math.Exp2(float64(latBits)) * KmPerDegreeLat
		widthKm := 360 / math.Exp2(float64(lngBits)) * KmPerDegreeLat * cosEdge
		if heightKm >= radiusKm && widthKm >= radiusKm {
			return p
		}
	}
	return 0
}
