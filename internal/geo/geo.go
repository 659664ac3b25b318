package geo

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/example/mechanic-dispatch/internal/apperr"
	"github.com/example/mechanic-dispatch/internal/models"
	"github.com/example/mechanic-dispatch/internal/observability"
)

// EarthRadiusKm is the mean earth radius used by Haversine.
const EarthRadiusKm = 6371.0

// Geo is the minimal interface required by the booking service and handlers.
type Geo interface {
	Nearby(ctx context.Context, lat, lng, radiusKm float64) ([]models.NearbyMechanic, error)
	Upsert(ctx context.Context, m models.MechanicSnapshot) error
}

// Index keeps mechanic snapshots in memory. Updates are O(1); queries scan linearly,
// which is fine for the number of mechanics online in one metro area.
type Index struct {
	mu        sync.RWMutex
	mechanics map[string]models.MechanicSnapshot
}

func NewIndex() *Index {
	return &Index{mechanics: make(map[string]models.MechanicSnapshot)}
}

// Upsert replaces the mechanic's snapshot and refreshes the mechanics_online gauge, whichever
// service caused the change.
func (g *Index) Upsert(_ context.Context, m models.MechanicSnapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	m.Updated = time.Now()
	g.mechanics[m.ID] = m
	observability.MechanicsOnline.Set(float64(g.online()))
	return nil
}

func (g *Index) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.mechanics, id)
	observability.MechanicsOnline.Set(float64(g.online()))
}

// Online counts mechanics that would currently pass the candidate filter.
func (g *Index) Online() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.online()
}

func (g *Index) online() int {
	n := 0
	for _, m := range g.mechanics {
		if m.Available && m.Loc != nil {
			n++
		}
	}
	return n
}

func (g *Index) Nearby(_ context.Context, lat, lng, radiusKm float64) ([]models.NearbyMechanic, error) {
	if err := ValidateQuery(lat, lng, radiusKm); err != nil {
		return nil, err
	}
	g.mu.RLock()
	out := make([]models.NearbyMechanic, 0, len(g.mechanics))
	for _, m := range g.mechanics {
		if !m.Available || m.Loc == nil {
			continue
		}
		dist := Haversine(lat, lng, m.Loc.Lat, m.Loc.Lng)
		if dist > radiusKm {
			continue
		}
		out = append(out, models.NearbyMechanic{MechanicSnapshot: m, DistanceKm: dist})
	}
	g.mu.RUnlock()
	Rank(out)
	return out, nil
}

// ValidateQuery rejects coordinates off the globe and non-positive radii.
func ValidateQuery(lat, lng, radiusKm float64) error {
	switch {
	case math.IsNaN(lat) || lat < -90 || lat > 90:
		return apperr.Validation("latitude %v outside [-90, 90]", lat)
	case math.IsNaN(lng) || lng < -180 || lng > 180:
		return apperr.Validation("longitude %v outside [-180, 180]", lng)
	case math.IsNaN(radiusKm) || radiusKm <= 0:
		return apperr.Validation("radius must be > 0, got %v", radiusKm)
	}
	return nil
}

// Rank orders by ascending distance, then descending rating, then id.
func Rank(ms []models.NearbyMechanic) {
	sort.Slice(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		return a.ID < b.ID
	})
}

// Haversine great-circle distance in kilometres.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return EarthRadiusKm * 2 * math.Asin(math.Sqrt(math.Min(1, h)))
}
