// Package mechanic manages mechanic presence: position reports, availability and discovery.
package mechanic

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/mechanic-dispatch/internal/apperr"
	"github.com/example/mechanic-dispatch/internal/geo"
	"github.com/example/mechanic-dispatch/internal/models"
	"github.com/example/mechanic-dispatch/internal/observability"
	"github.com/example/mechanic-dispatch/internal/storage"
)

// LocationPublisher forwards accepted position reports to other consumers.
type LocationPublisher interface {
	PublishLocation(ctx context.Context, u models.LocationUpdate) error
}

type Service struct {
	Store     storage.Store
	Geo       geo.Geo
	Publisher LocationPublisher // optional
	Logger    *slog.Logger
	Now       func() time.Time
}

func NewService(store storage.Store, g geo.Geo, pub LocationPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Store: store, Geo: g, Publisher: pub, Logger: logger, Now: time.Now}
}

// UpdateLocation persists the mechanic's position and makes it visible to nearby queries.
func (s *Service) UpdateLocation(ctx context.Context, mechanicID string, loc models.Coord) (*models.User, error) {
	if err := geo.ValidateQuery(loc.Lat, loc.Lng, 1); err != nil {
		return nil, err
	}
	u, err := s.update(ctx, mechanicID, func(m *models.MechanicProfile) {
		c := loc
		m.Loc = &c
	})
	if err != nil {
		return nil, err
	}
	if s.Publisher != nil {
		upd := models.LocationUpdate{
			MechanicID: u.ID,
			Loc:        loc,
			Available:  u.Mechanic.Available,
			Rating:     u.Mechanic.Rating,
			Reported:   u.UpdatedAt,
		}
		if err := s.Publisher.PublishLocation(ctx, upd); err != nil {
			s.Logger.Warn("location not forwarded", "mechanic_id", u.ID, "error", err)
		}
	}
	return u, nil
}

// SetAvailability toggles whether the mechanic is offered to customers. Going available is
// refused while one of the mechanic's jobs is in progress; completing or cancelling it frees them.
func (s *Service) SetAvailability(ctx context.Context, mechanicID string, available bool) (*models.User, error) {
	if available {
		busy, err := s.Store.ListBookings(ctx, models.BookingFilter{MechanicID: mechanicID, Status: models.StatusInProgress})
		if err != nil {
			return nil, err
		}
		if len(busy) > 0 {
			return nil, apperr.Conflict("mechanic %s has booking %s in progress", mechanicID, busy[0].ID)
		}
	}
	return s.update(ctx, mechanicID, func(m *models.MechanicProfile) { m.Available = available })
}

func (s *Service) update(ctx context.Context, mechanicID string, fn func(m *models.MechanicProfile)) (*models.User, error) {
	u, err := s.Store.UpdateUser(ctx, mechanicID, func(u *models.User) error {
		if !u.IsMechanic() {
			return apperr.NotFound("mechanic %s not found", mechanicID)
		}
		fn(u.Mechanic)
		u.UpdatedAt = s.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.Geo.Upsert(ctx, u.Snapshot()); err != nil {
		s.Logger.Warn("geo index update failed", "mechanic_id", u.ID, "error", err)
	}
	return u, nil
}

// Nearby returns available, positioned mechanics within radiusKm ordered by distance.
func (s *Service) Nearby(ctx context.Context, lat, lng, radiusKm float64) ([]models.NearbyMechanic, error) {
	if err := geo.ValidateQuery(lat, lng, radiusKm); err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := s.Geo.Nearby(ctx, lat, lng, radiusKm)
	observability.NearbyLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, apperr.Internal(err, "nearby query")
	}
	return out, nil
}

func (s *Service) List(ctx context.Context) ([]*models.User, error) {
	return s.Store.ListMechanics(ctx)
}

// Warm loads every stored mechanic into the geo index. Run once at startup.
func (s *Service) Warm(ctx context.Context) (int, error) {
	ms, err := s.Store.ListMechanics(ctx)
	if err != nil {
		return 0, err
	}
	for _, m := range ms {
		if err := s.Geo.Upsert(ctx, m.Snapshot()); err != nil {
			return 0, apperr.Internal(err, "warm geo index")
		}
	}
	return len(ms), nil
}
