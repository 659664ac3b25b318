package booking

import (
	"context"

	"github.com/example/mechanic-dispatch/internal/apperr"
	"github.com/example/mechanic-dispatch/internal/models"
)

// AutoAssign assigns the closest available mechanic whose own service radius covers the
// booking position. Candidates come from the geo index in its ranking order; a candidate that
// turned unavailable since the index last saw it is skipped.
func (s *Service) AutoAssign(ctx context.Context, actor Actor, bookingID string) (*models.Booking, error) {
	b, err := s.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !(actor.Role == models.RoleDispatcher || (actor.Role == models.RoleCustomer && actor.ID == b.CustomerID)) {
		return nil, apperr.Unauthorized("only the booking's customer or a dispatcher can assign a mechanic")
	}
	if b.Status != models.StatusPending || b.MechanicID != "" {
		return nil, apperr.IllegalTransition("booking %s is not awaiting a mechanic", b.ID)
	}

	cands, err := s.Geo.Nearby(ctx, b.Loc.Lat, b.Loc.Lng, s.SearchRadiusKm)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates(cands) {
		assigned, err := s.Assign(ctx, actor, bookingID, c.ID)
		switch {
		case err == nil:
			return assigned, nil
		case apperr.Is(err, apperr.KindConflict):
			// either the mechanic went busy or someone else assigned the booking first
			if cur, gerr := s.Store.GetBooking(ctx, bookingID); gerr == nil && cur.MechanicID != "" {
				return nil, err
			}
			s.Logger.Debug("auto-assign candidate skipped", "booking_id", bookingID, "mechanic_id", c.ID, "error", err)
		case apperr.Is(err, apperr.KindNotFound):
			s.Logger.Debug("auto-assign candidate vanished", "booking_id", bookingID, "mechanic_id", c.ID)
		default:
			return nil, err
		}
	}
	return nil, apperr.NotFound("no mechanics available near booking %s", bookingID)
}

// candidates keeps mechanics willing to travel the distance, preserving rank order.
func candidates(near []models.NearbyMechanic) []models.NearbyMechanic {
	out := near[:0:0]
	for _, m := range near {
		if m.ServiceRadiusKm > 0 && m.DistanceKm > m.ServiceRadiusKm {
			continue
		}
		out = append(out, m)
	}
	return out
}
