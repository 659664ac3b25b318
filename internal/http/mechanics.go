package httpapi

import (
	"net/http"
	"strconv"

	"github.com/example/mechanic-dispatch/internal/apperr"
	"github.com/example/mechanic-dispatch/internal/booking"
	"github.com/example/mechanic-dispatch/internal/models"
)

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := floatParam(q.Get("lat"), "lat", nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	lng, err := floatParam(q.Get("lng"), "lng", nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	radius, err := floatParam(q.Get("radius"), "radius", &s.SearchRadiusKm)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	near, err := s.Mechanics.Nearby(r.Context(), lat, lng, radius)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mechanics": near})
}

// floatParam parses a query value; def is used when the value is absent, otherwise it is required.
func floatParam(v, name string, def *float64) (float64, error) {
	if v == "" {
		if def != nil {
			return *def, nil
		}
		return 0, apperr.Validation("%s is required", name)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, apperr.Validation("%s must be a number", name)
	}
	return f, nil
}

func (s *Server) handleListMechanics(w http.ResponseWriter, r *http.Request) {
	ms, err := s.Mechanics.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mechanics": ms})
}

type locationRequest struct {
	Lat *float64 `json:"lat" validate:"required,latitude"`
	Lng *float64 `json:"lng" validate:"required,longitude"`
}

func (s *Server) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireMechanic(w, r)
	if !ok {
		return
	}
	var req locationRequest
	if err := readJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.Mechanics.UpdateLocation(r.Context(), actor.ID, models.Coord{Lat: *req.Lat, Lng: *req.Lng})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type availabilityRequest struct {
	Available *bool `json:"available" validate:"required"`
}

func (s *Server) handleSetAvailability(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireMechanic(w, r)
	if !ok {
		return
	}
	var req availabilityRequest
	if err := readJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.Mechanics.SetAvailability(r.Context(), actor.ID, *req.Available)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) requireMechanic(w http.ResponseWriter, r *http.Request) (actor booking.Actor, ok bool) {
	actor = actorFrom(r.Context())
	if actor.Role != models.RoleMechanic {
		s.fail(w, r, apperr.Unauthorized("only mechanics can update their presence"))
		return actor, false
	}
	return actor, true
}
