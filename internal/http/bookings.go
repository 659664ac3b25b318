package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/mechanic-dispatch/internal/apperr"
	"github.com/example/mechanic-dispatch/internal/booking"
	"github.com/example/mechanic-dispatch/internal/models"
)

type createBookingRequest struct {
	CustomerID   string     `json:"customer_id"`
	MechanicID   string     `json:"mechanic_id"`
	Lat          *float64   `json:"lat" validate:"required,latitude"`
	Lng          *float64   `json:"lng" validate:"required,longitude"`
	Description  string     `json:"description" validate:"max=2000"`
	VehicleType  string     `json:"vehicle_type" validate:"max=64"`
	VehicleModel string     `json:"vehicle_model" validate:"max=128"`
	Subscription string     `json:"subscription"`
	ScheduledAt  *time.Time `json:"scheduled_at"`
}

func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := readJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	b, err := s.Bookings.Create(r.Context(), actorFrom(r.Context()), booking.CreateRequest{
		CustomerID:   req.CustomerID,
		MechanicID:   req.MechanicID,
		Loc:          models.Coord{Lat: *req.Lat, Lng: *req.Lng},
		Description:  req.Description,
		VehicleType:  req.VehicleType,
		VehicleModel: req.VehicleModel,
		Subscription: req.Subscription,
		ScheduledAt:  req.ScheduledAt,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.Bookings.Get(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.BookingFilter{
		CustomerID: q.Get("customer_id"),
		MechanicID: q.Get("mechanic_id"),
	}
	if v := q.Get("status"); v != "" {
		st, ok := models.ParseStatus(v)
		if !ok {
			s.fail(w, r, apperr.Validation("unknown status %q", v))
			return
		}
		f.Status = st
	}
	s.listBookings(w, r, f)
}

func (s *Server) handlePendingBookings(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if actor.Role != models.RoleMechanic {
		s.fail(w, r, apperr.Unauthorized("only mechanics have pending assignments"))
		return
	}
	s.listBookings(w, r, models.BookingFilter{MechanicID: actor.ID, Status: models.StatusPending})
}

func (s *Server) listBookings(w http.ResponseWriter, r *http.Request, f models.BookingFilter) {
	bs, err := s.Bookings.List(r.Context(), actorFrom(r.Context()), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bs})
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	b, err := s.Bookings.Assign(r.Context(), actorFrom(r.Context()), vars["id"], vars["mechanicId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleAutoAssign(w http.ResponseWriter, r *http.Request) {
	b, err := s.Bookings.AutoAssign(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type transitionFunc func(ctx context.Context, actor booking.Actor, bookingID string) (*models.Booking, error)

// transition adapts a bodiless state machine operation to a handler.
func (s *Server) transition(op transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := op(r.Context(), actorFrom(r.Context()), mux.Vars(r)["id"])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

type rateRequest struct {
	Role    string `json:"role"`
	Score   int    `json:"score" validate:"required"`
	Comment string `json:"comment" validate:"max=2000"`
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := readJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	actor := actorFrom(r.Context())
	role := actor.Role
	if req.Role != "" {
		parsed, ok := models.ParseRole(req.Role)
		if !ok {
			s.fail(w, r, apperr.Validation("unknown rater role %q", req.Role))
			return
		}
		role = parsed
	}
	b, err := s.Bookings.Rate(r.Context(), actor, mux.Vars(r)["id"], booking.RateRequest{
		Role:    role,
		Score:   req.Score,
		Comment: req.Comment,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
