package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/mechanic-dispatch/internal/apperr"
	"github.com/example/mechanic-dispatch/internal/auth"
	"github.com/example/mechanic-dispatch/internal/models"
	"github.com/example/mechanic-dispatch/internal/pricing"
)

type registerRequest struct {
	Name            string   `json:"name" validate:"required,max=128"`
	Email           string   `json:"email" validate:"required,email"`
	Password        string   `json:"password" validate:"required,min=6,max=72"`
	Phone           string   `json:"phone" validate:"max=32"`
	Role            string   `json:"role" validate:"required,oneof=CUSTOMER MECHANIC customer mechanic"`
	HourlyRate      float64  `json:"hourly_rate" validate:"gte=0"`
	MonthlyRate     float64  `json:"monthly_rate" validate:"gte=0"`
	YearlyRate      float64  `json:"yearly_rate" validate:"gte=0"`
	ServiceRadiusKm float64  `json:"service_radius_km" validate:"gte=0"`
	Specialties     []string `json:"specialties"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := readJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.Auth.Register(r.Context(), auth.RegisterRequest{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		Phone:           req.Phone,
		Role:            req.Role,
		HourlyRate:      req.HourlyRate,
		MonthlyRate:     req.MonthlyRate,
		YearlyRate:      req.YearlyRate,
		ServiceRadiusKm: req.ServiceRadiusKm,
		Specialties:     req.Specialties,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	token, u, err := s.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": u})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.writeUser(w, r, actorFrom(r.Context()).ID)
}

// handleGetUser serves the caller's own profile, any mechanic's public profile, or anyone to a dispatcher.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	s.writeUser(w, r, mux.Vars(r)["id"])
}

func (s *Server) writeUser(w http.ResponseWriter, r *http.Request, id string) {
	u, err := s.Store.GetUser(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	actor := actorFrom(r.Context())
	if actor.ID != u.ID && actor.Role != models.RoleDispatcher && !u.IsMechanic() {
		s.fail(w, r, apperr.Unauthorized("cannot view user %s", id))
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handlePricing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, pricing.Catalogue())
}
