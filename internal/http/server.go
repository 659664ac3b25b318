package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/mechanic-dispatch/internal/apperr"
	"github.com/example/mechanic-dispatch/internal/auth"
	"github.com/example/mechanic-dispatch/internal/booking"
	"github.com/example/mechanic-dispatch/internal/mechanic"
	"github.com/example/mechanic-dispatch/internal/notify"
	"github.com/example/mechanic-dispatch/internal/storage"
)

// Deps are the services the API exposes.
type Deps struct {
	Bookings  *booking.Service
	Mechanics *mechanic.Service
	Auth      *auth.Service
	Store     storage.Store
	Notify    *notify.Registry

	SearchRadiusKm float64
	StreamPing     time.Duration
}

type Server struct {
	Deps
	tokens   *auth.Tokens
	logger   *slog.Logger
	mux      *mux.Router
	upgrader websocket.Upgrader
}

func NewServer(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.SearchRadiusKm <= 0 {
		deps.SearchRadiusKm = 10
	}
	if deps.StreamPing <= 0 {
		deps.StreamPing = 25 * time.Second
	}
	s := &Server{
		Deps:     deps,
		tokens:   deps.Auth.Tokens,
		logger:   logger,
		mux:      mux.NewRouter(),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.mux.HandleFunc("/users", s.handleRegister).Methods(http.MethodPost)
	s.mux.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	s.mux.HandleFunc("/pricing", s.handlePricing).Methods(http.MethodGet)

	api := s.mux.NewRoute().Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/users/me", s.handleMe).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", s.handleGetUser).Methods(http.MethodGet)

	api.HandleFunc("/bookings", s.handleCreateBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings", s.handleListBookings).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}", s.handleGetBooking).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}/assign/{mechanicId}", s.handleAssign).Methods(http.MethodPut)
	api.HandleFunc("/bookings/{id}/auto-assign", s.handleAutoAssign).Methods(http.MethodPut)
	api.HandleFunc("/bookings/{id}/accept", s.transition(s.Bookings.Accept)).Methods(http.MethodPut)
	api.HandleFunc("/bookings/{id}/reject", s.transition(s.Bookings.Reject)).Methods(http.MethodPut)
	api.HandleFunc("/bookings/{id}/start", s.transition(s.Bookings.Start)).Methods(http.MethodPut)
	api.HandleFunc("/bookings/{id}/complete", s.transition(s.Bookings.Complete)).Methods(http.MethodPut)
	api.HandleFunc("/bookings/{id}/cancel", s.transition(s.Bookings.Cancel)).Methods(http.MethodPut)
	api.HandleFunc("/bookings/{id}/rate", s.handleRate).Methods(http.MethodPut)

	api.HandleFunc("/mechanics", s.handleListMechanics).Methods(http.MethodGet)
	api.HandleFunc("/mechanics/nearby", s.handleNearby).Methods(http.MethodGet)
	api.HandleFunc("/mechanics/me/location", s.handleUpdateLocation).Methods(http.MethodPut)
	api.HandleFunc("/mechanics/me/availability", s.handleSetAvailability).Methods(http.MethodPut)
	api.HandleFunc("/mechanics/me/bookings/pending", s.handlePendingBookings).Methods(http.MethodGet)

	api.HandleFunc("/notifications/stream", s.handleEventStream).Methods(http.MethodGet)
	api.HandleFunc("/ws/notifications", s.handleWS).Methods(http.MethodGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// fail writes err to the client and logs anything outside the caller-facing taxonomy.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", requestIDFromContext(r.Context()), "error", err)
	}
	writeError(w, err)
}
