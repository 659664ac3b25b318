// Package booking owns the booking lifecycle: PENDING → ACCEPTED → IN_PROGRESS → COMPLETED,
// with REJECTED and CANCELLED as the other terminal states.
//
// Each operation mutates one booking inside storage's per-row update, applies mechanic side
// effects after that commit, and only then publishes notifications. A notification that cannot
// be delivered never fails the operation.
package booking

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/mechanic-dispatch/internal/apperr"
	"github.com/example/mechanic-dispatch/internal/geo"
	"github.com/example/mechanic-dispatch/internal/models"
	"github.com/example/mechanic-dispatch/internal/observability"
	"github.com/example/mechanic-dispatch/internal/pricing"
	"github.com/example/mechanic-dispatch/internal/rating"
	"github.com/example/mechanic-dispatch/internal/storage"
)

const DefaultCancelCutoff = 2 * time.Hour

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role models.Role
}

type Notifier interface {
	Publish(subscriberID string, ev models.Event) bool
}

// EventLog receives every committed booking event, whether or not anyone is listening.
type EventLog interface {
	PublishEvent(ctx context.Context, ev models.Event) error
}

// RatingFolder folds one customer score into a locked mechanic row.
type RatingFolder interface {
	Apply(u *models.User, score int) error
}

type Service struct {
	Store   storage.Store
	Geo     geo.Geo
	Notify  Notifier
	Events  EventLog // optional
	Ratings RatingFolder
	Pricing pricing.Lookup
	Logger  *slog.Logger

	CancelCutoff   time.Duration
	SearchRadiusKm float64

	Now   func() time.Time
	NewID func() string
}

func NewService(store storage.Store, g geo.Geo, n Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Store:          store,
		Geo:            g,
		Notify:         n,
		Ratings:        rating.NewAggregator(store),
		Pricing:        pricing.RateCard{},
		Logger:         logger,
		CancelCutoff:   DefaultCancelCutoff,
		SearchRadiusKm: 10,
		Now:            time.Now,
		NewID:          uuid.NewString,
	}
}

type CreateRequest struct {
	CustomerID   string
	MechanicID   string
	Loc          models.Coord
	Description  string
	VehicleType  string
	VehicleModel string
	Subscription string
	ScheduledAt  *time.Time
}

// Create opens a PENDING booking for the customer. When MechanicID is set the mechanic is
// bound immediately, exactly as a following Assign would.
func (s *Service) Create(ctx context.Context, actor Actor, req CreateRequest) (b *models.Booking, err error) {
	defer s.observe(OpCreate, &err)

	if req.CustomerID == "" && actor.Role == models.RoleCustomer {
		req.CustomerID = actor.ID
	}
	if !(actor.Role == models.RoleDispatcher || (actor.Role == models.RoleCustomer && actor.ID == req.CustomerID)) {
		return nil, apperr.Unauthorized("only the customer or a dispatcher can create a booking")
	}
	if err := validateCoord(req.Loc); err != nil {
		return nil, err
	}
	sub, err := pricing.ParseSubscription(req.Subscription)
	if err != nil {
		return nil, err
	}
	customer, err := s.Store.GetUser(ctx, req.CustomerID)
	if apperr.Is(err, apperr.KindNotFound) || (err == nil && customer.Role != models.RoleCustomer) {
		return nil, apperr.NotFound("customer %s not found", req.CustomerID)
	}
	if err != nil {
		return nil, err
	}

	now := s.Now()
	b = &models.Booking{
		ID:           s.NewID(),
		CustomerID:   customer.ID,
		Status:       models.StatusPending,
		Description:  strings.TrimSpace(req.Description),
		VehicleType:  req.VehicleType,
		VehicleModel: req.VehicleModel,
		Loc:          req.Loc,
		Subscription: sub,
		ScheduledAt:  req.ScheduledAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.MechanicID != "" {
		mech, err := s.loadAssignable(ctx, req.MechanicID)
		if err != nil {
			return nil, err
		}
		if err := s.bind(b, mech); err != nil {
			return nil, err
		}
	}
	if err := s.Store.CreateBooking(ctx, b); err != nil {
		return nil, err
	}
	s.Logger.Info("booking created", "booking_id", b.ID, "customer_id", b.CustomerID, "mechanic_id", b.MechanicID)
	if b.MechanicID != "" {
		s.publish(ctx, b.MechanicID, models.EventAssigned, b)
	}
	return b, nil
}

// Assign binds a mechanic to a PENDING, unassigned booking and notifies the mechanic.
func (s *Service) Assign(ctx context.Context, actor Actor, bookingID, mechanicID string) (b *models.Booking, err error) {
	defer s.observe(OpAssign, &err)

	mech, err := s.loadAssignable(ctx, mechanicID)
	if err != nil {
		return nil, err
	}
	b, err = s.Store.UpdateBooking(ctx, bookingID, func(b *models.Booking) error {
		if !(actor.Role == models.RoleDispatcher || (actor.Role == models.RoleCustomer && actor.ID == b.CustomerID)) {
			return apperr.Unauthorized("only the booking's customer or a dispatcher can assign a mechanic")
		}
		if b.Status != models.StatusPending {
			return apperr.IllegalTransition("cannot assign booking %s in status %s", b.ID, b.Status)
		}
		if b.MechanicID != "" {
			return apperr.Conflict("booking %s already has mechanic %s", b.ID, b.MechanicID)
		}
		if err := s.bind(b, mech); err != nil {
			return err
		}
		b.UpdatedAt = s.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("booking assigned", "booking_id", b.ID, "mechanic_id", b.MechanicID, "price", b.Price)
	s.publish(ctx, b.MechanicID, models.EventAssigned, b)
	return b, nil
}

func (s *Service) Accept(ctx context.Context, actor Actor, bookingID string) (*models.Booking, error) {
	return s.mechanicTransition(ctx, actor, bookingID, OpAccept, func(b *models.Booking, now time.Time) {
		b.AcceptedAt = &now
	})
}

func (s *Service) Reject(ctx context.Context, actor Actor, bookingID string) (*models.Booking, error) {
	return s.mechanicTransition(ctx, actor, bookingID, OpReject, nil)
}

// Start marks the job in progress; the mechanic stops being offered to new customers.
func (s *Service) Start(ctx context.Context, actor Actor, bookingID string) (*models.Booking, error) {
	b, err := s.mechanicTransition(ctx, actor, bookingID, OpStart, nil)
	if err != nil {
		return nil, err
	}
	s.updateMechanic(ctx, b.MechanicID, func(m *models.MechanicProfile) { m.Available = false })
	return b, nil
}

// Complete finishes the job; the mechanic becomes available again and gains a completed job.
func (s *Service) Complete(ctx context.Context, actor Actor, bookingID string) (*models.Booking, error) {
	b, err := s.mechanicTransition(ctx, actor, bookingID, OpComplete, func(b *models.Booking, now time.Time) {
		b.CompletedAt = &now
	})
	if err != nil {
		return nil, err
	}
	s.updateMechanic(ctx, b.MechanicID, func(m *models.MechanicProfile) {
		m.Available = true
		m.CompletedJobs++
	})
	return b, nil
}

// mechanicTransition runs one of the transitions owned by the assigned mechanic and
// notifies the customer after commit.
func (s *Service) mechanicTransition(ctx context.Context, actor Actor, bookingID string, op Op, apply func(b *models.Booking, now time.Time)) (b *models.Booking, err error) {
	defer s.observe(op, &err)

	t := transitions[op]
	b, err = s.Store.UpdateBooking(ctx, bookingID, func(b *models.Booking) error {
		if b.MechanicID == "" {
			return apperr.IllegalTransition("cannot %s booking %s: no mechanic assigned", op, b.ID)
		}
		if actor.Role != t.Actor || actor.ID != b.MechanicID {
			return apperr.Unauthorized("only the assigned mechanic can %s booking %s", op, b.ID)
		}
		if err := checkTransition(op, b); err != nil {
			return err
		}
		now := s.Now()
		b.Status = t.To
		b.UpdatedAt = now
		if apply != nil {
			apply(b, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("booking transitioned", "booking_id", b.ID, "op", op, "status", b.Status)
	s.publish(ctx, b.CustomerID, t.Event, b)
	return b, nil
}

// Cancel is the customer's way out of a non-terminal booking. When the booking is scheduled,
// it is refused inside the cutoff window before the scheduled time.
func (s *Service) Cancel(ctx context.Context, actor Actor, bookingID string) (b *models.Booking, err error) {
	defer s.observe(OpCancel, &err)

	var wasInProgress bool
	b, err = s.Store.UpdateBooking(ctx, bookingID, func(b *models.Booking) error {
		if actor.Role != models.RoleCustomer || actor.ID != b.CustomerID {
			return apperr.Unauthorized("only the booking's customer can cancel booking %s", b.ID)
		}
		if err := checkTransition(OpCancel, b); err != nil {
			return err
		}
		now := s.Now()
		if b.ScheduledAt != nil && now.After(b.ScheduledAt.Add(-s.CancelCutoff)) {
			return apperr.Conflict("booking %s cannot be cancelled within %s of its scheduled time", b.ID, s.CancelCutoff)
		}
		wasInProgress = b.Status == models.StatusInProgress
		b.Status = models.StatusCancelled
		b.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("booking cancelled", "booking_id", b.ID, "customer_id", b.CustomerID)
	if wasInProgress {
		s.updateMechanic(ctx, b.MechanicID, func(m *models.MechanicProfile) { m.Available = true })
	}
	if b.MechanicID != "" {
		s.publish(ctx, b.MechanicID, models.EventCancelled, b)
	}
	return b, nil
}

type RateRequest struct {
	Role    models.Role
	Score   int
	Comment string
}

// Rate records one side's score of the other on a completed booking. Each side rates at most
// once; the customer's score and the mechanic's running rating are committed together.
func (s *Service) Rate(ctx context.Context, actor Actor, bookingID string, req RateRequest) (b *models.Booking, err error) {
	defer s.observe(OpRate, &err)

	if err := rating.ValidateScore(req.Score); err != nil {
		return nil, err
	}
	if req.Role != models.RoleCustomer && req.Role != models.RoleMechanic {
		return nil, apperr.Validation("rater role must be %s or %s", models.RoleCustomer, models.RoleMechanic)
	}
	if actor.Role != req.Role {
		return nil, apperr.Unauthorized("caller cannot rate as %s", req.Role)
	}

	cur, err := s.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := checkRate(actor, req.Role, cur); err != nil {
		return nil, err
	}

	score := req.Score
	var rated *models.User
	if req.Role == models.RoleMechanic {
		b, err = s.Store.UpdateBooking(ctx, bookingID, func(b *models.Booking) error {
			if err := checkRate(actor, req.Role, b); err != nil {
				return err
			}
			b.MechanicRating = &score
			b.MechanicFeedback = req.Comment
			b.UpdatedAt = s.Now()
			return nil
		})
	} else {
		// a completed booking keeps its mechanic, so the id read above is the one to lock
		b, rated, err = s.Store.UpdateBookingWithUser(ctx, bookingID, cur.MechanicID, func(b *models.Booking, mech *models.User) error {
			if err := checkRate(actor, req.Role, b); err != nil {
				return err
			}
			if err := s.Ratings.Apply(mech, score); err != nil {
				return err
			}
			b.CustomerRating = &score
			b.CustomerFeedback = req.Comment
			b.UpdatedAt = s.Now()
			return nil
		})
	}
	if err != nil {
		return nil, err
	}
	observability.RatingsTotal.WithLabelValues(strings.ToLower(string(req.Role))).Inc()
	if rated != nil {
		s.refreshIndex(ctx, rated)
	}
	counterpart := b.MechanicID
	if req.Role == models.RoleMechanic {
		counterpart = b.CustomerID
	}
	s.publish(ctx, counterpart, models.EventRated, b)
	return b, nil
}

func checkRate(actor Actor, role models.Role, b *models.Booking) error {
	if (role == models.RoleCustomer && actor.ID != b.CustomerID) ||
		(role == models.RoleMechanic && actor.ID != b.MechanicID) {
		return apperr.Unauthorized("caller is not the booking's %s", strings.ToLower(string(role)))
	}
	if b.Status != models.StatusCompleted {
		return apperr.IllegalTransition("cannot rate booking %s in status %s", b.ID, b.Status)
	}
	if role == models.RoleCustomer && b.CustomerRating != nil {
		return apperr.Conflict("booking %s was already rated by the customer", b.ID)
	}
	if role == models.RoleMechanic && b.MechanicRating != nil {
		return apperr.Conflict("booking %s was already rated by the mechanic", b.ID)
	}
	return nil
}

// Get returns a booking to one of its parties or a dispatcher.
func (s *Service) Get(ctx context.Context, actor Actor, bookingID string) (*models.Booking, error) {
	b, err := s.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleDispatcher && actor.ID != b.CustomerID && actor.ID != b.MechanicID {
		return nil, apperr.Unauthorized("booking %s belongs to someone else", bookingID)
	}
	return b, nil
}

// List narrows the filter to the caller's own bookings unless the caller is a dispatcher.
func (s *Service) List(ctx context.Context, actor Actor, f models.BookingFilter) ([]*models.Booking, error) {
	switch actor.Role {
	case models.RoleCustomer:
		if f.CustomerID != "" && f.CustomerID != actor.ID {
			return nil, apperr.Unauthorized("customers can only list their own bookings")
		}
		f.CustomerID = actor.ID
	case models.RoleMechanic:
		if f.MechanicID != "" && f.MechanicID != actor.ID {
			return nil, apperr.Unauthorized("mechanics can only list their own bookings")
		}
		f.MechanicID = actor.ID
	case models.RoleDispatcher:
	default:
		return nil, apperr.Unauthorized("unknown role %q", actor.Role)
	}
	return s.Store.ListBookings(ctx, f)
}

func (s *Service) loadAssignable(ctx context.Context, mechanicID string) (*models.User, error) {
	mech, err := s.Store.GetUser(ctx, mechanicID)
	if apperr.Is(err, apperr.KindNotFound) || (err == nil && !mech.IsMechanic()) {
		return nil, apperr.NotFound("mechanic %s not found", mechanicID)
	}
	if err != nil {
		return nil, err
	}
	if !mech.Mechanic.Available {
		return nil, apperr.Conflict("mechanic %s is not available", mechanicID)
	}
	return mech, nil
}

func (s *Service) bind(b *models.Booking, mech *models.User) error {
	price, err := s.Pricing.Quote(mech, b.Subscription)
	if err != nil {
		return err
	}
	b.MechanicID = mech.ID
	b.Price = price
	return nil
}

// updateMechanic applies a post-commit side effect to the mechanic's profile and refreshes
// the geo index. Failures are logged; the booking transition already happened.
func (s *Service) updateMechanic(ctx context.Context, mechanicID string, fn func(m *models.MechanicProfile)) {
	u, err := s.Store.UpdateUser(ctx, mechanicID, func(u *models.User) error {
		if !u.IsMechanic() {
			return apperr.NotFound("mechanic %s not found", mechanicID)
		}
		fn(u.Mechanic)
		u.UpdatedAt = s.Now()
		return nil
	})
	if err != nil {
		s.Logger.Error("mechanic side effect failed", "mechanic_id", mechanicID, "error", err)
		return
	}
	s.refreshIndex(ctx, u)
}

func (s *Service) refreshIndex(ctx context.Context, u *models.User) {
	if s.Geo == nil {
		return
	}
	if err := s.Geo.Upsert(ctx, u.Snapshot()); err != nil {
		s.Logger.Warn("geo index refresh failed", "mechanic_id", u.ID, "error", err)
	}
}

// publish makes exactly one delivery attempt to the subscriber and records the event.
func (s *Service) publish(ctx context.Context, subscriberID string, typ models.EventType, b *models.Booking) {
	ev := models.Event{
		Type:        typ,
		BookingID:   b.ID,
		Status:      b.Status,
		Loc:         b.Loc,
		Description: b.Description,
		At:          b.UpdatedAt,
	}
	if s.Notify != nil && subscriberID != "" {
		s.Notify.Publish(subscriberID, ev)
	}
	if s.Events != nil {
		if err := s.Events.PublishEvent(ctx, ev); err != nil {
			s.Logger.Warn("booking event not recorded", "booking_id", b.ID, "event", typ, "error", err)
		}
	}
}

func (s *Service) observe(op Op, err *error) {
	result := "ok"
	if *err != nil {
		result = string(apperr.KindOf(*err))
	}
	observability.BookingTransitions.WithLabelValues(string(op), result).Inc()
}

func validateCoord(c models.Coord) error {
	// radius is irrelevant here; reuse the query bounds check
	return geo.ValidateQuery(c.Lat, c.Lng, 1)
}
