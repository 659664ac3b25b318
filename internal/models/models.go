package models

import (
	"strings"
	"time"
)

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Role string

const (
	RoleCustomer   Role = "CUSTOMER"
	RoleMechanic   Role = "MECHANIC"
	RoleDispatcher Role = "DISPATCHER"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleCustomer, RoleMechanic, RoleDispatcher:
		return r, true
	}
	return "", false
}

// MechanicProfile holds the capability fields only mechanics carry.
type MechanicProfile struct {
	Loc             *Coord   `json:"loc,omitempty"` // nil until the first location update
	Available       bool     `json:"available"`
	Rating          float64  `json:"rating"`
	RatingCount     int      `json:"rating_count"`
	CompletedJobs   int      `json:"completed_jobs"`
	ServiceRadiusKm float64  `json:"service_radius_km"`
	Specialties     []string `json:"specialties,omitempty"`
	HourlyRate      float64  `json:"hourly_rate"`
	MonthlyRate     float64  `json:"monthly_rate"`
	YearlyRate      float64  `json:"yearly_rate"`
}

// User is a customer, a mechanic or a dispatcher. Mechanic is non-nil iff Role is RoleMechanic.
type User struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Email        string           `json:"email"`
	PasswordHash string           `json:"-"`
	Phone        string           `json:"phone,omitempty"`
	Role         Role             `json:"role"`
	Mechanic     *MechanicProfile `json:"mechanic,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func (u *User) IsMechanic() bool { return u.Role == RoleMechanic && u.Mechanic != nil }

// Clone returns a deep copy so callers never share profile pointers with a store.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Mechanic != nil {
		m := *u.Mechanic
		if u.Mechanic.Loc != nil {
			loc := *u.Mechanic.Loc
			m.Loc = &loc
		}
		m.Specialties = append([]string(nil), u.Mechanic.Specialties...)
		c.Mechanic = &m
	}
	return &c
}

// Snapshot projects a mechanic onto the fields the geo index needs.
func (u *User) Snapshot() MechanicSnapshot {
	s := MechanicSnapshot{ID: u.ID, Name: u.Name}
	if m := u.Mechanic; m != nil {
		if m.Loc != nil {
			loc := *m.Loc
			s.Loc = &loc
		}
		s.Available = m.Available
		s.Rating = m.Rating
		s.CompletedJobs = m.CompletedJobs
		s.ServiceRadiusKm = m.ServiceRadiusKm
		s.HourlyRate = m.HourlyRate
		s.Specialties = append([]string(nil), m.Specialties...)
	}
	return s
}

type MechanicSnapshot struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Loc             *Coord    `json:"loc,omitempty"`
	Available       bool      `json:"available"`
	Rating          float64   `json:"rating"`
	CompletedJobs   int       `json:"completed_jobs"`
	ServiceRadiusKm float64   `json:"service_radius_km"`
	HourlyRate      float64   `json:"hourly_rate"`
	Specialties     []string  `json:"specialties,omitempty"`
	Updated         time.Time `json:"updated"`
}

// NearbyMechanic is one entry of a proximity query result.
type NearbyMechanic struct {
	MechanicSnapshot
	DistanceKm float64 `json:"distance_km"`
}

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAccepted   Status = "ACCEPTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusRejected   Status = "REJECTED"
	StatusCancelled  Status = "CANCELLED"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusAccepted, StatusInProgress, StatusCompleted, StatusRejected, StatusCancelled:
		return st, true
	}
	return "", false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

type SubscriptionType string

const (
	SubscriptionHourly  SubscriptionType = "HOURLY"
	SubscriptionMonthly SubscriptionType = "MONTHLY"
	SubscriptionYearly  SubscriptionType = "YEARLY"
)

type Booking struct {
	ID           string           `json:"id"`
	CustomerID   string           `json:"customer_id"`
	MechanicID   string           `json:"mechanic_id,omitempty"`
	Status       Status           `json:"status"`
	Description  string           `json:"description"`
	VehicleType  string           `json:"vehicle_type,omitempty"`
	VehicleModel string           `json:"vehicle_model,omitempty"`
	Loc          Coord            `json:"loc"`
	Subscription SubscriptionType `json:"subscription"`
	Price        float64          `json:"price"`
	ScheduledAt  *time.Time       `json:"scheduled_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	AcceptedAt   *time.Time       `json:"accepted_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`

	// CustomerRating is the customer's score of the mechanic; MechanicRating the reverse.
	CustomerRating   *int   `json:"customer_rating,omitempty"`
	CustomerFeedback string `json:"customer_feedback,omitempty"`
	MechanicRating   *int   `json:"mechanic_rating,omitempty"`
	MechanicFeedback string `json:"mechanic_feedback,omitempty"`
}

func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.ScheduledAt = cloneTime(b.ScheduledAt)
	c.AcceptedAt = cloneTime(b.AcceptedAt)
	c.CompletedAt = cloneTime(b.CompletedAt)
	c.CustomerRating = cloneInt(b.CustomerRating)
	c.MechanicRating = cloneInt(b.MechanicRating)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

// BookingFilter narrows a booking listing; zero fields match everything.
type BookingFilter struct {
	CustomerID string
	MechanicID string
	Status     Status
}

type EventType string

const (
	EventAssigned  EventType = "booking.assigned"
	EventAccepted  EventType = "booking.accepted"
	EventRejected  EventType = "booking.rejected"
	EventStarted   EventType = "booking.started"
	EventCompleted EventType = "booking.completed"
	EventCancelled EventType = "booking.cancelled"
	EventRated     EventType = "booking.rated"
)

// Event is the payload pushed to a subscriber after a booking transition commits.
type Event struct {
	Type        EventType `json:"type"`
	BookingID   string    `json:"booking_id"`
	Status      Status    `json:"status"`
	Loc         Coord     `json:"loc"`
	Description string    `json:"description"`
	At          time.Time `json:"at"`
}

// LocationUpdate is what mechanics report and what travels over the location topic.
type LocationUpdate struct {
	MechanicID string    `json:"mechanic_id"`
	Loc        Coord     `json:"loc"`
	Available  bool      `json:"available"`
	Rating     float64   `json:"rating"`
	Reported   time.Time `json:"reported"`
}
