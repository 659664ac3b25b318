package storage

import (
	"context"
	"sync"

	"github.com/example/mechanic-dispatch/internal/models"
)

// Store defines persistence for users and bookings.
//
// UpdateUser and UpdateBooking run fn while holding an exclusive lock on that one row and
// persist the mutated value only if fn returns nil. Two updates of the same id never
// interleave; updates of different ids proceed in parallel. Locks are always taken booking
// first, user second.
type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListMechanics(ctx context.Context) ([]*models.User, error)
	UpdateUser(ctx context.Context, id string, fn func(u *models.User) error) (*models.User, error)

	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error)
	UpdateBooking(ctx context.Context, id string, fn func(b *models.Booking) error) (*models.Booking, error)

	// UpdateBookingWithUser locks the booking, then the user, and persists both or neither.
	UpdateBookingWithUser(ctx context.Context, bookingID, userID string, fn func(b *models.Booking, u *models.User) error) (*models.Booking, *models.User, error)
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds or waits on.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex { return &keyedMutex{locks: make(map[string]*refLock)} }

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
