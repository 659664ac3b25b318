package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/example/mechanic-dispatch/internal/apperr"
	"github.com/example/mechanic-dispatch/internal/models"
)

// MemoryStore keeps rows in maps. Values are cloned on the way in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	emails   map[string]string
	bookings map[string]*models.Booking

	userLocks    *keyedMutex
	bookingLocks *keyedMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]*models.User),
		emails:       make(map[string]string),
		bookings:     make(map[string]*models.Booking),
		userLocks:    newKeyedMutex(),
		bookingLocks: newKeyedMutex(),
	}
}

func (m *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := strings.ToLower(u.Email)
	if _, taken := m.emails[email]; taken {
		return apperr.Conflict("email %s already registered", u.Email)
	}
	if _, taken := m.users[u.ID]; taken {
		return apperr.Conflict("user %s already exists", u.ID)
	}
	m.users[u.ID] = u.Clone()
	m.emails[email] = u.ID
	return nil
}

func (m *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user %s not found", id)
	}
	return u.Clone(), nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[strings.ToLower(email)]
	if !ok {
		return nil, apperr.NotFound("user with email %s not found", email)
	}
	return m.users[id].Clone(), nil
}

func (m *MemoryStore) ListMechanics(_ context.Context) ([]*models.User, error) {
	m.mu.RLock()
	out := make([]*models.User, 0)
	for _, u := range m.users {
		if u.IsMechanic() {
			out = append(out, u.Clone())
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpdateUser(ctx context.Context, id string, fn func(u *models.User) error) (*models.User, error) {
	unlock := m.userLocks.Lock(id)
	defer unlock()

	u, err := m.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(u); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.users[id] = u.Clone()
	m.mu.Unlock()
	return u, nil
}

func (m *MemoryStore) CreateBooking(_ context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.bookings[b.ID]; taken {
		return apperr.Conflict("booking %s already exists", b.ID)
	}
	m.bookings[b.ID] = b.Clone()
	return nil
}

func (m *MemoryStore) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, apperr.NotFound("booking %s not found", id)
	}
	return b.Clone(), nil
}

func (m *MemoryStore) ListBookings(_ context.Context, f models.BookingFilter) ([]*models.Booking, error) {
	m.mu.RLock()
	out := make([]*models.Booking, 0)
	for _, b := range m.bookings {
		if f.CustomerID != "" && b.CustomerID != f.CustomerID {
			continue
		}
		if f.MechanicID != "" && b.MechanicID != f.MechanicID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		out = append(out, b.Clone())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) UpdateBooking(ctx context.Context, id string, fn func(b *models.Booking) error) (*models.Booking, error) {
	unlock := m.bookingLocks.Lock(id)
	defer unlock()

	b, err := m.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(b); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.bookings[id] = b.Clone()
	m.mu.Unlock()
	return b, nil
}

func (m *MemoryStore) UpdateBookingWithUser(ctx context.Context, bookingID, userID string, fn func(b *models.Booking, u *models.User) error) (*models.Booking, *models.User, error) {
	unlockBooking := m.bookingLocks.Lock(bookingID)
	defer unlockBooking()
	unlockUser := m.userLocks.Lock(userID)
	defer unlockUser()

	b, err := m.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	u, err := m.GetUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if err := fn(b, u); err != nil {
		return nil, nil, err
	}
	m.mu.Lock()
	m.bookings[bookingID] = b.Clone()
	m.users[userID] = u.Clone()
	m.mu.Unlock()
	return b, u, nil
}
