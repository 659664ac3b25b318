package booking

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/example/mechanic-dispatch/internal/apperr"
	"github.com/example/mechanic-dispatch/internal/geo"
	"github.com/example/mechanic-dispatch/internal/models"
	"github.com/example/mechanic-dispatch/internal/observability"
	"github.com/example/mechanic-dispatch/internal/storage"
)

type sent struct {
	to string
	ev models.Event
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recordingNotifier) Publish(id string, ev models.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{id, ev})
	return false
}

func (r *recordingNotifier) last() sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return sent{}
	}
	return r.sent[len(r.sent)-1]
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type failingEvents struct{ calls int }

func (f *failingEvents) PublishEvent(context.Context, models.Event) error {
	f.calls++
	return fmt.Errorf("broker down")
}

// halfFolder moves the mechanic's mean and then fails, like a write that dies mid-update.
type halfFolder struct{}

func (halfFolder) Apply(u *models.User, score int) error {
	u.Mechanic.Rating = float64(score)
	u.Mechanic.RatingCount++
	return fmt.Errorf("disk full")
}

type fixture struct {
	svc   *Service
	store *storage.MemoryStore
	index *geo.Index
	note  *recordingNotifier
	now   time.Time
}

var (
	customer   = Actor{ID: "c1", Role: models.RoleCustomer}
	mechanic   = Actor{ID: "m1", Role: models.RoleMechanic}
	dispatcher = Actor{ID: "d1", Role: models.RoleDispatcher}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: storage.NewMemoryStore(),
		index: geo.NewIndex(),
		note:  &recordingNotifier{},
		now:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.store, f.index, f.note, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.svc.Now = func() time.Time { return f.now }
	n := 0
	f.svc.NewID = func() string { n++; return fmt.Sprintf("b%d", n) }

	mustCreate(t, f.store, &models.User{ID: "c1", Email: "c1@example.com", Role: models.RoleCustomer})
	mustCreate(t, f.store, &models.User{ID: "c2", Email: "c2@example.com", Role: models.RoleCustomer})
	f.addMechanic(t, "m1", models.Coord{Lat: 40.01, Lng: -74.0}, 4.0, 3)
	f.addMechanic(t, "m2", models.Coord{Lat: 40.02, Lng: -74.0}, 4.5, 0)
	return f
}

func mustCreate(t *testing.T, st *storage.MemoryStore, u *models.User) {
	t.Helper()
	if err := st.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) addMechanic(t *testing.T, id string, loc models.Coord, rating float64, count int) {
	t.Helper()
	u := &models.User{
		ID: id, Name: id, Email: id + "@example.com", Role: models.RoleMechanic,
		Mechanic: &models.MechanicProfile{
			Loc: &loc, Available: true, Rating: rating, RatingCount: count, CompletedJobs: count,
			ServiceRadiusKm: 10, HourlyRate: 45, MonthlyRate: 29.99, YearlyRate: 299,
		},
	}
	mustCreate(t, f.store, u)
	if err := f.index.Upsert(context.Background(), u.Snapshot()); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) mechanic(t *testing.T, id string) *models.MechanicProfile {
	t.Helper()
	u, err := f.store.GetUser(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return u.Mechanic
}

func (f *fixture) create(t *testing.T) *models.Booking {
	t.Helper()
	b, err := f.svc.Create(context.Background(), customer, CreateRequest{
		CustomerID:  "c1",
		Loc:         models.Coord{Lat: 40.0, Lng: -74.0},
		Description: "flat tire",
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func wantKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s: %v", kind, got, err)
	}
}

func TestHappyPathLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t)
	if b.Status != models.StatusPending || b.MechanicID != "" {
		t.Fatalf("unexpected new booking: %+v", b)
	}

	b, err := f.svc.Assign(ctx, customer, b.ID, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if b.MechanicID != "m1" || b.Price != 45 {
		t.Fatalf("assign did not bind mechanic and price: %+v", b)
	}
	if got := f.note.last(); got.to != "m1" || got.ev.Type != models.EventAssigned {
		t.Fatalf("expected assignment notice to m1, got %+v", got)
	}

	f.now = f.now.Add(time.Minute)
	b, err = f.svc.Accept(ctx, mechanic, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != models.StatusAccepted || b.AcceptedAt == nil || !b.AcceptedAt.Equal(f.now) {
		t.Fatalf("accept: %+v", b)
	}
	if got := f.note.last(); got.to != "c1" || got.ev.Status != models.StatusAccepted {
		t.Fatalf("expected accept notice to c1, got %+v", got)
	}

	if b, err = f.svc.Start(ctx, mechanic, b.ID); err != nil {
		t.Fatal(err)
	}
	if b.Status != models.StatusInProgress {
		t.Fatalf("start: %s", b.Status)
	}
	if f.mechanic(t, "m1").Available {
		t.Fatal("mechanic should be unavailable while working")
	}
	near, _ := f.index.Nearby(ctx, 40.0, -74.0, 10)
	for _, n := range near {
		if n.ID == "m1" {
			t.Fatal("busy mechanic still offered by the index")
		}
	}

	if b, err = f.svc.Complete(ctx, mechanic, b.ID); err != nil {
		t.Fatal(err)
	}
	if b.Status != models.StatusCompleted || b.CompletedAt == nil {
		t.Fatalf("complete: %+v", b)
	}
	m := f.mechanic(t, "m1")
	if !m.Available || m.CompletedJobs != 4 {
		t.Fatalf("mechanic after completion: available=%v jobs=%d", m.Available, m.CompletedJobs)
	}

	if b, err = f.svc.Rate(ctx, customer, b.ID, RateRequest{Role: models.RoleCustomer, Score: 5, Comment: "quick"}); err != nil {
		t.Fatal(err)
	}
	if b.CustomerRating == nil || *b.CustomerRating != 5 || b.CustomerFeedback != "quick" {
		t.Fatalf("customer rating not recorded: %+v", b)
	}
	m = f.mechanic(t, "m1")
	if m.Rating != 4.25 || m.RatingCount != 4 {
		t.Fatalf("expected rating 4.25 over 4, got %v over %d", m.Rating, m.RatingCount)
	}

	if b, err = f.svc.Rate(ctx, mechanic, b.ID, RateRequest{Role: models.RoleMechanic, Score: 4}); err != nil {
		t.Fatal(err)
	}
	if b.MechanicRating == nil || *b.MechanicRating != 4 {
		t.Fatalf("mechanic rating not recorded: %+v", b)
	}
	if got := f.note.last(); got.to != "c1" || got.ev.Type != models.EventRated {
		t.Fatalf("expected rated notice to c1, got %+v", got)
	}

	_, err = f.svc.Rate(ctx, customer, b.ID, RateRequest{Role: models.RoleCustomer, Score: 1})
	wantKind(t, err, apperr.KindConflict)
	if m := f.mechanic(t, "m1"); m.RatingCount != 4 {
		t.Fatalf("rejected rating changed the aggregate: %d", m.RatingCount)
	}
}

func TestNoPathFromPendingToCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t)

	_, err := f.svc.Complete(ctx, mechanic, b.ID)
	wantKind(t, err, apperr.KindIllegalTransition)

	if _, err := f.svc.Assign(ctx, customer, b.ID, "m1"); err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.Complete(ctx, mechanic, b.ID)
	wantKind(t, err, apperr.KindIllegalTransition)
	_, err = f.svc.Start(ctx, mechanic, b.ID)
	wantKind(t, err, apperr.KindIllegalTransition)

	got, _ := f.store.GetBooking(ctx, b.ID)
	if got.Status != models.StatusPending {
		t.Fatalf("failed transitions changed status to %s", got.Status)
	}
}

func TestCompleteFromAccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t)
	if _, err := f.svc.Assign(ctx, customer, b.ID, "m1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Accept(ctx, mechanic, b.ID); err != nil {
		t.Fatal(err)
	}
	b, err := f.svc.Complete(ctx, mechanic, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != models.StatusCompleted {
		t.Fatalf("got %s", b.Status)
	}
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rejected := f.create(t)
	if _, err := f.svc.Assign(ctx, customer, rejected.ID, "m1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Reject(ctx, mechanic, rejected.ID); err != nil {
		t.Fatal(err)
	}
	_, err := f.svc.Accept(ctx, mechanic, rejected.ID)
	wantKind(t, err, apperr.KindIllegalTransition)
	_, err = f.svc.Cancel(ctx, customer, rejected.ID)
	wantKind(t, err, apperr.KindIllegalTransition)

	cancelled := f.create(t)
	if _, err := f.svc.Cancel(ctx, customer, cancelled.ID); err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.Cancel(ctx, customer, cancelled.ID)
	if err == nil {
		t.Fatal("cancelling a cancelled booking must fail")
	}

	completed := f.create(t)
	for _, step := range []func() error{
		func() error { _, err := f.svc.Assign(ctx, customer, completed.ID, "m1"); return err },
		func() error { _, err := f.svc.Accept(ctx, mechanic, completed.ID); return err },
		func() error { _, err := f.svc.Start(ctx, mechanic, completed.ID); return err },
		func() error { _, err := f.svc.Complete(ctx, mechanic, completed.ID); return err },
	} {
		if err := step(); err != nil {
			t.Fatal(err)
		}
	}
	_, err = f.svc.Cancel(ctx, customer, completed.ID)
	wantKind(t, err, apperr.KindIllegalTransition)
}

func TestCancelCutoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	soon := f.now.Add(90 * time.Minute)
	later := f.now.Add(3 * time.Hour)

	mk := func(at time.Time) *models.Booking {
		b, err := f.svc.Create(ctx, customer, CreateRequest{
			CustomerID: "c1", Loc: models.Coord{Lat: 40, Lng: -74}, Description: "battery", ScheduledAt: &at,
		})
		if err != nil {
			t.Fatal(err)
		}
		return b
	}

	_, err := f.svc.Cancel(ctx, customer, mk(soon).ID)
	wantKind(t, err, apperr.KindConflict)

	b, err := f.svc.Cancel(ctx, customer, mk(later).ID)
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != models.StatusCancelled {
		t.Fatalf("got %s", b.Status)
	}
}

func TestCancelInProgressFreesMechanicAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t)
	_, _ = f.svc.Assign(ctx, customer, b.ID, "m1")
	_, _ = f.svc.Accept(ctx, mechanic, b.ID)
	if _, err := f.svc.Start(ctx, mechanic, b.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Cancel(ctx, customer, b.ID); err != nil {
		t.Fatal(err)
	}
	if !f.mechanic(t, "m1").Available {
		t.Fatal("mechanic should be available after cancellation")
	}
	if got := f.note.last(); got.to != "m1" || got.ev.Type != models.EventCancelled {
		t.Fatalf("expected cancel notice to m1, got %+v", got)
	}
}

func TestAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := Actor{ID: "c2", Role: models.RoleCustomer}
	otherMechanic := Actor{ID: "m2", Role: models.RoleMechanic}

	_, err := f.svc.Create(ctx, other, CreateRequest{CustomerID: "c1", Loc: models.Coord{Lat: 40, Lng: -74}})
	wantKind(t, err, apperr.KindUnauthorized)

	b := f.create(t)
	_, err = f.svc.Assign(ctx, other, b.ID, "m1")
	wantKind(t, err, apperr.KindUnauthorized)
	if _, err := f.svc.Assign(ctx, dispatcher, b.ID, "m1"); err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.Accept(ctx, otherMechanic, b.ID)
	wantKind(t, err, apperr.KindUnauthorized)
	_, err = f.svc.Accept(ctx, customer, b.ID)
	wantKind(t, err, apperr.KindUnauthorized)
	_, err = f.svc.Cancel(ctx, mechanic, b.ID)
	wantKind(t, err, apperr.KindUnauthorized)
	_, err = f.svc.Cancel(ctx, other, b.ID)
	wantKind(t, err, apperr.KindUnauthorized)
	_, err = f.svc.Cancel(ctx, dispatcher, b.ID)
	wantKind(t, err, apperr.KindUnauthorized)

	_, err = f.svc.Get(ctx, other, b.ID)
	wantKind(t, err, apperr.KindUnauthorized)
	if _, err := f.svc.Get(ctx, mechanic, b.ID); err != nil {
		t.Fatal(err)
	}
}

func TestCreateAndAssignFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, dispatcher, CreateRequest{CustomerID: "nobody", Loc: models.Coord{Lat: 40, Lng: -74}})
	wantKind(t, err, apperr.KindNotFound)
	_, err = f.svc.Create(ctx, customer, CreateRequest{CustomerID: "c1", Loc: models.Coord{Lat: 91, Lng: 0}})
	wantKind(t, err, apperr.KindValidation)
	_, err = f.svc.Create(ctx, customer, CreateRequest{CustomerID: "c1", Loc: models.Coord{Lat: 40, Lng: -74}, Subscription: "WEEKLY"})
	wantKind(t, err, apperr.KindValidation)

	b := f.create(t)
	_, err = f.svc.Assign(ctx, customer, b.ID, "ghost")
	wantKind(t, err, apperr.KindNotFound)
	_, err = f.svc.Assign(ctx, customer, b.ID, "c2")
	wantKind(t, err, apperr.KindNotFound)

	if _, err := f.store.UpdateUser(ctx, "m2", func(u *models.User) error { u.Mechanic.Available = false; return nil }); err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.Assign(ctx, customer, b.ID, "m2")
	wantKind(t, err, apperr.KindConflict)

	if _, err := f.svc.Assign(ctx, customer, b.ID, "m1"); err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.Assign(ctx, customer, b.ID, "m1")
	wantKind(t, err, apperr.KindConflict)

	_, err = f.svc.Get(ctx, customer, "missing")
	wantKind(t, err, apperr.KindNotFound)
}

func TestCreateWithMechanicPricesSubscription(t *testing.T) {
	f := newFixture(t)
	b, err := f.svc.Create(context.Background(), customer, CreateRequest{
		MechanicID: "m1", Loc: models.Coord{Lat: 40, Lng: -74}, Subscription: "yearly",
	})
	if err != nil {
		t.Fatal(err)
	}
	if b.CustomerID != "c1" || b.MechanicID != "m1" || b.Subscription != models.SubscriptionYearly || b.Price != 299 {
		t.Fatalf("unexpected booking: %+v", b)
	}
	if got := f.note.last(); got.to != "m1" {
		t.Fatalf("mechanic not notified: %+v", got)
	}
}

func TestConcurrentAcceptExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t)
	if _, err := f.svc.Assign(ctx, customer, b.ID, "m1"); err != nil {
		t.Fatal(err)
	}

	const n = 16
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Accept(ctx, mechanic, b.ID)
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.Is(err, apperr.KindConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one accept to succeed, got %d", ok)
	}
}

func TestRateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t)

	_, err := f.svc.Rate(ctx, customer, b.ID, RateRequest{Role: models.RoleCustomer, Score: 6})
	wantKind(t, err, apperr.KindValidation)
	_, err = f.svc.Rate(ctx, customer, b.ID, RateRequest{Role: models.RoleCustomer, Score: 0})
	wantKind(t, err, apperr.KindValidation)
	_, err = f.svc.Rate(ctx, customer, b.ID, RateRequest{Role: models.RoleCustomer, Score: 3})
	wantKind(t, err, apperr.KindIllegalTransition)
	_, err = f.svc.Rate(ctx, customer, b.ID, RateRequest{Role: models.RoleMechanic, Score: 3})
	wantKind(t, err, apperr.KindUnauthorized)
}

func TestEventLogFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	events := &failingEvents{}
	f.svc.Events = events
	ctx := context.Background()
	b := f.create(t)
	if _, err := f.svc.Assign(ctx, customer, b.ID, "m1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Accept(ctx, mechanic, b.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := f.store.GetBooking(ctx, b.ID)
	if got.Status != models.StatusAccepted {
		t.Fatalf("got %s", got.Status)
	}
	if events.calls != 2 {
		t.Fatalf("expected 2 event log attempts, got %d", events.calls)
	}
	// the notifier reports no open stream for either party; the transitions still stand
	if f.note.count() != 2 {
		t.Fatalf("expected 2 notification attempts, got %d", f.note.count())
	}
}

func TestListScopesToCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b1 := f.create(t)
	if _, err := f.svc.Create(ctx, Actor{ID: "c2", Role: models.RoleCustomer}, CreateRequest{Loc: models.Coord{Lat: 40, Lng: -74}}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Assign(ctx, customer, b1.ID, "m1"); err != nil {
		t.Fatal(err)
	}

	mine, err := f.svc.List(ctx, customer, models.BookingFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].ID != b1.ID {
		t.Fatalf("customer listing: %+v", mine)
	}
	_, err = f.svc.List(ctx, customer, models.BookingFilter{CustomerID: "c2"})
	wantKind(t, err, apperr.KindUnauthorized)

	pending, err := f.svc.List(ctx, mechanic, models.BookingFilter{Status: models.StatusPending})
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("mechanic pending listing: %+v", pending)
	}

	all, err := f.svc.List(ctx, dispatcher, models.BookingFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("dispatcher listing: %d", len(all))
	}
}

func TestAutoAssignPicksClosestInRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t)

	got, err := f.svc.AutoAssign(ctx, customer, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MechanicID != "m1" {
		t.Fatalf("expected closest mechanic m1, got %s", got.MechanicID)
	}
}

func TestAutoAssignSkipsStaleCandidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t)
	// the store knows m1 went busy; the index has not caught up
	if _, err := f.store.UpdateUser(ctx, "m1", func(u *models.User) error { u.Mechanic.Available = false; return nil }); err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.AutoAssign(ctx, customer, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MechanicID != "m2" {
		t.Fatalf("expected fallback to m2, got %s", got.MechanicID)
	}
}

func TestAutoAssignRespectsServiceRadius(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"m1", "m2"} {
		u, err := f.store.UpdateUser(ctx, id, func(u *models.User) error { u.Mechanic.ServiceRadiusKm = 0.5; return nil })
		if err != nil {
			t.Fatal(err)
		}
		_ = f.index.Upsert(ctx, u.Snapshot())
	}
	b := f.create(t)
	_, err := f.svc.AutoAssign(ctx, customer, b.ID)
	wantKind(t, err, apperr.KindNotFound)
}

func (f *fixture) completed(t *testing.T) *models.Booking {
	t.Helper()
	ctx := context.Background()
	b := f.create(t)
	if _, err := f.svc.Assign(ctx, customer, b.ID, "m1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Accept(ctx, mechanic, b.ID); err != nil {
		t.Fatal(err)
	}
	b, err := f.svc.Complete(ctx, mechanic, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestCustomerRatingCommitsWithMechanicMean(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.completed(t)

	agg := f.svc.Ratings
	f.svc.Ratings = halfFolder{}
	if _, err := f.svc.Rate(ctx, customer, b.ID, RateRequest{Role: models.RoleCustomer, Score: 1}); err == nil {
		t.Fatal("expected the failed fold to fail the rating")
	}
	got, _ := f.store.GetBooking(ctx, b.ID)
	if got.CustomerRating != nil {
		t.Fatalf("booking kept a rating whose mean never moved: %v", *got.CustomerRating)
	}
	if m := f.mechanic(t, "m1"); m.Rating != 4.0 || m.RatingCount != 3 {
		t.Fatalf("mean moved without a booking rating: %+v", m)
	}

	f.svc.Ratings = agg
	if _, err := f.svc.Rate(ctx, customer, b.ID, RateRequest{Role: models.RoleCustomer, Score: 5}); err != nil {
		t.Fatal(err)
	}
	got, _ = f.store.GetBooking(ctx, b.ID)
	if got.CustomerRating == nil || *got.CustomerRating != 5 {
		t.Fatalf("rating not recorded: %+v", got)
	}
	if m := f.mechanic(t, "m1"); m.Rating != 4.25 || m.RatingCount != 4 {
		t.Fatalf("unexpected mean: %+v", m)
	}
}

func TestOnlineGaugeFollowsJobTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t)
	if _, err := f.svc.Assign(ctx, customer, b.ID, "m1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Accept(ctx, mechanic, b.ID); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(observability.MechanicsOnline); got != 2 {
		t.Fatalf("expected 2 online before start, got %v", got)
	}
	if _, err := f.svc.Start(ctx, mechanic, b.ID); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(observability.MechanicsOnline); got != 1 {
		t.Fatalf("expected 1 online while m1 works, got %v", got)
	}
	if _, err := f.svc.Complete(ctx, mechanic, b.ID); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(observability.MechanicsOnline); got != 2 {
		t.Fatalf("expected 2 online after completion, got %v", got)
	}
}
