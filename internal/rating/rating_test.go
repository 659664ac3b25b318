package rating

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/example/mechanic-dispatch/internal/apperr"
	"github.com/example/mechanic-dispatch/internal/models"
	"github.com/example/mechanic-dispatch/internal/storage"
)

func seed(t *testing.T, rating float64, count int) (*storage.MemoryStore, *Aggregator) {
	t.Helper()
	st := storage.NewMemoryStore()
	err := st.CreateUser(context.Background(), &models.User{
		ID: "m1", Email: "m1@example.com", Role: models.RoleMechanic,
		Mechanic: &models.MechanicProfile{Rating: rating, RatingCount: count},
	})
	if err != nil {
		t.Fatal(err)
	}
	return st, NewAggregator(st)
}

func TestUpdateRatingWeightedMean(t *testing.T) {
	_, agg := seed(t, 4.0, 3)
	u, err := agg.UpdateRating(context.Background(), "m1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if u.Mechanic.Rating != 4.25 {
		t.Fatalf("expected 4.25, got %v", u.Mechanic.Rating)
	}
	if u.Mechanic.RatingCount != 4 {
		t.Fatalf("expected count 4, got %d", u.Mechanic.RatingCount)
	}
}

func TestUpdateRatingFirstScoreReplacesInitialZero(t *testing.T) {
	_, agg := seed(t, 0, 0)
	u, err := agg.UpdateRating(context.Background(), "m1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if u.Mechanic.Rating != 3 || u.Mechanic.RatingCount != 1 {
		t.Fatalf("unexpected %+v", u.Mechanic)
	}
}

func TestUpdateRatingRejectsOutOfRange(t *testing.T) {
	st, agg := seed(t, 4, 2)
	for _, score := range []int{0, 6, -1} {
		if _, err := agg.UpdateRating(context.Background(), "m1", score); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("score %d: expected validation error, got %v", score, err)
		}
	}
	u, _ := st.GetUser(context.Background(), "m1")
	if u.Mechanic.Rating != 4 || u.Mechanic.RatingCount != 2 {
		t.Fatalf("rejected scores must not change the mechanic: %+v", u.Mechanic)
	}
}

func TestUpdateRatingUnknownOrNonMechanic(t *testing.T) {
	st, agg := seed(t, 0, 0)
	_ = st.CreateUser(context.Background(), &models.User{ID: "c1", Email: "c1@example.com", Role: models.RoleCustomer})
	if _, err := agg.UpdateRating(context.Background(), "nobody", 4); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := agg.UpdateRating(context.Background(), "c1", 4); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for customer, got %v", err)
	}
}

func TestUpdateRatingConcurrentNoLostUpdates(t *testing.T) {
	st, agg := seed(t, 0, 0)
	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			score := 1 + i%5
			if _, err := agg.UpdateRating(context.Background(), "m1", score); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	u, _ := st.GetUser(context.Background(), "m1")
	if u.Mechanic.RatingCount != n {
		t.Fatalf("expected %d ratings, got %d", n, u.Mechanic.RatingCount)
	}
	// scores 1..5 repeated evenly average to 3
	if math.Abs(u.Mechanic.Rating-3) > 1e-9 {
		t.Fatalf("expected mean 3, got %v", u.Mechanic.Rating)
	}
}

func TestApplyFoldsIntoLockedRow(t *testing.T) {
	agg := NewAggregator(storage.NewMemoryStore())
	u := &models.User{ID: "m1", Role: models.RoleMechanic, Mechanic: &models.MechanicProfile{Rating: 4.0, RatingCount: 3}}
	if err := agg.Apply(u, 5); err != nil {
		t.Fatal(err)
	}
	if u.Mechanic.Rating != 4.25 || u.Mechanic.RatingCount != 4 {
		t.Fatalf("unexpected %+v", u.Mechanic)
	}
	if err := agg.Apply(u, 9); !apperr.Is(err, apperr.KindValidation) || u.Mechanic.RatingCount != 4 {
		t.Fatalf("out-of-range score must leave the row alone: %v %+v", err, u.Mechanic)
	}
	if err := agg.Apply(&models.User{ID: "c1", Role: models.RoleCustomer}, 5); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for a customer, got %v", err)
	}
}
