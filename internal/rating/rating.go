package rating

import (
	"context"
	"time"

	"github.com/example/mechanic-dispatch/internal/apperr"
	"github.com/example/mechanic-dispatch/internal/models"
)

const (
	MinScore = 1
	MaxScore = 5
)

// UserUpdater is the slice of storage the aggregator needs; UpdateUser must serialize per id.
type UserUpdater interface {
	UpdateUser(ctx context.Context, id string, fn func(u *models.User) error) (*models.User, error)
}

// Aggregator keeps a mechanic's running mean rating.
type Aggregator struct {
	Store UserUpdater
	Now   func() time.Time
}

func NewAggregator(store UserUpdater) *Aggregator {
	return &Aggregator{Store: store, Now: time.Now}
}

func ValidateScore(score int) error {
	if score < MinScore || score > MaxScore {
		return apperr.Validation("score must be between %d and %d, got %d", MinScore, MaxScore, score)
	}
	return nil
}

// UpdateRating folds score into the mechanic's mean under the mechanic's row lock.
func (a *Aggregator) UpdateRating(ctx context.Context, mechanicID string, score int) (*models.User, error) {
	if err := ValidateScore(score); err != nil {
		return nil, err
	}
	return a.Store.UpdateUser(ctx, mechanicID, func(u *models.User) error {
		return a.Apply(u, score)
	})
}

// Apply folds score into u's mean in place:
// rating = (rating*count + score) / (count+1), count = count+1.
// The caller must hold u's row lock and persist u.
func (a *Aggregator) Apply(u *models.User, score int) error {
	if err := ValidateScore(score); err != nil {
		return err
	}
	if !u.IsMechanic() {
		return apperr.NotFound("mechanic %s not found", u.ID)
	}
	m := u.Mechanic
	if m.RatingCount == 0 {
		m.Rating = float64(score)
	} else {
		m.Rating = (m.Rating*float64(m.RatingCount) + float64(score)) / float64(m.RatingCount+1)
	}
	m.RatingCount++
	u.UpdatedAt = a.Now()
	return nil
}
