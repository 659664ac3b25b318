// Package pricing turns a subscription selector and a mechanic's rate card into a booking price.
package pricing

import (
	"strings"

	"github.com/example/mechanic-dispatch/internal/apperr"
	"github.com/example/mechanic-dispatch/internal/models"
)

// Lookup prices a booking for the given mechanic.
type Lookup interface {
	Quote(mechanic *models.User, sub models.SubscriptionType) (float64, error)
}

// RateCard prices from the mechanic's own hourly, monthly and yearly rates.
type RateCard struct{}

func (RateCard) Quote(mechanic *models.User, sub models.SubscriptionType) (float64, error) {
	if mechanic == nil || !mechanic.IsMechanic() {
		return 0, apperr.Validation("price requires a mechanic")
	}
	m := mechanic.Mechanic
	switch sub {
	case models.SubscriptionHourly, "":
		return m.HourlyRate, nil
	case models.SubscriptionMonthly:
		return m.MonthlyRate, nil
	case models.SubscriptionYearly:
		return m.YearlyRate, nil
	}
	return 0, apperr.Validation("unknown subscription type %q", sub)
}

// ParseSubscription normalizes a selector; empty means HOURLY.
func ParseSubscription(s string) (models.SubscriptionType, error) {
	switch sub := models.SubscriptionType(strings.ToUpper(strings.TrimSpace(s))); sub {
	case "":
		return models.SubscriptionHourly, nil
	case models.SubscriptionHourly, models.SubscriptionMonthly, models.SubscriptionYearly:
		return sub, nil
	}
	return "", apperr.Validation("unknown subscription type %q", s)
}

type Plan struct {
	Monthly  float64  `json:"monthly"`
	Yearly   float64  `json:"yearly"`
	Currency string   `json:"currency"`
	Features []string `json:"features"`
}

// Catalogue is the published membership plan.
func Catalogue() Plan {
	return Plan{
		Monthly:  29.99,
		Yearly:   299.0,
		Currency: "USD",
		Features: []string{"Priority support", "Free towing up to 10km", "Discounted labor"},
	}
}
