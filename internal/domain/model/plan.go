package model

import (
	"slices"

	"teamchat-upgrade/internal/domain"
)

// PlanDuration is the billing period of a plan.
type PlanDuration string

const (
	PlanDurationSixMonths PlanDuration = "6months"
	PlanDurationLifetime  PlanDuration = "lifetime"
)

func (d PlanDuration) Valid() bool {
	return d == PlanDurationSixMonths || d == PlanDurationLifetime
}

// SubscriptionPlan represents a purchasable tier. Prices are whole KES.
type SubscriptionPlan struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Duration        PlanDuration `json:"duration"`
	PriceKES        int64        `json:"price_kes"`
	Features        []string     `json:"features"`
	CreditsPerMonth *int64       `json:"credits_per_month,omitempty"`
}

// NewSubscriptionPlan validates and constructs a plan.
func NewSubscriptionPlan(id, name string, duration PlanDuration, priceKES int64, features []string, creditsPerMonth *int64) (*SubscriptionPlan, error) {
	if id == "" || name == "" || !duration.Valid() || priceKES <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if creditsPerMonth != nil && *creditsPerMonth < 0 {
		return nil, domain.ErrInvalidArgument
	}
	p := &SubscriptionPlan{
		ID:       id,
		Name:     name,
		Duration: duration,
		PriceKES: priceKES,
		Features: slices.Clone(features),
	}
	if creditsPerMonth != nil {
		c := *creditsPerMonth
		p.CreditsPerMonth = &c
	}
	return p, nil
}

func (p *SubscriptionPlan) IsZero() bool     { return p == nil || p.ID == "" }
func (p *SubscriptionPlan) IsLifetime() bool { return p.Duration == PlanDurationLifetime }

// Clone returns a deep copy so callers cannot mutate catalog entries.
func (p *SubscriptionPlan) Clone() *SubscriptionPlan {
	cp := *p
	cp.Features = slices.Clone(p.Features)
	if p.CreditsPerMonth != nil {
		c := *p.CreditsPerMonth
		cp.CreditsPerMonth = &c
	}
	return &cp
}
