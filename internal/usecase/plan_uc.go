package usecase

import (
	"fmt"

	"teamchat-upgrade/internal/config"
	"teamchat-upgrade/internal/domain"
	"teamchat-upgrade/internal/domain/model"
)

// PlanUseCase exposes the read-only plan catalog.
type PlanUseCase interface {
	List() []*model.SubscriptionPlan
	Get(id string) (*model.SubscriptionPlan, error)
}

// Compile-time check
var _ PlanUseCase = (*PlanCatalog)(nil)

// PlanCatalog is an ordered, immutable set of plans built once at startup.
type PlanCatalog struct {
	plans []*model.SubscriptionPlan
	byID  map[string]*model.SubscriptionPlan
}

func int64Ptr(v int64) *int64 { return &v }

// DefaultPlans is used when the configuration lists no plans.
func DefaultPlans() []config.PlanConfig {
	return []config.PlanConfig{
		{
			ID:       "premium-6months",
			Name:     "Premium 6 Months",
			Duration: string(model.PlanDurationSixMonths),
			PriceKES: 2999,
			Features: []string{
				"Unlimited messages",
				"Unlimited file uploads",
				"Advanced search",
				"Priority support",
				"Custom status messages",
				"Advanced analytics",
			},
			CreditsPerMonth: int64Ptr(model.DefaultPremiumCredits),
		},
		{
			ID:       "lifetime",
			Name:     "Lifetime Premium",
			Duration: string(model.PlanDurationLifetime),
			PriceKES: 9999,
			Features: []string{
				"All Premium features",
				"Lifetime access",
				"No monthly fees",
				"Early access to new features",
				"VIP support",
				"Custom workspace branding",
			},
		},
	}
}

// NewPlanCatalog validates every plan and rejects duplicate IDs.
func NewPlanCatalog(cfgs []config.PlanConfig) (*PlanCatalog, error) {
	if len(cfgs) == 0 {
		cfgs = DefaultPlans()
	}
	c := &PlanCatalog{byID: make(map[string]*model.SubscriptionPlan, len(cfgs))}
	for i, pc := range cfgs {
		p, err := model.NewSubscriptionPlan(pc.ID, pc.Name, model.PlanDuration(pc.Duration), pc.PriceKES, pc.Features, pc.CreditsPerMonth)
		if err != nil {
			return nil, fmt.Errorf("plan #%d (%q): %w", i, pc.ID, err)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("plan %q: %w", p.ID, domain.ErrAlreadyExists)
		}
		c.byID[p.ID] = p
		c.plans = append(c.plans, p)
	}
	return c, nil
}

// List returns copies in catalog order.
func (c *PlanCatalog) List() []*model.SubscriptionPlan {
	out := make([]*model.SubscriptionPlan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p.Clone())
	}
	return out
}

func (c *PlanCatalog) Get(id string) (*model.SubscriptionPlan, error) {
	p, ok := c.byID[id]
	if !ok {
		return nil, domain.ErrPlanNotFound
	}
	return p.Clone(), nil
}
