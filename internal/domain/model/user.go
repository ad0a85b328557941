package model

import (
	"time"

	"teamchat-upgrade/internal/domain"

	"github.com/google/uuid"
)

// Tier is the subscription level of a user account.
type Tier string

const (
	TierFree     Tier = "free"
	TierPremium  Tier = "premium"
	TierLifetime Tier = "lifetime"
)

func (t Tier) Valid() bool {
	return t == TierFree || t == TierPremium || t == TierLifetime
}

const (
	// LifetimeCredits is the sentinel balance stored for lifetime accounts.
	LifetimeCredits int64 = 999999
	// DefaultPremiumCredits is granted when a premium plan has no explicit grant.
	DefaultPremiumCredits int64 = 1000
	// DefaultFreeCredits seeds free accounts whose counter was never set.
	DefaultFreeCredits int64 = 100
)

// UserSubscriptionState is the part of a user that the upgrade workflow mutates.
type UserSubscriptionState struct {
	Tier             Tier       `json:"tier"`
	CreditsRemaining int64      `json:"credits_remaining"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

// StateAfterUpgrade derives the subscription state granted by a confirmed payment for plan.
func StateAfterUpgrade(plan *SubscriptionPlan, now time.Time) UserSubscriptionState {
	if plan.IsLifetime() {
		return UserSubscriptionState{Tier: TierLifetime, CreditsRemaining: LifetimeCredits}
	}
	credits := DefaultPremiumCredits
	if plan.CreditsPerMonth != nil {
		credits = *plan.CreditsPerMonth
	}
	exp := now.AddDate(0, 6, 0)
	return UserSubscriptionState{Tier: TierPremium, CreditsRemaining: credits, ExpiresAt: &exp}
}

// User is the authenticated account as seen by billing.
type User struct {
	ID                    string     `json:"id"`
	Email                 string     `json:"email"`
	Name                  string     `json:"name,omitempty"`
	Phone                 string     `json:"phone,omitempty"`
	AvatarURL             string     `json:"avatar_url,omitempty"`
	Tier                  Tier       `json:"subscription_tier"`
	CreditsRemaining      int64      `json:"credits_remaining"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	Workspaces            []string   `json:"workspaces"`
	IsAway                bool       `json:"is_away"`
	StatusMessage         string     `json:"status_message,omitempty"`
	LastActivity          *time.Time `json:"last_activity,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

func NewUser(id, email, name string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if email == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &User{
		ID:               id,
		Email:            email,
		Name:             name,
		Tier:             TierFree,
		CreditsRemaining: DefaultFreeCredits,
		CreatedAt:        time.Now(),
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }

func (u *User) Subscription() UserSubscriptionState {
	return UserSubscriptionState{
		Tier:             u.Tier,
		CreditsRemaining: u.CreditsRemaining,
		ExpiresAt:        u.SubscriptionExpiresAt,
	}
}

func (u *User) ApplySubscription(s UserSubscriptionState) {
	u.Tier = s.Tier
	u.CreditsRemaining = s.CreditsRemaining
	u.SubscriptionExpiresAt = s.ExpiresAt
}
