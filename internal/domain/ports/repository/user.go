package repository

import (
	"context"
	"time"

	"teamchat-upgrade/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	// UpdateSubscription overwrites tier, credits and expiry. Applying the same state twice is a no-op.
	UpdateSubscription(ctx context.Context, tx Tx, userID string, s model.UserSubscriptionState) error
	// ConsumeCredits atomically decrements a free user's balance in a single statement.
	// It returns the balance after the call and whether a decrement happened; non-free
	// users are left untouched (consumed=false). When the balance is too low it returns
	// the current balance with domain.ErrInsufficientCredits.
	ConsumeCredits(ctx context.Context, tx Tx, userID string, cost int64) (remaining int64, consumed bool, err error)
	AddWorkspace(ctx context.Context, tx Tx, userID, workspaceID string) error
	// DowngradeIfExpired writes s only while the user is still premium with an expiry before now.
	// It reports false when the row changed since it was listed.
	DowngradeIfExpired(ctx context.Context, tx Tx, userID string, now time.Time, s model.UserSubscriptionState) (bool, error)
	ListExpiredPremium(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.User, error)
}
