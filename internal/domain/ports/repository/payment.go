package repository

import (
	"context"
	"time"

	"teamchat-upgrade/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByCheckoutID(ctx context.Context, tx Tx, checkoutRequestID string) (*model.Payment, error)
	// UpdateOutcome records the provider result. Only pending rows are changed; the bool reports whether a row was updated.
	UpdateOutcome(ctx context.Context, tx Tx, id string, status model.PaymentStatus, checkoutRequestID string, code model.ErrorCode, message string, completedAt *time.Time) (bool, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
	// SumSuccessfulSince totals the user's successful payments since t (KES).
	SumSuccessfulSince(ctx context.Context, tx Tx, userID string, since time.Time) (int64, error)
}
