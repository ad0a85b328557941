//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"teamchat-upgrade/internal/domain"
	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/infra/security"
)

func newPendingPayment(userID string, amount int64, created time.Time) *model.Payment {
	id := uuid.NewString()
	return &model.Payment{
		ID:          id,
		UserID:      userID,
		PlanID:      "premium",
		Provider:    "simulated",
		Amount:      amount,
		PhoneNumber: "254712345678",
		Reference:   "UPGRADE_premium_" + id,
		Status:      model.PaymentStatusPending,
		CreatedAt:   created,
	}
}

func TestPaymentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	enc, err := security.NewEncryptionService("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("encryption service: %v", err)
	}
	repo := NewPaymentRepo(testPool, enc)
	ctx := context.Background()

	t.Run("should encrypt the phone at rest", func(t *testing.T) {
		cleanup(t)
		p := newPendingPayment("u-1", 1200, time.Now())
		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("Failed to save payment: %v", err)
		}
		var stored string
		if err := testPool.QueryRow(ctx, `SELECT phone_enc FROM payments WHERE id=$1`, p.ID).Scan(&stored); err != nil {
			t.Fatalf("raw read: %v", err)
		}
		if stored == "254712345678" {
			t.Error("phone stored in plaintext")
		}
		found, err := repo.FindByID(ctx, nil, p.ID)
		if err != nil || found.PhoneNumber != "254712345678" {
			t.Errorf("unexpected payment %+v, err %v", found, err)
		}
	})

	t.Run("should only update pending rows", func(t *testing.T) {
		cleanup(t)
		p := newPendingPayment("u-1", 1200, time.Now())
		_ = repo.Save(ctx, nil, p)

		ok, err := repo.UpdateOutcome(ctx, nil, p.ID, model.PaymentStatusPending, "ws_CO_1", model.ErrorCodeNone, "sent", nil)
		if err != nil || !ok {
			t.Fatalf("expected the pending update to apply, got %v/%v", ok, err)
		}
		now := time.Now()
		ok, _ = repo.UpdateOutcome(ctx, nil, p.ID, model.PaymentStatusSuccessful, "", model.ErrorCodeNone, "paid", &now)
		if !ok {
			t.Fatal("expected the success update to apply")
		}
		ok, _ = repo.UpdateOutcome(ctx, nil, p.ID, model.PaymentStatusFailed, "", model.ErrorCodeTimeout, "late", &now)
		if ok {
			t.Error("a settled payment must not change")
		}

		found, err := repo.FindByCheckoutID(ctx, nil, "ws_CO_1")
		if err != nil {
			t.Fatalf("find by checkout id: %v", err)
		}
		if found.Status != model.PaymentStatusSuccessful || found.CompletedAt == nil {
			t.Errorf("unexpected payment %+v", found)
		}
		if _, err := repo.FindByCheckoutID(ctx, nil, ""); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should list stale pending payments and sum successes", func(t *testing.T) {
		cleanup(t)
		now := time.Now()
		old := newPendingPayment("u-1", 500, now.Add(-time.Hour))
		fresh := newPendingPayment("u-1", 700, now)
		paid := newPendingPayment("u-1", 1200, now.Add(-2*time.Hour))
		for _, p := range []*model.Payment{old, fresh, paid} {
			_ = repo.Save(ctx, nil, p)
		}
		_, _ = repo.UpdateOutcome(ctx, nil, paid.ID, model.PaymentStatusSuccessful, "ws_CO_9", model.ErrorCodeNone, "paid", &now)

		stale, err := repo.ListPendingOlderThan(ctx, nil, now.Add(-30*time.Minute), 10)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(stale) != 1 || stale[0].ID != old.ID {
			t.Errorf("unexpected stale list %+v", stale)
		}

		sum, err := repo.SumSuccessfulSince(ctx, nil, "u-1", now.Add(-24*time.Hour))
		if err != nil || sum != 1200 {
			t.Errorf("expected 1200, got %d (err %v)", sum, err)
		}
	})
}
