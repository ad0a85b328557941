//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"

	"teamchat-upgrade/internal/domain"
	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/domain/ports/repository"
)

func TestUserRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	repo := NewPostgresUserRepo(testPool)
	ctx := context.Background()

	t.Run("should save and read back a user", func(t *testing.T) {
		cleanup(t)

		u, err := model.NewUser("u-1", "jane@example.com", "Jane")
		if err != nil {
			t.Fatalf("model.NewUser() failed: %v", err)
		}
		if err := repo.Save(ctx, nil, u); err != nil {
			t.Fatalf("Failed to save user: %v", err)
		}
		found, err := repo.FindByID(ctx, nil, "u-1")
		if err != nil {
			t.Fatalf("Failed to find user: %v", err)
		}
		if found.Email != "jane@example.com" || found.Tier != model.TierFree || found.CreditsRemaining != model.DefaultFreeCredits {
			t.Errorf("unexpected user %+v", found)
		}
		if len(found.Workspaces) != 0 {
			t.Errorf("expected no workspaces, got %v", found.Workspaces)
		}

		if _, err := repo.FindByID(ctx, nil, "ghost"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should apply subscription state idempotently", func(t *testing.T) {
		cleanup(t)
		u, _ := model.NewUser("u-1", "jane@example.com", "Jane")
		_ = repo.Save(ctx, nil, u)

		exp := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
		state := model.UserSubscriptionState{Tier: model.TierPremium, CreditsRemaining: 1000, ExpiresAt: &exp}
		for i := 0; i < 2; i++ {
			if err := repo.UpdateSubscription(ctx, nil, "u-1", state); err != nil {
				t.Fatalf("update #%d failed: %v", i, err)
			}
		}
		found, _ := repo.FindByID(ctx, nil, "u-1")
		if found.Tier != model.TierPremium || found.CreditsRemaining != 1000 || found.SubscriptionExpiresAt == nil {
			t.Errorf("unexpected user %+v", found)
		}
		if err := repo.UpdateSubscription(ctx, nil, "ghost", state); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should consume credits atomically", func(t *testing.T) {
		cleanup(t)
		u, _ := model.NewUser("u-1", "jane@example.com", "Jane")
		u.CreditsRemaining = 10
		_ = repo.Save(ctx, nil, u)

		var wg sync.WaitGroup
		var mu sync.Mutex
		consumed := 0
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, ok, err := repo.ConsumeCredits(ctx, nil, "u-1", 1); err == nil && ok {
					mu.Lock()
					consumed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if consumed != 10 {
			t.Errorf("expected 10 decrements, got %d", consumed)
		}
		remaining, ok, err := repo.ConsumeCredits(ctx, nil, "u-1", 1)
		if ok || remaining != 0 || !errors.Is(err, domain.ErrInsufficientCredits) {
			t.Errorf("expected rejection at 0, got %d/%v/%v", remaining, ok, err)
		}
	})

	t.Run("should leave paid users untouched", func(t *testing.T) {
		cleanup(t)
		u, _ := model.NewUser("u-1", "jane@example.com", "Jane")
		u.Tier = model.TierLifetime
		u.CreditsRemaining = model.LifetimeCredits
		_ = repo.Save(ctx, nil, u)

		remaining, ok, err := repo.ConsumeCredits(ctx, nil, "u-1", 5)
		if err != nil || ok || remaining != model.LifetimeCredits {
			t.Errorf("unexpected %d/%v/%v", remaining, ok, err)
		}
		if _, _, err := repo.ConsumeCredits(ctx, nil, "ghost", 1); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should add workspaces once", func(t *testing.T) {
		cleanup(t)
		u, _ := model.NewUser("u-1", "jane@example.com", "Jane")
		_ = repo.Save(ctx, nil, u)
		for i := 0; i < 2; i++ {
			if err := repo.AddWorkspace(ctx, nil, "u-1", "ws-1"); err != nil {
				t.Fatalf("add #%d failed: %v", i, err)
			}
		}
		found, _ := repo.FindByID(ctx, nil, "u-1")
		if len(found.Workspaces) != 1 || found.Workspaces[0] != "ws-1" {
			t.Errorf("unexpected workspaces %v", found.Workspaces)
		}
	})

	t.Run("should downgrade only while still lapsed", func(t *testing.T) {
		cleanup(t)
		now := time.Now()
		past := now.Add(-time.Hour)
		u, _ := model.NewUser("u-1", "jane@example.com", "Jane")
		u.Tier = model.TierPremium
		u.SubscriptionExpiresAt = &past
		_ = repo.Save(ctx, nil, u)

		lifetime := model.UserSubscriptionState{Tier: model.TierLifetime, CreditsRemaining: model.LifetimeCredits}
		if err := repo.UpdateSubscription(ctx, nil, "u-1", lifetime); err != nil {
			t.Fatalf("upgrade failed: %v", err)
		}
		free := model.UserSubscriptionState{Tier: model.TierFree, CreditsRemaining: model.DefaultFreeCredits}
		changed, err := repo.DowngradeIfExpired(ctx, nil, "u-1", now, free)
		if err != nil || changed {
			t.Fatalf("expected no change, got %v/%v", changed, err)
		}
		found, _ := repo.FindByID(ctx, nil, "u-1")
		if found.Tier != model.TierLifetime {
			t.Errorf("lifetime upgrade was overwritten: %+v", found)
		}

		_ = repo.UpdateSubscription(ctx, nil, "u-1", model.UserSubscriptionState{Tier: model.TierPremium, CreditsRemaining: 10, ExpiresAt: &past})
		if changed, err := repo.DowngradeIfExpired(ctx, nil, "u-1", now, free); err != nil || !changed {
			t.Errorf("expected a downgrade, got %v/%v", changed, err)
		}
	})

	t.Run("should list lapsed premium users", func(t *testing.T) {
		cleanup(t)
		now := time.Now()
		past, future := now.Add(-time.Hour), now.Add(time.Hour)
		for id, exp := range map[string]*time.Time{"lapsed": &past, "active": &future} {
			u, _ := model.NewUser(id, id+"@example.com", "")
			u.Tier = model.TierPremium
			u.SubscriptionExpiresAt = exp
			_ = repo.Save(ctx, nil, u)
		}
		list, err := repo.ListExpiredPremium(ctx, nil, now, 10)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(list) != 1 || list[0].ID != "lapsed" {
			t.Errorf("unexpected list %+v", list)
		}
	})

	t.Run("should lock the row inside a transaction", func(t *testing.T) {
		cleanup(t)
		u, _ := model.NewUser("u-1", "jane@example.com", "Jane")
		_ = repo.Save(ctx, nil, u)
		tm := NewTxManager(testPool)

		err := tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(ctx context.Context, tx repository.Tx) error {
			found, err := repo.FindByID(ctx, tx, "u-1")
			if err != nil {
				return err
			}
			found.Name = "Jane Doe"
			return repo.Save(ctx, tx, found)
		})
		if err != nil {
			t.Fatalf("transaction failed: %v", err)
		}
		found, _ := repo.FindByID(ctx, nil, "u-1")
		if found.Name != "Jane Doe" {
			t.Errorf("expected the committed name, got %q", found.Name)
		}
	})
}
