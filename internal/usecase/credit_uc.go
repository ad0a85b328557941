package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"teamchat-upgrade/internal/domain"
	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/domain/ports/repository"
	"teamchat-upgrade/internal/infra/logging"
	"teamchat-upgrade/internal/infra/metrics"
)

// Compile-time check
var _ CreditUseCase = (*creditUC)(nil)

type CreditResult struct {
	Allowed   bool       `json:"allowed"`
	Remaining int64      `json:"credits_remaining"`
	Tier      model.Tier `json:"tier"`
	Message   string     `json:"message"`
}

// CreditUseCase is the server-side authority over free-tier credits. The
// database decrement is the source of truth; session ledgers follow it.
type CreditUseCase interface {
	Consume(ctx context.Context, userID, action string, cost int64) (*CreditResult, error)
	Check(ctx context.Context, userID, action string, cost int64) (bool, error)
	Status(ctx context.Context, userID string) (CreditStatus, error)
	Prompt(ctx context.Context, userID string) (UpgradePrompt, error)
	Banner(ctx context.Context, userID string) (CreditBanner, error)
}

type creditUC struct {
	users   repository.UserRepository
	ledgers *LedgerRegistry
	tr      Translator
	log     *zerolog.Logger
}

func NewCreditUseCase(users repository.UserRepository, ledgers *LedgerRegistry, tr Translator, logger *zerolog.Logger) *creditUC {
	return &creditUC{users: users, ledgers: ledgers, tr: tr, log: logger}
}

func (c *creditUC) Consume(ctx context.Context, userID, action string, cost int64) (*CreditResult, error) {
	defer logging.TraceDuration(c.log, "CreditUC.Consume")()

	cost = normalizeCost(cost)
	ledger, err := c.ledgers.For(ctx, userID)
	if err != nil {
		return nil, err
	}
	if tier := ledger.Tier(); tier != model.TierFree {
		return &CreditResult{Allowed: true, Remaining: ledger.Remaining(), Tier: tier, Message: c.tr.T("credits.unlimited")}, nil
	}

	remaining, consumed, err := c.users.ConsumeCredits(ctx, repository.NoTX, userID, cost)
	switch {
	case errors.Is(err, domain.ErrInsufficientCredits):
		metrics.IncCreditRejection()
		msg := ledger.reject(ctx, action, remaining)
		return &CreditResult{Allowed: false, Remaining: remaining, Tier: model.TierFree, Message: msg}, domain.ErrInsufficientCredits
	case errors.Is(err, domain.ErrNotFound):
		c.ledgers.Drop(userID)
		return nil, domain.ErrUnauthenticated
	case err != nil:
		return nil, err
	}

	if !consumed {
		// Upgraded in another session since this ledger was loaded.
		u, err := c.users.FindByID(ctx, repository.NoTX, userID)
		if err != nil {
			return nil, err
		}
		ledger.Load(u)
		return &CreditResult{Allowed: true, Remaining: u.CreditsRemaining, Tier: u.Tier, Message: c.tr.T("credits.unlimited")}, nil
	}

	metrics.AddCreditsConsumed(cost)
	msg := ledger.settle(ctx, action, cost, remaining)
	logging.With(ctx, c.log).Debug().Str("action", action).Int64("cost", cost).Int64("remaining", remaining).Msg("credits consumed")
	return &CreditResult{Allowed: true, Remaining: remaining, Tier: model.TierFree, Message: msg}, nil
}

func (c *creditUC) Check(ctx context.Context, userID, action string, cost int64) (bool, error) {
	ledger, err := c.ledgers.For(ctx, userID)
	if err != nil {
		return false, err
	}
	return ledger.CheckCredits(ctx, action, cost), nil
}

func (c *creditUC) Status(ctx context.Context, userID string) (CreditStatus, error) {
	ledger, err := c.ledgers.For(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			return CreditStatus{Message: c.tr.T("credits.user_not_loaded"), Level: CreditLevelUnknown}, err
		}
		return CreditStatus{}, err
	}
	return ledger.CreditStatus(), nil
}

func (c *creditUC) Prompt(ctx context.Context, userID string) (UpgradePrompt, error) {
	ledger, err := c.ledgers.For(ctx, userID)
	if err != nil {
		return UpgradePrompt{}, err
	}
	return ledger.UpgradePrompt(), nil
}

func (c *creditUC) Banner(ctx context.Context, userID string) (CreditBanner, error) {
	ledger, err := c.ledgers.For(ctx, userID)
	if err != nil {
		return CreditBanner{}, err
	}
	return ledger.Banner(), nil
}
