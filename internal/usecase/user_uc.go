package usecase

import (
	"context"
	"errors"
	"time"

	"teamchat-upgrade/internal/domain"
	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/domain/ports/repository"
	"teamchat-upgrade/internal/infra/logging"
	"teamchat-upgrade/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// UserUseCase is the session/user provider.
type UserUseCase interface {
	Current(ctx context.Context, userID string) (*model.User, error)
	Register(ctx context.Context, id, email, name string) (*model.User, error)
	// DowngradeExpired moves lapsed premium users back to the free tier and returns how many were changed.
	DowngradeExpired(ctx context.Context, now time.Time, batch int) (int, error)
}

type userUC struct {
	users       repository.UserRepository
	tm          repository.TransactionManager
	ledgers     *LedgerRegistry
	freeCredits int64
	log         *zerolog.Logger
}

func NewUserUseCase(users repository.UserRepository, tm repository.TransactionManager, ledgers *LedgerRegistry, freeCredits int64, logger *zerolog.Logger) *userUC {
	if freeCredits <= 0 {
		freeCredits = model.DefaultFreeCredits
	}
	return &userUC{
		users:       users,
		tm:          tm,
		ledgers:     ledgers,
		freeCredits: freeCredits,
		log:         logger,
	}
}

func (u *userUC) Current(ctx context.Context, userID string) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.Current")()

	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	usr, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if usr == nil {
		return nil, domain.ErrUnauthenticated
	}
	return usr, nil
}

// Register creates the billing row for an account the identity provider already knows. Idempotent.
func (u *userUC) Register(ctx context.Context, id, email, name string) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.Register")()

	var user *model.User
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		existing, err := u.users.FindByID(ctx, tx, id)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if existing != nil {
			user = existing
			return nil
		}

		nu, err := model.NewUser(id, email, name)
		if err != nil {
			return err
		}
		nu.CreditsRemaining = u.freeCredits
		if err := u.users.Save(ctx, tx, nu); err != nil {
			u.log.Error().Err(err).Msg("Failed to save user")
			return err
		}
		user = nu
		return nil
	})
	return user, err
}

func (u *userUC) DowngradeExpired(ctx context.Context, now time.Time, batch int) (int, error) {
	defer logging.TraceDuration(u.log, "UserUC.DowngradeExpired")()

	expired, err := u.users.ListExpiredPremium(ctx, repository.NoTX, now, batch)
	if err != nil {
		return 0, err
	}
	free := model.UserSubscriptionState{Tier: model.TierFree, CreditsRemaining: u.freeCredits}
	n := 0
	for _, usr := range expired {
		changed, err := u.users.DowngradeIfExpired(ctx, repository.NoTX, usr.ID, now, free)
		if err != nil {
			u.log.Error().Err(err).Str("user_id", usr.ID).Msg("failed to downgrade expired subscription")
			continue
		}
		if !changed {
			// renewed or upgraded after the listing
			u.log.Debug().Str("user_id", usr.ID).Msg("subscription changed before downgrade; skipped")
			continue
		}
		if l, ok := u.ledgers.Peek(usr.ID); ok {
			l.Apply(free)
		}
		n++
	}
	if n > 0 {
		metrics.IncSubscriptionsExpired(n)
		u.log.Info().Int("count", n).Msg("expired subscriptions downgraded")
	}
	return n, nil
}
