package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/domain/ports/repository"
	"teamchat-upgrade/internal/infra/metrics"
	red "teamchat-upgrade/internal/infra/redis"
)

var _ repository.UserRepository = (*userRepoCacheDecorator)(nil)

// userRepoCacheDecorator caches plain reads. Reads inside a transaction go to the
// database so row locks and serializable snapshots stay meaningful.
type userRepoCacheDecorator struct {
	inner  repository.UserRepository
	cache  red.RedisClient
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewUserRepoCacheDecorator(inner repository.UserRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.UserRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &userRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func userCacheKey(id string) string { return "user:id:" + id }

func (d *userRepoCacheDecorator) invalidate(ctx context.Context, id string) {
	if err := d.cache.Del(ctx, userCacheKey(id)); err != nil {
		d.logger.Warn().Err(err).Str("user_id", id).Msg("user cache invalidation failed")
	}
}

// invalidateAfterWrite drops the key once the write is visible to other
// readers, so a concurrent miss cannot re-cache the old row.
func (d *userRepoCacheDecorator) invalidateAfterWrite(ctx context.Context, tx repository.Tx, id string) {
	if tx == nil {
		d.invalidate(ctx, id)
		return
	}
	AfterCommit(ctx, func(ctx context.Context) { d.invalidate(ctx, id) })
}

func (d *userRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if err := d.inner.Save(ctx, tx, u); err != nil {
		return err
	}
	d.invalidateAfterWrite(ctx, tx, u.ID)
	return nil
}

func (d *userRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	if tx != nil {
		return d.inner.FindByID(ctx, tx, id)
	}
	key := userCacheKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var user model.User
		if json.Unmarshal([]byte(val), &user) == nil {
			metrics.ObserveCacheLookup("user", true)
			return &user, nil
		}
	} else if !red.IsNil(err) {
		d.logger.Warn().Err(err).Str("user_id", id).Msg("user cache read failed")
	}

	metrics.ObserveCacheLookup("user", false)
	user, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(user); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return user, nil
}

func (d *userRepoCacheDecorator) UpdateSubscription(ctx context.Context, tx repository.Tx, userID string, s model.UserSubscriptionState) error {
	if err := d.inner.UpdateSubscription(ctx, tx, userID, s); err != nil {
		return err
	}
	d.invalidateAfterWrite(ctx, tx, userID)
	return nil
}

func (d *userRepoCacheDecorator) ConsumeCredits(ctx context.Context, tx repository.Tx, userID string, cost int64) (int64, bool, error) {
	remaining, consumed, err := d.inner.ConsumeCredits(ctx, tx, userID, cost)
	if consumed {
		d.invalidateAfterWrite(ctx, tx, userID)
	}
	return remaining, consumed, err
}

func (d *userRepoCacheDecorator) AddWorkspace(ctx context.Context, tx repository.Tx, userID, workspaceID string) error {
	if err := d.inner.AddWorkspace(ctx, tx, userID, workspaceID); err != nil {
		return err
	}
	d.invalidateAfterWrite(ctx, tx, userID)
	return nil
}

func (d *userRepoCacheDecorator) DowngradeIfExpired(ctx context.Context, tx repository.Tx, userID string, now time.Time, s model.UserSubscriptionState) (bool, error) {
	changed, err := d.inner.DowngradeIfExpired(ctx, tx, userID, now, s)
	if changed {
		d.invalidateAfterWrite(ctx, tx, userID)
	}
	return changed, err
}

func (d *userRepoCacheDecorator) ListExpiredPremium(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.User, error) {
	return d.inner.ListExpiredPremium(ctx, tx, now, limit)
}
