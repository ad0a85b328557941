//go:build !integration

package postgres

import (
	"context"
	"io"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/domain/ports/repository"
	red "teamchat-upgrade/internal/infra/redis"
)

// mockInnerUserRepo mocks the database repository that the User decorator wraps.
type mockInnerUserRepo struct {
	SaveFunc               func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByIDFunc           func(ctx context.Context, tx repository.Tx, id string) (*model.User, error)
	UpdateSubscriptionFunc func(ctx context.Context, tx repository.Tx, userID string, s model.UserSubscriptionState) error
	ConsumeCreditsFunc     func(ctx context.Context, tx repository.Tx, userID string, cost int64) (int64, bool, error)
	AddWorkspaceFunc       func(ctx context.Context, tx repository.Tx, userID, workspaceID string) error
	DowngradeIfExpiredFunc func(ctx context.Context, tx repository.Tx, userID string, now time.Time, s model.UserSubscriptionState) (bool, error)
}

func (m *mockInnerUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	return m.SaveFunc(ctx, tx, u)
}
func (m *mockInnerUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerUserRepo) UpdateSubscription(ctx context.Context, tx repository.Tx, userID string, s model.UserSubscriptionState) error {
	return m.UpdateSubscriptionFunc(ctx, tx, userID, s)
}
func (m *mockInnerUserRepo) ConsumeCredits(ctx context.Context, tx repository.Tx, userID string, cost int64) (int64, bool, error) {
	return m.ConsumeCreditsFunc(ctx, tx, userID, cost)
}
func (m *mockInnerUserRepo) AddWorkspace(ctx context.Context, tx repository.Tx, userID, workspaceID string) error {
	return m.AddWorkspaceFunc(ctx, tx, userID, workspaceID)
}
func (m *mockInnerUserRepo) DowngradeIfExpired(ctx context.Context, tx repository.Tx, userID string, now time.Time, s model.UserSubscriptionState) (bool, error) {
	return m.DowngradeIfExpiredFunc(ctx, tx, userID, now, s)
}
func (m *mockInnerUserRepo) ListExpiredPremium(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.User, error) {
	return nil, nil
}

// mockRedisClient mocks our Redis client wrapper. Unset funcs behave like an empty cache.
type mockRedisClient struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc func(ctx context.Context, keys ...string) error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc == nil {
		return "", redis.Nil
	}
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error                      { return nil }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) { return 0, nil }
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) Close() error { return nil }

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}
