package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"teamchat-upgrade/internal/domain"
	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

const userColumns = `id, email, name, phone, avatar_url, subscription_tier, credits_remaining,
       subscription_expires_at, workspaces, is_away, status_message, last_activity, created_at`

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

func (r *PostgresUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (
  id, email, name, phone, avatar_url, subscription_tier, credits_remaining,
  subscription_expires_at, workspaces, is_away, status_message, last_activity, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
) ON CONFLICT (id) DO UPDATE SET
  email=$2, name=$3, phone=$4, avatar_url=$5, subscription_tier=$6, credits_remaining=$7,
  subscription_expires_at=$8, workspaces=$9, is_away=$10, status_message=$11, last_activity=$12;`
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		u.ID, u.Email, u.Name, u.Phone, u.AvatarURL, string(u.Tier), u.CreditsRemaining,
		u.SubscriptionExpiresAt, nonNil(u.Workspaces), u.IsAway, u.StatusMessage, u.LastActivity, u.CreatedAt)
	return dbError("user", err)
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	q := forUpdate(`SELECT `+userColumns+` FROM users WHERE id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return u, nil
}

func (r *PostgresUserRepo) UpdateSubscription(ctx context.Context, tx repository.Tx, userID string, s model.UserSubscriptionState) error {
	const q = `
UPDATE users
   SET subscription_tier=$2, credits_remaining=$3, subscription_expires_at=$4
 WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, userID, string(s.Tier), s.CreditsRemaining, s.ExpiresAt)
	if err != nil {
		return dbError("user", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ConsumeCredits decrements in one statement so concurrent sessions cannot both
// spend the last credits. The cur CTE reports why nothing was decremented.
func (r *PostgresUserRepo) ConsumeCredits(ctx context.Context, tx repository.Tx, userID string, cost int64) (int64, bool, error) {
	if cost < 1 {
		cost = 1
	}
	const q = `
WITH cur AS (
  SELECT subscription_tier, credits_remaining FROM users WHERE id=$1
), upd AS (
  UPDATE users SET credits_remaining = credits_remaining - $2
   WHERE id=$1 AND subscription_tier='free' AND credits_remaining >= $2
  RETURNING credits_remaining
)
SELECT cur.subscription_tier, cur.credits_remaining, (SELECT credits_remaining FROM upd)
  FROM cur;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, cost)
	if err != nil {
		return 0, false, err
	}
	var (
		tier    string
		current int64
		after   *int64
	)
	if err := row.Scan(&tier, &current, &after); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, domain.ErrNotFound
		}
		return 0, false, dbError("user", err)
	}
	if after != nil {
		return *after, true, nil
	}
	if model.Tier(tier) != model.TierFree {
		return current, false, nil
	}
	return current, false, domain.ErrInsufficientCredits
}

func (r *PostgresUserRepo) AddWorkspace(ctx context.Context, tx repository.Tx, userID, workspaceID string) error {
	const q = `
UPDATE users
   SET workspaces = CASE WHEN $2 = ANY(workspaces) THEN workspaces ELSE array_append(workspaces, $2) END
 WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, userID, workspaceID)
	if err != nil {
		return dbError("user", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) DowngradeIfExpired(ctx context.Context, tx repository.Tx, userID string, now time.Time, s model.UserSubscriptionState) (bool, error) {
	const q = `
UPDATE users
   SET subscription_tier=$3, credits_remaining=$4, subscription_expires_at=$5
 WHERE id=$1 AND subscription_tier='premium'
   AND subscription_expires_at IS NOT NULL AND subscription_expires_at < $2;`
	cmd, err := execSQL(ctx, r.pool, tx, q, userID, now, string(s.Tier), s.CreditsRemaining, s.ExpiresAt)
	if err != nil {
		return false, dbError("user", err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *PostgresUserRepo) ListExpiredPremium(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.User, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + userColumns + ` FROM users
 WHERE subscription_tier='premium' AND subscription_expires_at IS NOT NULL AND subscription_expires_at < $1
 ORDER BY id LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, now, limit)
	if err != nil {
		return nil, dbError("user", err)
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u    model.User
		tier string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.AvatarURL, &tier, &u.CreditsRemaining,
		&u.SubscriptionExpiresAt, &u.Workspaces, &u.IsAway, &u.StatusMessage, &u.LastActivity, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.Tier = model.Tier(tier)
	return &u, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
