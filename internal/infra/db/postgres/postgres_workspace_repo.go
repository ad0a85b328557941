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

var _ repository.WorkspaceRepository = (*workspaceRepo)(nil)

// Members come back in join order so the directory view is stable.
const workspaceSelect = `
SELECT w.id, w.name, w.slug, w.super_admin, w.invite_code, w.image_url, w.channels, w.regulators,
       w.subscription_tier, w.created_at,
       ARRAY(SELECT m.user_id FROM workspace_members m WHERE m.workspace_id = w.id ORDER BY m.joined_at, m.user_id)
  FROM workspaces w`

type workspaceRepo struct{ pool *pgxpool.Pool }

func NewWorkspaceRepo(pool *pgxpool.Pool) *workspaceRepo {
	return &workspaceRepo{pool: pool}
}

func (r *workspaceRepo) Save(ctx context.Context, tx repository.Tx, w *model.Workspace) error {
	const q = `
INSERT INTO workspaces (id, name, slug, super_admin, invite_code, image_url, channels, regulators, subscription_tier, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  name=$2, slug=$3, super_admin=$4, invite_code=$5, image_url=$6, channels=$7, regulators=$8, subscription_tier=$9;`
	const members = `
INSERT INTO workspace_members (workspace_id, user_id)
SELECT $1, unnest($2::text[])
ON CONFLICT DO NOTHING;`
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	if _, err := execSQL(ctx, r.pool, tx, q, w.ID, w.Name, w.Slug, w.SuperAdmin, w.InviteCode, w.ImageURL,
		nonNil(w.Channels), nonNil(w.Regulators), string(w.Tier), w.CreatedAt); err != nil {
		return dbError("workspace", err)
	}
	if len(w.MemberIDs) == 0 {
		return nil
	}
	_, err := execSQL(ctx, r.pool, tx, members, w.ID, w.MemberIDs)
	return dbError("workspace", err)
}

func (r *workspaceRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Workspace, error) {
	return r.findOne(ctx, tx, workspaceSelect+` WHERE w.id=$1`, id)
}

func (r *workspaceRepo) FindByInviteCode(ctx context.Context, tx repository.Tx, code string) (*model.Workspace, error) {
	if code == "" {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, tx, workspaceSelect+` WHERE w.invite_code=$1`, code)
}

func (r *workspaceRepo) findOne(ctx context.Context, tx repository.Tx, q string, arg string) (*model.Workspace, error) {
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	w, err := scanWorkspace(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return w, nil
}

func (r *workspaceRepo) ListByIDs(ctx context.Context, tx repository.Tx, ids []string) ([]*model.Workspace, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := queryRows(ctx, r.pool, tx, workspaceSelect+` WHERE w.id = ANY($1) ORDER BY w.created_at, w.id`, ids)
	if err != nil {
		return nil, dbError("workspace", err)
	}
	defer rows.Close()

	var out []*model.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *workspaceRepo) AddMember(ctx context.Context, tx repository.Tx, workspaceID, userID string) error {
	const q = `
INSERT INTO workspace_members (workspace_id, user_id)
SELECT id, $2 FROM workspaces WHERE id=$1
ON CONFLICT DO NOTHING;`
	if _, err := execSQL(ctx, r.pool, tx, q, workspaceID, userID); err != nil {
		return dbError("workspace", err)
	}
	return nil
}

func scanWorkspace(row pgx.Row) (*model.Workspace, error) {
	var (
		w    model.Workspace
		tier string
	)
	if err := row.Scan(&w.ID, &w.Name, &w.Slug, &w.SuperAdmin, &w.InviteCode, &w.ImageURL, &w.Channels,
		&w.Regulators, &tier, &w.CreatedAt, &w.MemberIDs); err != nil {
		return nil, err
	}
	w.Tier = model.Tier(tier)
	return &w, nil
}
