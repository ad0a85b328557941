package usecase

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"teamchat-upgrade/internal/domain"
	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/domain/ports/repository"
	"teamchat-upgrade/internal/infra/logging"
)

// Compile-time check
var _ WorkspaceUseCase = (*workspaceUC)(nil)

const memberFetchLimit = 8

// WorkspaceUseCase is the workspace and member directory.
type WorkspaceUseCase interface {
	ListForUser(ctx context.Context, userID string) ([]*model.Workspace, error)
	GetWithMembers(ctx context.Context, workspaceID string) (*model.Workspace, error)
	JoinByInviteCode(ctx context.Context, userID, code string) (*model.Workspace, error)
}

type workspaceUC struct {
	workspaces repository.WorkspaceRepository
	users      repository.UserRepository
	tm         repository.TransactionManager
	log        *zerolog.Logger
}

func NewWorkspaceUseCase(workspaces repository.WorkspaceRepository, users repository.UserRepository, tm repository.TransactionManager, logger *zerolog.Logger) *workspaceUC {
	return &workspaceUC{workspaces: workspaces, users: users, tm: tm, log: logger}
}

func (w *workspaceUC) ListForUser(ctx context.Context, userID string) ([]*model.Workspace, error) {
	defer logging.TraceDuration(w.log, "WorkspaceUC.ListForUser")()

	u, err := w.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if u == nil {
		return nil, domain.ErrUnauthenticated
	}
	if len(u.Workspaces) == 0 {
		return []*model.Workspace{}, nil
	}
	return w.workspaces.ListByIDs(ctx, repository.NoTX, u.Workspaces)
}

// GetWithMembers loads the workspace and resolves its members concurrently.
// Members that fail to load are left out.
func (w *workspaceUC) GetWithMembers(ctx context.Context, workspaceID string) (*model.Workspace, error) {
	defer logging.TraceDuration(w.log, "WorkspaceUC.GetWithMembers")()

	ws, err := w.workspaces.FindByID(ctx, repository.NoTX, workspaceID)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, domain.ErrNotFound
	}

	log := logging.With(ctx, w.log)
	slots := make([]*model.User, len(ws.MemberIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(memberFetchLimit)
	for i, id := range ws.MemberIDs {
		i, id := i, id
		g.Go(func() error {
			u, err := w.users.FindByID(gctx, repository.NoTX, id)
			if err != nil || u == nil {
				log.Warn().Err(err).Str("member_id", id).Str("workspace_id", workspaceID).Msg("skipping member")
				return nil
			}
			slots[i] = u
			return nil
		})
	}
	_ = g.Wait()

	ws.Members = make([]*model.User, 0, len(slots))
	for _, u := range slots {
		if u != nil {
			ws.Members = append(ws.Members, u)
		}
	}
	return ws, nil
}

// JoinByInviteCode adds the user to the workspace on both sides in one transaction.
// Existing members get ErrAlreadyMember and the super admin gets ErrWorkspaceAdmin.
func (w *workspaceUC) JoinByInviteCode(ctx context.Context, userID, code string) (*model.Workspace, error) {
	defer logging.TraceDuration(w.log, "WorkspaceUC.JoinByInviteCode")()

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.ErrInviteNotFound
	}

	var joined *model.Workspace
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := w.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		ws, err := w.workspaces.FindByInviteCode(ctx, tx, code)
		if errors.Is(err, domain.ErrNotFound) || (err == nil && ws == nil) {
			return domain.ErrInviteNotFound
		}
		if err != nil {
			return err
		}
		u, err := w.users.FindByID(ctx, tx, userID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if u == nil {
			return domain.ErrUnauthenticated
		}

		if ws.HasMember(userID) {
			return domain.ErrAlreadyMember
		}
		if ws.SuperAdmin == userID {
			return domain.ErrWorkspaceAdmin
		}
		if err := w.workspaces.AddMember(ctx, tx, ws.ID, userID); err != nil {
			return err
		}
		ws.MemberIDs = append(ws.MemberIDs, userID)
		if !slices.Contains(u.Workspaces, ws.ID) {
			if err := w.users.AddWorkspace(ctx, tx, userID, ws.ID); err != nil {
				return err
			}
		}
		joined = ws
		return nil
	})
	if err != nil {
		return nil, err
	}
	return joined, nil
}
