package repository

import (
	"context"

	"teamchat-upgrade/internal/domain/model"
)

// WorkspaceRepository returns workspaces with MemberIDs populated; Members is left empty.
type WorkspaceRepository interface {
	Save(ctx context.Context, tx Tx, w *model.Workspace) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Workspace, error)
	FindByInviteCode(ctx context.Context, tx Tx, code string) (*model.Workspace, error)
	ListByIDs(ctx context.Context, tx Tx, ids []string) ([]*model.Workspace, error)
	AddMember(ctx context.Context, tx Tx, workspaceID, userID string) error
}
