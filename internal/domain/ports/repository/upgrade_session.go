package repository

import (
	"context"

	"teamchat-upgrade/internal/domain/model"
)

// UpgradeSessionRepository mirrors workflow snapshots outside the process.
type UpgradeSessionRepository interface {
	SaveSnapshot(ctx context.Context, snap *model.WorkflowSnapshot) error
	GetSnapshot(ctx context.Context, workflowID string) (*model.WorkflowSnapshot, error)
	DeleteSnapshot(ctx context.Context, workflowID string) error
}
