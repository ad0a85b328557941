package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidExecContext  = errors.New("invalid execution context")
	ErrOperationFailed     = errors.New("database operation failed")
	ErrReadDatabaseRow     = errors.New("failed to read database row")
	ErrUnauthenticated     = errors.New("user is not authenticated")
	ErrInsufficientCredits = errors.New("insufficient credits")

	// Billing / upgrade workflow
	ErrPlanNotFound     = errors.New("subscription plan not found")
	ErrValidation       = errors.New("upgrade request is invalid")
	ErrRateLimited      = errors.New("too many payment attempts")
	ErrWorkflowBusy     = errors.New("an upgrade is already in progress")
	ErrWorkflowNotFound = errors.New("upgrade workflow not found")
	ErrWorkflowState    = errors.New("operation not allowed in current upgrade state")
	ErrInviteNotFound   = errors.New("invite code not found")
	ErrAlreadyMember    = errors.New("you are already a member of this workspace")
	ErrWorkspaceAdmin   = errors.New("you are the admin of this workspace")
)
