package adapter

import "context"

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notifier surfaces short user-facing messages (toasts) for a user session.
type Notifier interface {
	Notify(ctx context.Context, userID string, level NoticeLevel, message string)
}
