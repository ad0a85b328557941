package model

import "time"

// WorkflowState is the user-visible step of an upgrade attempt.
type WorkflowState string

const (
	WorkflowIdle          WorkflowState = "idle"
	WorkflowInitiating    WorkflowState = "initiating"
	WorkflowWaitingOnUser WorkflowState = "waiting_on_user"
	WorkflowChecking      WorkflowState = "checking"
	WorkflowCompleted     WorkflowState = "completed"
	WorkflowFailed        WorkflowState = "failed"
)

func (s WorkflowState) Terminal() bool {
	return s == WorkflowCompleted || s == WorkflowFailed
}

// InFlight reports whether a gateway interaction is outstanding.
func (s WorkflowState) InFlight() bool {
	return s == WorkflowInitiating || s == WorkflowWaitingOnUser || s == WorkflowChecking
}

// WorkflowSnapshot is a point-in-time, serializable view of an upgrade workflow.
type WorkflowSnapshot struct {
	ID                string                `json:"id"`
	UserID            string                `json:"user_id"`
	State             WorkflowState         `json:"state"`
	PlanID            string                `json:"plan_id,omitempty"`
	PaymentID         string                `json:"payment_id,omitempty"`
	CheckoutRequestID string                `json:"checkout_request_id,omitempty"`
	Message           string                `json:"message,omitempty"`
	ErrorCode         ErrorCode             `json:"error_code,omitempty"`
	Attempts          int                   `json:"attempts"`
	Subscription      UserSubscriptionState `json:"subscription"`
	RedirectTo        string                `json:"redirect_to,omitempty"`
	UpdatedAt         time.Time             `json:"updated_at"`
}
