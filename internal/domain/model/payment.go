package model

import "time"

// ErrorCode classifies a failed payment outcome.
type ErrorCode string

const (
	ErrorCodeNone          ErrorCode = ""
	ErrorCodeInvalidPhone  ErrorCode = "INVALID_PHONE"
	ErrorCodeInvalidAmount ErrorCode = "INVALID_AMOUNT"
	ErrorCodeAPIError      ErrorCode = "API_ERROR"
	ErrorCodePaymentFailed ErrorCode = "PAYMENT_FAILED"
	// ErrorCodePending is reported by real gateways while the customer has not answered yet.
	ErrorCodePending ErrorCode = "PAYMENT_PENDING"
	// ErrorCodeTimeout is produced by the upgrade controller when polling is exhausted.
	ErrorCodeTimeout ErrorCode = "TIMEOUT"
)

const (
	MinPaymentAmount int64 = 1
	MaxPaymentAmount int64 = 70000
)

// TransactionLimits mirrors the mobile-money provider's per-transaction and rolling limits (KES).
type TransactionLimits struct {
	MinAmount    int64 `json:"min_amount"`
	MaxAmount    int64 `json:"max_amount"`
	DailyLimit   int64 `json:"daily_limit"`
	MonthlyLimit int64 `json:"monthly_limit"`
}

func DefaultTransactionLimits() TransactionLimits {
	return TransactionLimits{
		MinAmount:    MinPaymentAmount,
		MaxAmount:    MaxPaymentAmount,
		DailyLimit:   140000,
		MonthlyLimit: 1000000,
	}
}

// PaymentRequest is one STK push attempt.
type PaymentRequest struct {
	PhoneNumber string `json:"phone_number"`
	Amount      int64  `json:"amount"`
	Reference   string `json:"reference"`
	Description string `json:"description"`
}

// Validate reports the first local validation failure, or ErrorCodeNone.
func (r PaymentRequest) Validate() ErrorCode {
	if !IsValidPhoneNumber(r.PhoneNumber) {
		return ErrorCodeInvalidPhone
	}
	if r.Amount < MinPaymentAmount || r.Amount > MaxPaymentAmount {
		return ErrorCodeInvalidAmount
	}
	return ErrorCodeNone
}

// PaymentOutcome is the structured result of every gateway call. Gateways never return Go errors.
type PaymentOutcome struct {
	Success           bool      `json:"success"`
	CheckoutRequestID string    `json:"checkout_request_id,omitempty"`
	Message           string    `json:"message"`
	ErrorCode         ErrorCode `json:"error_code,omitempty"`
}

func FailedOutcome(code ErrorCode, msg string) PaymentOutcome {
	return PaymentOutcome{Success: false, Message: msg, ErrorCode: code}
}

// Messages shown for local validation failures.
const (
	MsgInvalidPhone  = "Invalid phone number format. Please use format: 254XXXXXXXXX"
	MsgInvalidAmount = "Invalid amount. Amount must be between KES 1 and KES 70,000"
)

// ValidationOutcome converts a local validation code into an outcome.
func ValidationOutcome(code ErrorCode) PaymentOutcome {
	switch code {
	case ErrorCodeInvalidPhone:
		return FailedOutcome(code, MsgInvalidPhone)
	case ErrorCodeInvalidAmount:
		return FailedOutcome(code, MsgInvalidAmount)
	}
	return PaymentOutcome{Success: true}
}

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusSuccessful PaymentStatus = "successful"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// Payment records one upgrade attempt against the mobile-money provider.
type Payment struct {
	ID                string
	UserID            string
	WorkspaceID       string // optional; the workspace the user upgraded from
	PlanID            string
	Provider          string
	Amount            int64
	PhoneNumber       string // plaintext in memory, encrypted at rest
	Reference         string
	CheckoutRequestID string
	Status            PaymentStatus
	ErrorCode         ErrorCode
	Message           string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}
