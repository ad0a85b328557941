package adapter

import (
	"context"

	"teamchat-upgrade/internal/domain/model"
)

// PaymentGateway is the hex port for mobile-money providers.
//
// Implementations report every failure as a model.PaymentOutcome with an ErrorCode;
// they never panic and never return Go errors. CheckPaymentStatus must be idempotent
// for a given checkout request id.
type PaymentGateway interface {
	Name() string

	// InitiatePayment sends an STK push prompt to the customer's handset.
	InitiatePayment(ctx context.Context, req model.PaymentRequest) model.PaymentOutcome
	// CheckPaymentStatus queries the outcome of a previously initiated payment.
	CheckPaymentStatus(ctx context.Context, checkoutRequestID string) model.PaymentOutcome

	TransactionLimits() model.TransactionLimits
}
