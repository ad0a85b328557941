package payment

import (
	"context"

	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.PaymentGateway = (*limitedGateway)(nil)

type limitedGateway struct {
	inner adapter.PaymentGateway
	sem   chan struct{}
}

// Limit caps the number of concurrent provider calls. Callers whose context
// ends while queued get an API_ERROR outcome.
func Limit(inner adapter.PaymentGateway, maxConcurrent int) adapter.PaymentGateway {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedGateway{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedGateway) Name() string { return l.inner.Name() }

func (l *limitedGateway) TransactionLimits() model.TransactionLimits {
	return l.inner.TransactionLimits()
}

func (l *limitedGateway) acquire(ctx context.Context) bool {
	select {
	case l.sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *limitedGateway) InitiatePayment(ctx context.Context, req model.PaymentRequest) model.PaymentOutcome {
	if !l.acquire(ctx) {
		return model.FailedOutcome(model.ErrorCodeAPIError, msgInitiateFailed)
	}
	defer func() { <-l.sem }()
	return l.inner.InitiatePayment(ctx, req)
}

func (l *limitedGateway) CheckPaymentStatus(ctx context.Context, checkoutRequestID string) model.PaymentOutcome {
	if !l.acquire(ctx) {
		return model.FailedOutcome(model.ErrorCodeAPIError, msgStatusFailed)
	}
	defer func() { <-l.sem }()
	return l.inner.CheckPaymentStatus(ctx, checkoutRequestID)
}
