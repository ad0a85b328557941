package payment

import (
	"context"
	"time"

	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/domain/ports/adapter"
	"teamchat-upgrade/internal/infra/metrics"
)

// Compile-time check
var _ adapter.PaymentGateway = (*instrumentedGateway)(nil)

type instrumentedGateway struct {
	inner adapter.PaymentGateway
}

// Instrument wraps a gateway so every call is timed into Prometheus.
func Instrument(inner adapter.PaymentGateway) adapter.PaymentGateway {
	if inner == nil {
		return nil
	}
	return &instrumentedGateway{inner: inner}
}

func (g *instrumentedGateway) Name() string { return g.inner.Name() }

func (g *instrumentedGateway) TransactionLimits() model.TransactionLimits {
	return g.inner.TransactionLimits()
}

func (g *instrumentedGateway) InitiatePayment(ctx context.Context, req model.PaymentRequest) model.PaymentOutcome {
	start := time.Now()
	out := g.inner.InitiatePayment(ctx, req)
	metrics.ObserveGatewayCall(g.inner.Name(), "initiate", out.Success, time.Since(start))
	return out
}

func (g *instrumentedGateway) CheckPaymentStatus(ctx context.Context, checkoutRequestID string) model.PaymentOutcome {
	start := time.Now()
	out := g.inner.CheckPaymentStatus(ctx, checkoutRequestID)
	metrics.ObserveGatewayCall(g.inner.Name(), "status", out.Success, time.Since(start))
	return out
}
