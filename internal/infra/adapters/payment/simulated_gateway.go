// File: internal/infra/adapters/payment/simulated_gateway.go
package payment

import (
	"context"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*SimulatedGateway)(nil)

const (
	msgSTKSent          = "STK push sent successfully. Please check your phone to complete the payment."
	msgInitiateFailed   = "Failed to initiate payment. Please try again."
	msgPaymentCompleted = "Payment completed successfully"
	msgPaymentFailed    = "Payment failed or was cancelled"
	msgStatusFailed     = "Failed to check payment status"
	msgDuplicateRef     = "Payment reference has already been used."
	msgUnknownCheckout  = "Unknown checkout request."
)

// SimulatedGateway is an in-process stand-in for the mobile-money provider.
// It never touches the network. Each instance owns its state; there is no
// package-level singleton.
type SimulatedGateway struct {
	initLatency   time.Duration
	statusLatency time.Duration
	successRate   float64
	retention     time.Duration
	now           func() time.Time
	log           *zerolog.Logger

	mu        sync.Mutex
	rnd       *rand.Rand
	entropy   io.Reader
	lastPrune time.Time
	refs      map[string]time.Time
	checkouts map[string]*simCheckout
}

type simCheckout struct {
	createdAt time.Time
	outcome   *model.PaymentOutcome // nil until the first status check resolves it
}

type SimulatedOption func(*SimulatedGateway)

// WithLatency overrides the simulated delay of initiate and status calls.
func WithLatency(initiate, status time.Duration) SimulatedOption {
	return func(g *SimulatedGateway) {
		g.initLatency = initiate
		g.statusLatency = status
	}
}

// WithSuccessRate sets the probability in [0,1] that a status check succeeds.
func WithSuccessRate(rate float64) SimulatedOption {
	return func(g *SimulatedGateway) {
		if rate < 0 {
			rate = 0
		}
		if rate > 1 {
			rate = 1
		}
		g.successRate = rate
	}
}

// WithRand injects the random source. Tests pass a seeded source for determinism.
func WithRand(r *rand.Rand) SimulatedOption {
	return func(g *SimulatedGateway) {
		if r != nil {
			g.rnd = r
		}
	}
}

// WithRetention sets how long checkouts and references are remembered.
// Older entries are forgotten and report an unknown checkout.
func WithRetention(d time.Duration) SimulatedOption {
	return func(g *SimulatedGateway) {
		if d > 0 {
			g.retention = d
		}
	}
}

func WithClock(now func() time.Time) SimulatedOption {
	return func(g *SimulatedGateway) {
		if now != nil {
			g.now = now
		}
	}
}

func WithLogger(l *zerolog.Logger) SimulatedOption {
	return func(g *SimulatedGateway) {
		if l != nil {
			g.log = l
		}
	}
}

func NewSimulatedGateway(opts ...SimulatedOption) *SimulatedGateway {
	nop := zerolog.Nop()
	g := &SimulatedGateway{
		initLatency:   2 * time.Second,
		statusLatency: time.Second,
		successRate:   0.9,
		retention:     24 * time.Hour,
		now:           time.Now,
		log:           &nop,
		rnd:           rand.New(rand.NewSource(time.Now().UnixNano())),
		refs:          make(map[string]time.Time),
		checkouts:     make(map[string]*simCheckout),
	}
	for _, o := range opts {
		o(g)
	}
	g.entropy = ulid.Monotonic(g.rnd, 0)
	return g
}

func (g *SimulatedGateway) Name() string { return "simulated" }

func (g *SimulatedGateway) TransactionLimits() model.TransactionLimits {
	return model.DefaultTransactionLimits()
}

func (g *SimulatedGateway) InitiatePayment(ctx context.Context, req model.PaymentRequest) (out model.PaymentOutcome) {
	defer g.recoverInto(&out, msgInitiateFailed)

	if code := req.Validate(); code != model.ErrorCodeNone {
		return model.ValidationOutcome(code)
	}
	if err := sleepCtx(ctx, g.initLatency); err != nil {
		return model.FailedOutcome(model.ErrorCodeAPIError, msgInitiateFailed)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.pruneLocked(now)
	if req.Reference != "" {
		if _, used := g.refs[req.Reference]; used {
			return model.FailedOutcome(model.ErrorCodeAPIError, msgDuplicateRef)
		}
		g.refs[req.Reference] = now
	}
	id := "REQ_" + ulid.MustNew(ulid.Timestamp(now), g.entropy).String()
	g.checkouts[id] = &simCheckout{createdAt: now}

	g.log.Debug().Str("checkout_request_id", id).Int64("amount", req.Amount).Msg("simulated stk push")
	return model.PaymentOutcome{Success: true, CheckoutRequestID: id, Message: msgSTKSent}
}

// CheckPaymentStatus resolves a checkout once; later checks return the memoized outcome.
func (g *SimulatedGateway) CheckPaymentStatus(ctx context.Context, checkoutRequestID string) (out model.PaymentOutcome) {
	defer g.recoverInto(&out, msgStatusFailed)

	if err := sleepCtx(ctx, g.statusLatency); err != nil {
		return model.FailedOutcome(model.ErrorCodeAPIError, msgStatusFailed)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked(g.now())
	c, known := g.checkouts[checkoutRequestID]
	if !known {
		return model.FailedOutcome(model.ErrorCodeAPIError, msgUnknownCheckout)
	}
	if c.outcome != nil {
		return *c.outcome
	}

	var res model.PaymentOutcome
	if g.rnd.Float64() < g.successRate {
		res = model.PaymentOutcome{Success: true, CheckoutRequestID: checkoutRequestID, Message: msgPaymentCompleted}
	} else {
		res = model.FailedOutcome(model.ErrorCodePaymentFailed, msgPaymentFailed)
		res.CheckoutRequestID = checkoutRequestID
	}
	c.outcome = &res
	return res
}

// pruneLocked drops entries older than the retention window, at most once a minute.
func (g *SimulatedGateway) pruneLocked(now time.Time) {
	if now.Sub(g.lastPrune) < time.Minute {
		return
	}
	g.lastPrune = now
	cutoff := now.Add(-g.retention)
	for ref, at := range g.refs {
		if at.Before(cutoff) {
			delete(g.refs, ref)
		}
	}
	for id, c := range g.checkouts {
		if c.createdAt.Before(cutoff) {
			delete(g.checkouts, id)
		}
	}
}

func (g *SimulatedGateway) recoverInto(out *model.PaymentOutcome, msg string) {
	if r := recover(); r != nil {
		g.log.Error().Interface("panic", r).Msg("simulated gateway recovered from panic")
		*out = model.FailedOutcome(model.ErrorCodeAPIError, msg)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
