package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"teamchat-upgrade/internal/domain"
	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/domain/ports/repository"
	"teamchat-upgrade/internal/infra/logging"
)

// Reconciler finalizes a pending payment against the provider.
type Reconciler interface {
	Reconcile(ctx context.Context, p *model.Payment) (*model.WorkflowSnapshot, error)
}

// PaymentReconciler periodically scans for stale pending payments and re-queries the
// provider for them. This covers polls that gave up and processes that crashed mid-check.
type PaymentReconciler struct {
	uc         Reconciler
	payments   repository.PaymentRepository
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a pending payment must be to retry
	batch      int
	log        *zerolog.Logger
}

func NewPaymentReconciler(uc Reconciler, payments repository.PaymentRepository, interval, staleAfter time.Duration, batch int, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	if batch <= 0 {
		batch = 200
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{uc: uc, payments: payments, interval: interval, staleAfter: staleAfter, batch: batch, log: &l}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting payment reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-t.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one scan and returns how many payments reached a terminal state.
func (w *PaymentReconciler) Tick(ctx context.Context) int {
	cutoff := time.Now().Add(-w.staleAfter)
	pending, err := w.payments.ListPendingOlderThan(ctx, repository.NoTX, cutoff, w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("list pending payments failed")
		return 0
	}
	settled := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			break
		}
		l := logging.With(logging.WithUserID(ctx, p.UserID), w.log).With().Str("payment_id", p.ID).Logger()
		snap, err := w.uc.Reconcile(ctx, p)
		switch {
		case errors.Is(err, domain.ErrWorkflowBusy):
			l.Debug().Msg("payment is owned by a live workflow")
		case err != nil:
			l.Warn().Err(err).Msg("reconcile failed")
		case snap != nil && snap.State.Terminal():
			settled++
			l.Info().Str("state", string(snap.State)).Msg("reconciled payment")
		}
	}
	return settled
}
