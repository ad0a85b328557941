package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Downgrader moves lapsed premium accounts back to the free tier.
type Downgrader interface {
	DowngradeExpired(ctx context.Context, now time.Time, batch int) (int, error)
}

// ExpiryWorker periodically downgrades expired subscriptions via the use case.
type ExpiryWorker struct {
	interval time.Duration
	batch    int
	users    Downgrader
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, batch int, users Downgrader, logger *zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	if batch <= 0 {
		batch = 200
	}
	exprLog := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval: interval,
		batch:    batch,
		users:    users,
		log:      &exprLog,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.Sweep(ctx, time.Now())
		}
	}
}

// Sweep drains expired accounts batch by batch until a short batch comes back.
func (w *ExpiryWorker) Sweep(ctx context.Context, now time.Time) int {
	total := 0
	for ctx.Err() == nil {
		n, err := w.users.DowngradeExpired(ctx, now, w.batch)
		if err != nil {
			w.log.Error().Err(err).Msg("expiry worker error")
			break
		}
		total += n
		if n < w.batch {
			break
		}
	}
	return total
}
