package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"bookmarks-billing/internal/domain/ports/usecase"
	"bookmarks-billing/internal/infra/metrics"
)

// ExpiryWorker periodically finishes expired subscriptions and refreshes
// the per-status subscription gauge.
type ExpiryWorker struct {
	interval time.Duration
	expirer  usecase.SubscriptionExpirer
	stats    usecase.SubscriptionStats
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, expirer usecase.SubscriptionExpirer, stats usecase.SubscriptionStats, logger *zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	exprLog := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval: interval,
		expirer:  expirer,
		stats:    stats,
		log:      &exprLog,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting expiry worker")
	// Run once on startup, then on every tick
	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *ExpiryWorker) tick(ctx context.Context) {
	n, err := w.expirer.FinishExpired(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("expiry worker error")
	}
	if n > 0 {
		metrics.IncSubscriptionsExpired(n)
		w.log.Info().Int("count", n).Msg("expired subscriptions finished")
	}
	if w.stats == nil {
		return
	}
	counts, err := w.stats.CountByStatus(ctx)
	if err != nil {
		w.log.Warn().Err(err).Msg("count subscriptions failed")
		return
	}
	metrics.SetSubscriptionsTotal(counts)
}
