package workers

import (
	"context"
	"log/slog"
	"pinger/contract"
	"time"
)

// SessionSweeper periodically forgets expired sessions and stale rate limit counters.
type SessionSweeper struct {
	log      *slog.Logger
	store    contract.IIdentityStore
	limiter  contract.IRateLimiter
	interval time.Duration
	now      func() time.Time
}

func NewSessionSweeper(
	log *slog.Logger,
	store contract.IIdentityStore,
	limiter contract.IRateLimiter,
	interval time.Duration,
) *SessionSweeper {
	return &SessionSweeper{log: log, store: store, limiter: limiter, interval: interval, now: time.Now}
}

func (w *SessionSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Sweep()
		}
	}
}

func (w *SessionSweeper) Sweep() {
	now := w.now()
	sessions := w.store.Sweep(now)
	counters := 0
	if w.limiter != nil {
		counters = w.limiter.Cleanup(now)
	}
	if sessions > 0 || counters > 0 {
		w.log.Debug("Sweep done", "sessions", sessions, "rate_counters", counters)
	}
}
