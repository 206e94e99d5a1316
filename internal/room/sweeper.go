package room

import (
	"context"
	"log/slog"
	"time"

	"presentsync/internal/storage"
)

// DefaultSweepInterval is how often the sweeper scans for expired rooms.
const DefaultSweepInterval = time.Minute

// Sweeper periodically deactivates rooms whose expiry has passed. It runs
// outside the broadcast paths; the service only maintains the timestamps
// the sweeper reads.
type Sweeper struct {
	svc      *Service
	repo     storage.SessionRepository
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// NewSweeper returns a sweeper over the service's session repository.
func NewSweeper(svc *Service, repo storage.SessionRepository, interval time.Duration, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{svc: svc, repo: repo, interval: interval, log: log, now: time.Now}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sw.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep deactivates every active room past its expiry and reports how
// many were reaped.
func (sw *Sweeper) Sweep(ctx context.Context) int {
	codes, err := sw.repo.ActiveCodes(ctx)
	if err != nil {
		sw.log.Error("sweep listing failed", slog.String("error", err.Error()))
		return 0
	}
	reaped := 0
	for _, code := range codes {
		sess, err := sw.repo.Get(ctx, code)
		if err != nil {
			continue
		}
		if !sw.now().After(sess.ExpiresAt) {
			continue
		}
		if err := sw.svc.Expire(ctx, code); err != nil {
			sw.log.Error("expire failed", slog.String("code", code), slog.String("error", err.Error()))
			continue
		}
		reaped++
	}
	if reaped > 0 {
		sw.log.Info("expired rooms reaped", slog.Int("count", reaped))
	}
	return reaped
}
