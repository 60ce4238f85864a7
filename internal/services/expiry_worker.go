package services

import (
	"context"
	"log/slog"
	"time"
)

// ExpiryWorker periodically completes focus sessions whose end time has
// passed so listeners see the block lift without waiting for a poll.
type ExpiryWorker struct {
	sessions *SessionService
	interval time.Duration
}

func NewExpiryWorker(sessions *SessionService, interval time.Duration) *ExpiryWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ExpiryWorker{sessions: sessions, interval: interval}
}

// Run blocks until ctx is cancelled.
func (w *ExpiryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	slog.Info("Session expiry worker started", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Session expiry worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *ExpiryWorker) tick(ctx context.Context) {
	n, err := w.sessions.ExpireDue(ctx)
	if err != nil {
		slog.Error("Failed to expire focus sessions", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Expired focus sessions", "count", n)
	}
}
