package session

import (
	"context"
	"log/slog"
	"time"
)

// SweepInterval is the cadence of the background cleanup of expired and
// inactive sessions.
const SweepInterval = time.Hour

// Sweeper runs the periodic session cleanup. It is an explicit,
// stoppable task rather than a fire-and-forget timer so tests and
// process shutdown can stop it cleanly.
type Sweeper struct {
	logger  *slog.Logger
	manager *Manager

	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper creates a sweeper over the manager with the default interval.
func NewSweeper(logger *slog.Logger, manager *Manager) *Sweeper {
	return &Sweeper{
		logger:   logger,
		manager:  manager,
		interval: SweepInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background sweep loop. Call Stop to end it.
func (s *Sweeper) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop ends the sweep loop and waits for the current pass to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweep runs both cleanups. Deleting a session concurrently with live
// traffic is safe: the losing request sees "not found" and reports the
// session invalid.
func (s *Sweeper) sweep(ctx context.Context) {
	expired, err := s.manager.CleanupExpiredSessions(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "expired session sweep failed", slog.Any("error", err))
	}

	inactive, err := s.manager.CleanupInactiveSessions(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "inactive session sweep failed", slog.Any("error", err))
	}

	if expired > 0 || inactive > 0 {
		s.logger.InfoContext(ctx, "session sweep completed",
			slog.Int("expired_removed", expired),
			slog.Int("inactive_removed", inactive))
	}
}
