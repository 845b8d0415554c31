// Package retention prunes the message log on a schedule so the store
// never holds more than the configured horizon of chat history.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	otelPkg "github.com/basket/talbot/internal/otel"
)

// Purger deletes messages older than a unix-seconds cutoff.
// Implemented by *persistence.Store.
type Purger interface {
	PurgeOlderThan(ctx context.Context, cutoff int64) (int64, error)
}

// Config holds the dependencies for the retention sweeper.
type Config struct {
	Store    Purger
	Logger   *slog.Logger
	Interval time.Duration // sweep cadence; defaults to 1 hour if zero
	Horizon  time.Duration // retention span; defaults to 24 hours if zero
	Metrics  *otelPkg.Metrics
}

// Sweeper periodically removes messages older than the horizon.
// A failed sweep is logged and the next cycle proceeds unaffected.
type Sweeper struct {
	store    Purger
	logger   *slog.Logger
	interval time.Duration
	horizon  time.Duration
	metrics  *otelPkg.Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a Sweeper with the given config.
func NewSweeper(cfg Config) *Sweeper {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	horizon := cfg.Horizon
	if horizon <= 0 {
		horizon = 24 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    cfg.Store,
		logger:   logger,
		interval: interval,
		horizon:  horizon,
		metrics:  cfg.Metrics,
	}
}

// Start begins the sweep loop. It runs in a background goroutine
// and respects the provided context for shutdown.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("retention sweeper started", "interval", s.interval, "horizon", s.horizon)
}

// Stop cancels the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("retention sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Sweep immediately on startup, then on each tick.
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep removes rows older than now minus the horizon.
func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.horizon).Unix()
	purged, err := s.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention sweep failed", "error", err, "cutoff", cutoff)
		return
	}
	if purged > 0 {
		if s.metrics != nil {
			s.metrics.MessagesPurged.Add(ctx, purged)
		}
		s.logger.Info("retention sweep completed", "purged", purged, "cutoff", cutoff)
	}
}
