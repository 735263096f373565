// Package scheduler runs the periodic expiry sweep that deactivates deals
// whose expiresAt has passed.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Expirer is the storage capability the sweep needs.
type Expirer interface {
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)
}

// Scheduler wraps robfig/cron and owns the expiry job.
type Scheduler struct {
	cron    *cron.Cron
	store   Expirer
	spec    string
	timeout time.Duration
	now     func() time.Time
}

// New creates a Scheduler firing on spec, e.g. "@every 1h".
func New(store Expirer, spec string) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		store:   store,
		spec:    spec,
		timeout: 2 * time.Minute,
		now:     time.Now,
	}
}

// Start registers the sweep, starts the cron loop and runs one sweep right
// away so deals that expired while the server was down are hidden promptly.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.run(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc(%q): %w", s.spec, err)
	}

	s.cron.Start()
	slog.Info("Expiry sweep scheduled", "spec", s.spec)

	go s.run(ctx)
	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("Expiry sweep stopped")
}

// RunOnce performs a single sweep.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.store.DeactivateExpired(ctx, s.now())
	if err != nil {
		return n, fmt.Errorf("expiry sweep failed: %w", err)
	}
	return n, nil
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := s.RunOnce(ctx)
	if err != nil {
		slog.Error("Expiry sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Deactivated expired deals", "count", n)
	}
}
