// Package scheduler re-runs the site audit on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/surerank/seo-analyzer/checks"
)

// Auditor runs one site audit. An empty URL means the configured home page.
type Auditor interface {
	Analyze(ctx context.Context, rawURL string, fresh bool) (*checks.ResultSet, error)
}

// Scheduler owns the cron runner for the periodic site audit.
type Scheduler struct {
	cron    *cron.Cron
	auditor Auditor
	timeout time.Duration
	logger  *slog.Logger
}

// New registers the audit under schedule, a standard five-field cron expression or a descriptor such as "@every 6h".
// An empty schedule returns a nil Scheduler: the audit is disabled.
func New(schedule string, auditor Auditor, logger *slog.Logger) (*Scheduler, error) {
	if schedule == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{auditor: auditor, timeout: 5 * time.Minute, logger: logger}
	s.cron = cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	if _, err := s.cron.AddFunc(schedule, s.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid audit schedule %q: %w", schedule, err)
	}
	return s, nil
}

// RunOnce audits the home page, bypassing the site cache.
func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	rs, err := s.auditor.Analyze(ctx, "", true)
	if err != nil {
		s.logger.Error("Scheduled site audit failed", "error", err)
		return
	}
	s.logger.Info("Scheduled site audit finished", "checks", rs.Len(), "worst", rs.Worst())
}

// Start runs the cron loop until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts the cron loop and waits for a running audit to finish.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	<-s.cron.Stop().Done()
}
