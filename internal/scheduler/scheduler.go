// Package scheduler wires ReconciliationEngine and JobController to wall
// clock time: two independent tickers, one per cadence.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackzampolin/syncbridge/internal/jobctl"
	"github.com/jackzampolin/syncbridge/internal/recon"
)

// DefaultJobCheckInterval is the fixed cadence for JobController.Tick;
// unlike the reconcile period it has no environment override.
const DefaultJobCheckInterval = time.Minute

// Scheduler runs the reconcile and job-check loops until its context is
// cancelled. It holds no reference to the config package: a caller that
// wants the reconcile period to track a live-reloaded config value wires
// PeriodChanges to config.Manager.OnChange itself, which keeps this package
// testable with arbitrarily small intervals.
type Scheduler struct {
	Engine *recon.Engine
	Jobs   *jobctl.Controller
	Logger *slog.Logger

	ReconcileInterval time.Duration
	JobCheckInterval  time.Duration

	// PeriodChanges, if non-nil, delivers a new reconcile interval whenever
	// the caller's config source changes it. A nil channel simply never
	// fires, leaving ReconcileInterval fixed for the run's lifetime.
	PeriodChanges <-chan time.Duration

	reconcileBusy atomic.Bool
	jobsBusy      atomic.Bool
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Scheduler) jobCheckInterval() time.Duration {
	if s.JobCheckInterval > 0 {
		return s.JobCheckInterval
	}
	return DefaultJobCheckInterval
}

// Run blocks until ctx is cancelled. A tick that fires while the previous
// one of the same kind is still running is skipped, not queued.
func (s *Scheduler) Run(ctx context.Context) {
	reconcileTicker := time.NewTicker(s.ReconcileInterval)
	defer reconcileTicker.Stop()

	jobTicker := time.NewTicker(s.jobCheckInterval())
	defer jobTicker.Stop()

	s.logger().Info("scheduler started",
		"reconcile_period", s.ReconcileInterval,
		"job_check_period", s.jobCheckInterval())

	for {
		select {
		case <-ctx.Done():
			s.logger().Info("scheduler stopping")
			return
		case next := <-s.PeriodChanges:
			s.logger().Info("reconcile period changed", "period", next)
			reconcileTicker.Reset(next)
		case <-reconcileTicker.C:
			s.tickReconcile(ctx)
		case <-jobTicker.C:
			s.tickJobs(ctx)
		}
	}
}

func (s *Scheduler) tickReconcile(ctx context.Context) {
	if !s.reconcileBusy.CompareAndSwap(false, true) {
		s.logger().Warn("reconcile tick skipped, previous cycle still running")
		return
	}
	go func() {
		defer s.reconcileBusy.Store(false)
		result := s.Engine.Cycle(ctx)
		s.logger().Info("reconcile cycle complete",
			"mappings", len(result.Results),
			"propagated", len(result.Propagated()))
	}()
}

func (s *Scheduler) tickJobs(ctx context.Context) {
	if !s.jobsBusy.CompareAndSwap(false, true) {
		s.logger().Warn("job tick skipped, previous tick still running")
		return
	}
	go func() {
		defer s.jobsBusy.Store(false)
		s.Jobs.Tick(ctx)
	}()
}
