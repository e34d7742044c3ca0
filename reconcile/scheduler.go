// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs a pass every minute.
const DefaultSchedule = "@every 1m"

// Scheduler runs the reconciler on a cron schedule. A pass that is still
// running when the next one is due causes that one to be skipped.
type Scheduler struct {
	rec   *Reconciler
	cron  *cron.Cron
	entry cron.EntryID
	ctx   context.Context
}

func NewScheduler(rec *Reconciler, schedule string) (*Scheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", schedule, err)
	}

	logger := cronLogger{}
	s := &Scheduler{
		rec: rec,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx: context.Background(),
	}

	id, err := s.cron.AddFunc(schedule, s.run)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule reconciliation: %w", err)
	}
	s.entry = id
	return s, nil
}

// Start runs a pass right away and then on schedule. Passes use ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	go s.cron.Entry(s.entry).WrappedJob.Run()
	slog.Info("reconciliation scheduled", "next", humanize.Time(s.cron.Entry(s.entry).Next))
}

// Stop stops scheduling and waits for a running pass to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run() {
	report, err := s.rec.RunOnce(s.ctx)
	if err != nil {
		slog.Error("reconciliation pass failed", "error", err)
		return
	}
	if report.Failed > 0 {
		slog.Warn("reconciliation pass incomplete", "failed", report.Failed)
	}
}

// cronLogger sends cron's own logging to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
