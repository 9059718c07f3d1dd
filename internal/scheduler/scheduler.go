/**
 * @description
 * Cron scheduler setup for billing jobs.
 */
package scheduler

import (
	"context"
	"log/slog"

	"github.com/nannygold/billing-service/internal/config"
	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.SchedulerConfig
}

// NewScheduler creates a new scheduler instance. Cron expressions are
// evaluated in the jobs' business timezone.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.SchedulerConfig) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(
		cron.WithLocation(jobs.loc),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler. It returns the
// number of jobs registered.
func (s *Scheduler) Start() int {
	entries := []struct {
		name     string
		schedule string
		run      func()
	}{
		{name: "invoice generation", schedule: s.config.InvoiceJobSchedule, run: s.jobs.GenerateInvoices},
		{name: "overdue invoices", schedule: s.config.OverdueJobSchedule, run: s.jobs.MarkOverdue},
		{name: "payment authorization", schedule: s.config.AuthorizationJobSchedule, run: s.jobs.RunAuthorizations},
		{name: "payment capture", schedule: s.config.CaptureJobSchedule, run: s.jobs.RunCaptures},
	}

	registered := 0
	for _, e := range entries {
		if _, err := s.cron.AddFunc(e.schedule, e.run); err != nil {
			s.logger.Error("failed to schedule billing job", "job", e.name, "error", err)
			continue
		}
		registered++
		s.logger.Info("scheduled billing job", "job", e.name, "schedule", e.schedule)
	}

	s.cron.Start()
	return registered
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
