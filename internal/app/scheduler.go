/**
 * @description
 * Cron scheduler setup for scheduled jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// SchedulerConfig carries the cron expressions for each job.
type SchedulerConfig struct {
	ReminderSchedule      string
	PoolReconcileSchedule string
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config SchedulerConfig
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg SchedulerConfig) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.ReminderSchedule, s.jobs.ScanReminders); err != nil {
		s.logger.Error("failed to schedule reminder scan job", "error", err)
	} else {
		s.logger.Info("scheduled reminder scan job", "schedule", s.config.ReminderSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.PoolReconcileSchedule, s.jobs.ReconcilePools); err != nil {
		s.logger.Error("failed to schedule pool reconcile job", "error", err)
	} else {
		s.logger.Info("scheduled pool reconcile job", "schedule", s.config.PoolReconcileSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
