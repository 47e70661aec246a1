package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Schedules holds the cron specs for the periodic passes.
type Schedules struct {
	Expiry    string
	Renewal   string
	Reconcile string
}

// Scheduler drives the sweeps on fixed intervals, independent of request
// handling.
type Scheduler struct {
	cron *cron.Cron
	jobs *Jobs
	spec Schedules
	log  *slog.Logger
}

func NewScheduler(jobs *Jobs, spec Schedules, log *slog.Logger) *Scheduler {
	cronLog := cron.PrintfLogger(slog.NewLogLogger(log.Handler(), slog.LevelInfo))
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(cronLog))),
		jobs: jobs,
		spec: spec,
		log:  log,
	}
}

// Start registers the jobs and begins ticking.
func (s *Scheduler) Start() {
	entries := []struct {
		name string
		spec string
		fn   func()
	}{
		{"expiry sweep", s.spec.Expiry, s.jobs.SweepExpirations},
		{"renewal run", s.spec.Renewal, s.jobs.ProcessRenewals},
		{"payment reconciliation", s.spec.Reconcile, s.jobs.ReconcilePendingPayments},
	}
	for _, e := range entries {
		if e.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(e.spec, e.fn); err != nil {
			s.log.Error("failed to schedule job", "job", e.name, "spec", e.spec, "err", err)
			continue
		}
		s.log.Info("scheduled job", "job", e.name, "spec", e.spec)
	}
	s.cron.Start()
}

// Stop halts scheduling; the returned context is done when running jobs
// finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
