package app

import (
	"context"
	"log/slog"
)

// Sweeper is the slice of Lifecycle the scheduled jobs need.
type Sweeper interface {
	SweepExpirations(ctx context.Context) (int, error)
	ProcessRenewals(ctx context.Context) (renewed, expired int, err error)
	ReconcilePending(ctx context.Context) (int, error)
}

// Jobs contains the logic behind the scheduler entry points.
type Jobs struct {
	sweeper Sweeper
	alerts  Alerts
	log     *slog.Logger
}

func NewJobs(sweeper Sweeper, alerts Alerts, log *slog.Logger) *Jobs {
	if alerts == nil {
		alerts = NoopAlerts()
	}
	return &Jobs{sweeper: sweeper, alerts: alerts, log: log}
}

// SweepExpirations expires overdue non-renewing subscriptions.
func (j *Jobs) SweepExpirations() {
	ctx := context.Background()
	n, err := j.sweeper.SweepExpirations(ctx)
	if err != nil {
		j.log.Error("expiry sweep failed", "err", err)
		return
	}
	if n > 0 {
		j.log.Info("expiry sweep finished", "expired", n)
		j.alerts.SweepSummary(n, 0, 0)
	}
}

// ProcessRenewals charges due auto-renewing subscriptions.
func (j *Jobs) ProcessRenewals() {
	ctx := context.Background()
	renewed, expired, err := j.sweeper.ProcessRenewals(ctx)
	if err != nil {
		j.log.Error("renewal run failed", "err", err)
		return
	}
	if renewed+expired > 0 {
		j.log.Info("renewal run finished", "renewed", renewed, "expired", expired)
		j.alerts.SweepSummary(expired, renewed, 0)
	}
}

// ReconcilePendingPayments settles subscriptions parked in pending after a
// charge with an unknown outcome.
func (j *Jobs) ReconcilePendingPayments() {
	ctx := context.Background()
	n, err := j.sweeper.ReconcilePending(ctx)
	if err != nil {
		j.log.Error("payment reconciliation failed", "err", err)
		return
	}
	if n > 0 {
		j.log.Info("payment reconciliation finished", "resolved", n)
		j.alerts.SweepSummary(0, 0, n)
	}
}
