package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubSweeper struct {
	expired    int
	renewed    int
	reconciled int
	err        error

	sweepCalls     int
	renewCalls     int
	reconcileCalls int
}

func (s *stubSweeper) SweepExpirations(context.Context) (int, error) {
	s.sweepCalls++
	return s.expired, s.err
}

func (s *stubSweeper) ProcessRenewals(context.Context) (int, int, error) {
	s.renewCalls++
	return s.renewed, s.expired, s.err
}

func (s *stubSweeper) ReconcilePending(context.Context) (int, error) {
	s.reconcileCalls++
	return s.reconciled, s.err
}

type recordingAlerts struct {
	summaries [][3]int
}

func (a *recordingAlerts) PaymentFailed(string, string, string, int64) {}
func (a *recordingAlerts) AdminAction(string, string, string)          {}
func (a *recordingAlerts) SweepSummary(expired, renewed, reconciled int) {
	a.summaries = append(a.summaries, [3]int{expired, renewed, reconciled})
}

func newJobs(sweeper Sweeper, alerts Alerts) *Jobs {
	return NewJobs(sweeper, alerts, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSweepExpirationsAlertsOnWork(t *testing.T) {
	sw := &stubSweeper{expired: 3}
	al := &recordingAlerts{}
	newJobs(sw, al).SweepExpirations()

	assert.Equal(t, 1, sw.sweepCalls)
	assert.Equal(t, [][3]int{{3, 0, 0}}, al.summaries)
}

func TestSweepExpirationsQuietWhenIdle(t *testing.T) {
	sw := &stubSweeper{expired: 0}
	al := &recordingAlerts{}
	newJobs(sw, al).SweepExpirations()

	assert.Empty(t, al.summaries)
}

func TestProcessRenewalsAlerts(t *testing.T) {
	sw := &stubSweeper{renewed: 2, expired: 1}
	al := &recordingAlerts{}
	newJobs(sw, al).ProcessRenewals()

	assert.Equal(t, [][3]int{{1, 2, 0}}, al.summaries)
}

func TestReconcilePendingPayments(t *testing.T) {
	sw := &stubSweeper{reconciled: 4}
	al := &recordingAlerts{}
	newJobs(sw, al).ReconcilePendingPayments()

	assert.Equal(t, [][3]int{{0, 0, 4}}, al.summaries)
}

func TestJobsSwallowErrors(t *testing.T) {
	sw := &stubSweeper{err: errors.New("db down")}
	al := &recordingAlerts{}
	j := newJobs(sw, al)

	j.SweepExpirations()
	j.ProcessRenewals()
	j.ReconcilePendingPayments()

	assert.Equal(t, 1, sw.sweepCalls)
	assert.Equal(t, 1, sw.renewCalls)
	assert.Equal(t, 1, sw.reconcileCalls)
	assert.Empty(t, al.summaries)
}
