package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GateDecisions counts authorization outcomes per action.
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_gate_decisions_total",
		Help: "Entitlement gate decisions by action and outcome.",
	}, []string{"action", "outcome"})

	// Payments counts ledger outcomes.
	Payments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_payments_total",
		Help: "Payment attempts by final status.",
	}, []string{"status"})

	// SweepTransitions counts transitions made by the scheduled sweeps.
	SweepTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_sweep_transitions_total",
		Help: "Subscription transitions performed by scheduled sweeps.",
	}, []string{"transition"})
)
