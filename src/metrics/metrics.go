// Package metrics holds the Prometheus collectors updated by the engine.
//
// Collectors are registered in init() and exposed by the API server at /metrics:
//   - tradeledger_serializer_jobs_total{priority,outcome}
//   - tradeledger_serializer_queue_depth
//   - tradeledger_serializer_retries_total
//   - tradeledger_execution_calls_total{call,outcome}
//   - tradeledger_execution_simulated  (1 once the silence protocol tripped)
//   - tradeledger_execution_budget_wait_seconds
//   - tradeledger_admission_decisions_total{outcome,gate}
//   - tradeledger_order_transitions_total{to}
//   - tradeledger_ledger_fills_total{side,outcome}
//   - tradeledger_nav_usd
//   - tradeledger_safety_terminations_total{rule}
//   - tradeledger_quote_lookups_total{source}
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SerializerJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeledger_serializer_jobs_total",
			Help: "Write jobs applied by the serializer",
		},
		[]string{"priority", "outcome"},
	)

	SerializerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradeledger_serializer_queue_depth",
			Help: "Jobs waiting in the serializer queue",
		},
	)

	SerializerRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradeledger_serializer_retries_total",
			Help: "Write jobs retried after transient contention",
		},
	)

	// call: quote|order|balance
	ExecutionCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeledger_execution_calls_total",
			Help: "External exchange calls by outcome",
		},
		[]string{"call", "outcome"},
	)

	ExecutionSimulated = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradeledger_execution_simulated",
			Help: "1 when the session runs in simulation mode",
		},
	)

	BudgetWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tradeledger_execution_budget_wait_seconds",
			Help:    "Time spent waiting for the hourly call budget",
			Buckets: []float64{0.01, 0.1, 1, 10, 60, 600},
		},
	)

	AdmissionDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeledger_admission_decisions_total",
			Help: "Admission outcomes split by deciding gate",
		},
		[]string{"outcome", "gate"},
	)

	OrderTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeledger_order_transitions_total",
			Help: "Order status transitions",
		},
		[]string{"to"},
	)

	LedgerFills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeledger_ledger_fills_total",
			Help: "Fills applied to the ledger",
		},
		[]string{"side", "outcome"},
	)

	NAV = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradeledger_nav_usd",
			Help: "Latest net asset value sample",
		},
	)

	SafetyTerminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeledger_safety_terminations_total",
			Help: "Fail-stop terminations by rule",
		},
		[]string{"rule"},
	)

	// source: cache|exchange|miss
	QuoteLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeledger_quote_lookups_total",
			Help: "Quote lookups by source",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(SerializerJobs, SerializerQueueDepth, SerializerRetries)
	prometheus.MustRegister(ExecutionCalls, ExecutionSimulated, BudgetWait)
	prometheus.MustRegister(AdmissionDecisions, OrderTransitions, LedgerFills)
	prometheus.MustRegister(NAV, SafetyTerminations, QuoteLookups)
}
