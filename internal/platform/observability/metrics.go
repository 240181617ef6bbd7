// Package observability holds the Prometheus metrics shared by the gateway and
// the worker.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the ledger services.
type Metrics struct {
	// Registry owns these metrics and backs the /metrics endpoint.
	Registry *prometheus.Registry

	commits          *prometheus.CounterVec
	commitDuration   *prometheus.HistogramVec
	txRetries        prometheus.Counter
	contributions    *prometheus.CounterVec
	milestones       *prometheus.CounterVec
	importRows       *prometheus.CounterVec
	outboxPublishes  *prometheus.CounterVec
	scheduledGoals   prometheus.Counter
	breakerTrips     *prometheus.CounterVec
	commandsConsumed *prometheus.CounterVec
}

// NewMetrics registers every ledger metric in a private registry so repeated
// construction in tests never collides.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		commits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_commits_total",
				Help: "Ledger commits by flow and outcome.",
			},
			[]string{"flow", "status"},
		),
		commitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_commit_duration_seconds",
				Help:    "Duration of atomic ledger commits by flow.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"flow"},
		),
		txRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_tx_retries_total",
				Help: "Database transactions retried after serialization failures or deadlocks.",
			},
		),
		contributions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_goal_contributions_total",
				Help: "Goal contributions by outcome.",
			},
			[]string{"status"},
		),
		milestones: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_goal_milestones_total",
				Help: "Goal milestones reached.",
			},
			[]string{"milestone"},
		),
		importRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_import_rows_total",
				Help: "CSV import rows by result.",
			},
			[]string{"result"},
		),
		outboxPublishes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_outbox_publishes_total",
				Help: "Outbox message publications by event type and result.",
			},
			[]string{"event_type", "result"},
		),
		scheduledGoals: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_scheduled_contributions_total",
				Help: "Scheduled contribution commands emitted.",
			},
		),
		breakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_circuit_breaker_transitions_total",
				Help: "Circuit breaker state transitions.",
			},
			[]string{"name", "to"},
		),
		commandsConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_commands_consumed_total",
				Help: "Contribution commands consumed by result.",
			},
			[]string{"result"},
		),
	}
}

// RecordCommit counts a commit attempt and its latency.
func (m *Metrics) RecordCommit(flow string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.commits.WithLabelValues(flow, status).Inc()
	m.commitDuration.WithLabelValues(flow).Observe(d.Seconds())
}

func (m *Metrics) IncrTxRetry() {
	m.txRetries.Inc()
}

func (m *Metrics) IncrContribution(status string) {
	m.contributions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrMilestone(milestone string) {
	m.milestones.WithLabelValues(milestone).Inc()
}

func (m *Metrics) IncrImportRow(result string) {
	m.importRows.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrOutboxPublish(eventType, result string) {
	m.outboxPublishes.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) IncrScheduled() {
	m.scheduledGoals.Inc()
}

func (m *Metrics) IncrBreakerTransition(name, to string) {
	m.breakerTrips.WithLabelValues(name, to).Inc()
}

func (m *Metrics) IncrCommand(result string) {
	m.commandsConsumed.WithLabelValues(result).Inc()
}
