// Package metrics defines Prometheus metrics for the protocol orchestrator.
//
// Metrics are registered on a private registry (Registry) rather than the
// default global one, since a library embedding this package may run
// alongside other Prometheus-instrumented code.
//
// Metric naming follows Prometheus conventions:
//   - protoctl_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the private registry every metric below is registered to.
// cmd/protoctl serves it via promhttp.HandlerFor.
var Registry = prometheus.NewRegistry()

var (
	// JobsTotal counts dispatched jobs by job type and terminal outcome.
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "protoctl_jobs_total",
			Help: "Total worker jobs dispatched, by job type and outcome.",
		},
		[]string{"job_type", "outcome"},
	)

	// JobDurationSeconds is a histogram of handler run time by job type.
	JobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "protoctl_job_duration_seconds",
			Help:    "Duration of worker job handler invocations in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		},
		[]string{"job_type"},
	)

	// StepsTotal counts step terminal transitions by resulting status.
	StepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "protoctl_steps_total",
			Help: "Total steps reaching a terminal status.",
		},
		[]string{"status"},
	)

	// PolicyFindingsTotal counts policy findings emitted by severity.
	PolicyFindingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "protoctl_policy_findings_total",
			Help: "Total policy findings emitted, by severity.",
		},
		[]string{"severity"},
	)

	// PolicyBlocksTotal counts steps blocked by policy by gate name.
	PolicyBlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "protoctl_policy_blocks_total",
			Help: "Total steps blocked by policy enforcement, by gate.",
		},
		[]string{"gate"},
	)

	// QueueDepth reports current queue depth by status.
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "protoctl_queue_depth",
			Help: "Current job queue depth, by status.",
		},
		[]string{"status"},
	)

	// ActiveJobs is the number of jobs currently in flight across all workers.
	ActiveJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "protoctl_active_jobs",
			Help: "Number of jobs currently being dispatched.",
		},
	)

	// CodexRunCostCentsTotal sums recorded engine-invocation cost by job type.
	CodexRunCostCentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "protoctl_codex_run_cost_cents_total",
			Help: "Total recorded engine invocation cost in cents, by job type.",
		},
		[]string{"job_type"},
	)
)

func init() {
	Registry.MustRegister(
		JobsTotal,
		JobDurationSeconds,
		StepsTotal,
		PolicyFindingsTotal,
		PolicyBlocksTotal,
		QueueDepth,
		ActiveJobs,
		CodexRunCostCentsTotal,
	)
}

// RecordJobComplete records the outcome and duration of one dispatched job.
func RecordJobComplete(jobType, outcome string, duration time.Duration) {
	JobsTotal.WithLabelValues(jobType, outcome).Inc()
	JobDurationSeconds.WithLabelValues(jobType).Observe(duration.Seconds())
}

// RecordStepTerminal records a step reaching a terminal status.
func RecordStepTerminal(status string) {
	StepsTotal.WithLabelValues(status).Inc()
}

// RecordPolicyFinding records a single policy finding by severity.
func RecordPolicyFinding(severity string) {
	PolicyFindingsTotal.WithLabelValues(severity).Inc()
}

// RecordPolicyBlock records a step blocked by a named policy gate.
func RecordPolicyBlock(gate string) {
	PolicyBlocksTotal.WithLabelValues(gate).Inc()
}

// RecordCodexRunCost adds to the running cost total for a job type.
func RecordCodexRunCost(jobType string, costCents int64) {
	if costCents <= 0 {
		return
	}
	CodexRunCostCentsTotal.WithLabelValues(jobType).Add(float64(costCents))
}

// SetQueueDepth reports the current depth for one queue status.
func SetQueueDepth(status string, depth int) {
	QueueDepth.WithLabelValues(status).Set(float64(depth))
}
