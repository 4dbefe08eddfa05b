// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	StepTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizard_step_transitions_total",
			Help: "Wizard step transitions by source and target step",
		},
		[]string{"from", "to"},
	)

	AdvanceRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizard_advance_rejected_total",
			Help: "Forward navigation attempts blocked by an incomplete step",
		},
		[]string{"step"},
	)

	LoanDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_decisions_total",
			Help: "Loan decisions by strategy and approval status",
		},
		[]string{"strategy", "status"},
	)

	LoanDecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loan_decision_duration_seconds",
			Help:    "Time to produce a loan decision",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 15, 30},
		},
		[]string{"strategy"},
	)

	DocumentExtractions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_extractions_total",
			Help: "Document extraction attempts by document type and outcome",
		},
		[]string{"doc_type", "outcome"},
	)
)
