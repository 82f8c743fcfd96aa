package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "ringgate"
)

var (
	riskScoreBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 75, 80, 90, 100}

	// Evidence Metrics
	EvidenceSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "evidence_submissions_total",
		Help:      "Count of evidence submissions by outcome.",
	}, []string{"status"})

	IntegrityFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "integrity_failures_total",
		Help:      "Count of evidence records whose verification hash did not match on read.",
	})

	// Risk Metrics
	RiskScores = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "risk_scores",
		Help:      "Distribution of computed risk scores.",
		Buckets:   riskScoreBuckets,
	}, []string{"model_version"})

	RiskCacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "risk_cache_lookups_total",
		Help:      "Risk breakdown cache lookups by result.",
	}, []string{"result"})

	// CAB Metrics
	CABTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cab_transitions_total",
		Help:      "Count of CAB request status transitions.",
	}, []string{"from", "to"})

	CABOperationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cab_operation_failures_total",
		Help:      "Count of failed CAB operations by error class.",
	}, []string{"operation", "class"})

	// Ring Gate Metrics
	RingGateVerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ring_gate_verdicts_total",
		Help:      "Count of ring promotion gate verdicts.",
	}, []string{"ring", "verdict"})

	GovernanceEvaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "governance_evaluation_duration_seconds",
		Help:      "Time taken for a full candidate evaluation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})
)
