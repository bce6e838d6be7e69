// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus Metrics Integration for Production Observability
// This package instruments:
// - evaluate() decisions and fusion risk
// - hot-state (BadgerDB session/ban) and cold-state (BadgerDB model) store calls
// - circuit breaker state transitions
// - selective-learning outcomes and per-model-type model versions

var (
	// Decision Metrics
	EvaluateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_evaluate_decisions_total",
			Help: "Total number of evaluate() decisions by outcome and reason",
		},
		[]string{"decision", "reason"},
	)

	EvaluateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_evaluate_duration_seconds",
			Help:    "Duration of evaluate() calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FusionRisk = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_fusion_risk",
			Help:    "Distribution of final_risk values from weighted-sum fusion",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	TrustScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_trust_score",
			Help:    "Distribution of post-evaluate trust_score values",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	SessionPhaseTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_session_phase_transitions_total",
			Help: "Total number of session phase transitions",
		},
		[]string{"from", "to"},
	)

	// Store Metrics
	HotStoreCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_hotstate_call_duration_seconds",
			Help:    "Duration of hot-state store calls in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .2, .5, 1},
		},
		[]string{"operation"},
	)

	HotStoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_hotstate_errors_total",
			Help: "Total number of hot-state store errors",
		},
		[]string{"operation", "kind"},
	)

	ColdStoreCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_coldstate_call_duration_seconds",
			Help:    "Duration of cold-state store calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	ColdStoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_coldstate_errors_total",
			Help: "Total number of cold-state store errors",
		},
		[]string{"operation", "kind"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerStateChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_circuit_breaker_state_changes_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"breaker", "from", "to"},
	)

	// Learning Metrics
	LearningAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_learning_attempts_total",
			Help: "Total number of selective-learning dispatches by model type and outcome",
		},
		[]string{"model_type", "outcome"},
	)

	ModelVersion = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentinel_model_version",
			Help: "Most recently observed persisted model version",
		},
		[]string{"model_type"},
	)

	AnomalyScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_anomaly_score",
			Help:    "Distribution of anomaly model scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"model_type"},
	)

	BansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_bans_total",
			Help: "Total number of bans set",
		},
		[]string{"provenance", "reason"},
	)
)

// maxErrorLabelLen bounds cardinality of error-kind labels derived from
// arbitrary error strings.
const maxErrorLabelLen = 50

// truncateError truncates an error message for use as a low-cardinality
// metric label.
func truncateError(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if len(s) > maxErrorLabelLen {
		return s[:maxErrorLabelLen]
	}
	return s
}

// RecordEvaluateDecision records one evaluate() outcome.
func RecordEvaluateDecision(decision, reason string) {
	EvaluateDecisionsTotal.WithLabelValues(decision, reason).Inc()
}

// ObserveEvaluateDuration records the wall-clock duration of one evaluate() call.
func ObserveEvaluateDuration(d time.Duration) {
	EvaluateDuration.Observe(d.Seconds())
}

// ObserveFusionRisk records a final_risk sample.
func ObserveFusionRisk(risk float64) {
	FusionRisk.Observe(risk)
}

// ObserveTrustScore records a post-evaluate trust_score sample.
func ObserveTrustScore(score float64) {
	TrustScore.Observe(score)
}

// RecordPhaseTransition records a session phase transition.
func RecordPhaseTransition(from, to string) {
	SessionPhaseTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordHotStoreCall records one hot-state call's duration and, if it
// failed, the error kind.
func RecordHotStoreCall(operation string, duration time.Duration, err error) {
	HotStoreCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		HotStoreErrorsTotal.WithLabelValues(operation, truncateError(err)).Inc()
	}
}

// RecordColdStoreCall records one cold-state call's duration and, if it
// failed, the error kind.
func RecordColdStoreCall(operation string, duration time.Duration, err error) {
	ColdStoreCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		ColdStoreErrorsTotal.WithLabelValues(operation, truncateError(err)).Inc()
	}
}

// RecordCircuitBreakerStateChange records a gobreaker state transition.
func RecordCircuitBreakerStateChange(breaker, from, to string) {
	CircuitBreakerStateChangesTotal.WithLabelValues(breaker, from, to).Inc()
}

// RecordLearningAttempt records one learn_with_retry outcome.
func RecordLearningAttempt(modelType, outcome string) {
	LearningAttemptsTotal.WithLabelValues(modelType, outcome).Inc()
}

// SetModelVersion records the latest observed version for a model type.
func SetModelVersion(modelType string, version int) {
	ModelVersion.WithLabelValues(modelType).Set(float64(version))
}

// ObserveAnomalyScore records an anomaly model score sample.
func ObserveAnomalyScore(modelType string, score float64) {
	AnomalyScore.WithLabelValues(modelType).Observe(score)
}

// RecordBan records one ban write.
func RecordBan(provenance, reason string) {
	BansTotal.WithLabelValues(provenance, reason).Inc()
}
