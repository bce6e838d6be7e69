// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package metrics provides Prometheus metrics for the evaluate() decision path,
the hot/cold state stores, the circuit breakers guarding them, and the
selective-learning pipeline.

# Overview

The package instruments:
  - evaluate() decisions, duration, fusion risk, and trust score
  - session phase transitions
  - hot-state (BadgerDB session/ban) and cold-state (BadgerDB model) store
    call duration and errors
  - circuit breaker state transitions (gobreaker)
  - selective-learning outcomes and per-user-type model versions
  - anomaly model score distribution
  - bans written, by provenance and reason

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8080/metrics

# Available Metrics

Decision Metrics:
  - sentinel_evaluate_decisions_total: Total evaluate() decisions (counter)
    Labels: decision, reason
  - sentinel_evaluate_duration_seconds: evaluate() call latency (histogram)
  - sentinel_fusion_risk: distribution of final_risk values (histogram)
  - sentinel_trust_score: distribution of post-evaluate trust_score (histogram)
  - sentinel_session_phase_transitions_total: session phase transitions (counter)
    Labels: from, to

Store Metrics:
  - sentinel_hotstate_call_duration_seconds: hot-state call latency (histogram)
    Labels: operation
  - sentinel_hotstate_errors_total: hot-state call failures (counter)
    Labels: operation, kind
  - sentinel_coldstate_call_duration_seconds: cold-state call latency (histogram)
    Labels: operation
  - sentinel_coldstate_errors_total: cold-state call failures (counter)
    Labels: operation, kind

Circuit Breaker Metrics:
  - sentinel_circuit_breaker_state_changes_total: breaker transitions (counter)
    Labels: breaker, from, to

Learning Metrics:
  - sentinel_learning_attempts_total: selective-learning dispatches (counter)
    Labels: model_type, outcome
  - sentinel_model_version: most recently persisted model version (gauge)
    Labels: model_type
  - sentinel_anomaly_score: distribution of anomaly model scores (histogram)
    Labels: model_type
  - sentinel_bans_total: bans written (counter)
    Labels: provenance, reason

# Usage Example

	import "github.com/sentinel-auth/sentinel/internal/metrics"

	metrics.RecordEvaluateDecision("ALLOW", "trust_above_threshold")
	metrics.ObserveEvaluateDuration(time.Since(start))
	metrics.ObserveFusionRisk(finalRisk)
	metrics.ObserveTrustScore(trustScore)

Recording a hot-state store call:

	start := time.Now()
	_, err := store.Get(ctx, sessionID)
	metrics.RecordHotStoreCall("get", time.Since(start), err)

# Prometheus Configuration

Example prometheus.yml configuration:

	scrape_configs:
	  - job_name: 'sentinel'
	    static_configs:
	      - targets: ['localhost:8080']
	    metrics_path: '/metrics'
	    scrape_interval: 15s

# Cardinality Management

truncateError bounds the "kind" label derived from arbitrary store error
strings to maxErrorLabelLen bytes, so a store returning varied wrapped errors
cannot blow up the hotstate/coldstate error-counter cardinality.
*/
package metrics
