// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package audit provides the idempotent audit emitter described in
// SPEC_FULL.md §4.11: one record per evaluate(), keyed on eval_id, written
// to the audit_logs table.
package audit

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
)

// ErrDuplicateEvalID is returned by Store implementations when Save is
// asked to persist an eval_id that already exists; callers should treat
// this as success and return the previously recorded decision unchanged.
var ErrDuplicateEvalID = errors.New("audit: eval_id already recorded")

// ComponentScores captures the per-channel risk inputs to fusion (§4.10
// step 5), recorded alongside the decision for forensic replay.
type ComponentScores struct {
	Keyboard float64 `json:"keyboard"`
	Mouse    float64 `json:"mouse"`
	Nav      float64 `json:"nav"`
	Identity float64 `json:"identity"`
}

// AnomalyVectors captures the named per-feature Z-score attributions
// (§4.11) that justify why an anomaly score was elevated.
type AnomalyVectors struct {
	Keyboard map[string]float64 `json:"keyboard,omitempty"`
	Mouse    map[string]float64 `json:"mouse,omitempty"`
	Identity map[string]float64 `json:"identity,omitempty"`
}

// Event is one audit record: the full input/output snapshot of a single
// evaluate() call.
type Event struct {
	EvalID    string `json:"eval_id"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Timestamp int64  `json:"ts"`

	Decision string  `json:"decision"`
	Risk     float64 `json:"risk"`
	Mode     string  `json:"mode"`

	ComponentScores ComponentScores `json:"component_scores"`
	AnomalyVectors  AnomalyVectors  `json:"anomaly_vectors"`
	Context         json.RawMessage `json:"context,omitempty"`
}

// Store persists and retrieves audit events. Save must be idempotent on
// EvalID: a duplicate Save returns ErrDuplicateEvalID rather than a
// uniqueness-constraint error, so callers can recover the prior decision.
type Store interface {
	// Save persists an event. Returns ErrDuplicateEvalID (alongside the
	// pre-existing event) if EvalID was already recorded.
	Save(ctx context.Context, event *Event) (*Event, error)

	// Get retrieves an event by eval_id. Returns nil, nil if absent.
	Get(ctx context.Context, evalID string) (*Event, error)
}
