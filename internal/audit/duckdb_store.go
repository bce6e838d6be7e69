// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/sentinel-auth/sentinel/internal/logging"
)

// DuckDBStore implements Store on top of DuckDB, matching the audit_logs
// schema from SPEC_FULL.md §6: unique eval_id, payload_json carrying the
// rest of the record.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a DuckDB-backed audit store. CreateTable must be
// called once during startup before Save/Get are used.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the audit_logs table if it doesn't exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS audit_logs (
			eval_id      TEXT PRIMARY KEY,
			session_id   TEXT NOT NULL,
			user_id      TEXT NOT NULL,
			ts           BIGINT NOT NULL,
			payload_json JSON NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_audit_logs_session_id ON audit_logs(session_id);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_ts ON audit_logs(ts DESC);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("audit: create audit_logs table: %w", err)
	}
	logging.Info().Msg("audit_logs table created/verified")
	return nil
}

// Save persists an event. The eval_id uniqueness check happens inside the
// same transaction as the insert (§4.11: "eval_id is idempotent — a
// duplicate is recognized and the prior decision is returned unchanged"),
// so two concurrent evaluates racing on the same eval_id never both
// succeed in writing divergent payloads.
func (s *DuckDBStore) Save(ctx context.Context, event *Event) (*Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("audit: begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := s.getTx(ctx, tx, event.EvalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, ErrDuplicateEvalID
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal payload: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_logs (eval_id, session_id, user_id, ts, payload_json) VALUES (?, ?, ?, ?, ?)`,
		event.EvalID, event.SessionID, event.UserID, event.Timestamp, string(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("audit: insert audit_logs row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("audit: commit: %w", err)
	}

	stored := *event
	return &stored, nil
}

// Get retrieves an event by eval_id.
func (s *DuckDBStore) Get(ctx context.Context, evalID string) (*Event, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT CAST(payload_json AS VARCHAR) FROM audit_logs WHERE eval_id = ?`, evalID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: get eval_id %s: %w", evalID, err)
	}

	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("audit: unmarshal payload for eval_id %s: %w", evalID, err)
	}
	return &event, nil
}

func (s *DuckDBStore) getTx(ctx context.Context, tx *sql.Tx, evalID string) (*Event, error) {
	var payload string
	err := tx.QueryRowContext(ctx,
		`SELECT CAST(payload_json AS VARCHAR) FROM audit_logs WHERE eval_id = ?`, evalID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: read-before-insert for eval_id %s: %w", evalID, err)
	}

	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("audit: unmarshal payload for eval_id %s: %w", evalID, err)
	}
	return &event, nil
}
