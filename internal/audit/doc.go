// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package audit implements Sentinel's audit emitter (SPEC_FULL.md §4.11).

Every evaluate() call ends by persisting exactly one Event, keyed on the
caller-supplied eval_id. Save is idempotent: a duplicate eval_id is not an
error, it returns the previously stored Event so the caller can reply with
the original decision instead of re-running fusion.

# Storage

DuckDBStore is the production Store, backing the audit_logs table from
SPEC_FULL.md §6 (eval_id, session_id, user_id, ts, payload_json). The
eval_id uniqueness check happens via read-before-insert inside the same
transaction as the write, so two concurrent evaluates racing on the same
eval_id cannot both commit.

MemoryStore is a Store for unit tests that don't want a DuckDB handle.

# Provisional-ban notification

BLOCK decisions additionally trigger a best-effort NATS publish via
internal/eventprocessor; that publish is independent of this package and
never blocks or fails the audit write.
*/
package audit
