// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package config provides centralized configuration management for Sentinel.

It loads, layers, and validates the recognized-options table (SPEC_FULL.md
§6): behavioral thresholds for the risk orchestration subsystem plus the
ambient transport/storage/observability settings around it.

# Configuration Sources

Layered in order, later sources winning:

  - Defaults: the recognized-options table, hard-coded in defaultConfig().
  - Config file: optional config.yaml (or config.yml), searched at
    ./config.yaml, ./config.yml, /etc/sentinel/config.yaml,
    /etc/sentinel/config.yml, or the path named by CONFIG_PATH.
  - Environment variables: mapped via envTransformFunc.

# Environment Variables

Behavioral (risk orchestration, SPEC_FULL.md §6):

  - KB_WINDOW_SIZE: keystrokes per feature window (default: 50); parsed and
    validated only, the keyboard extractor always uses keyboard.WindowSize (50)
  - KB_WINDOW_STEP: emission stride in keystrokes (default: 5); parsed and
    validated only, the keyboard extractor always uses keyboard.WindowStride (5)
  - KB_COUNT_MATURITY: windows until count_confidence=1 (default: 50)
  - KB_TIME_MATURITY_S: seconds until time_confidence=1 (default: 20)
  - IDENTITY_SAMPLES_REQUIRED: feature windows for full identity confidence (default: 150)
  - TRUSTED_THRESHOLD: trust_score at which phase becomes TRUSTED (default: 0.75)
  - TRUST_DELTA: per-evaluate trust_score adjustment step (default: 0.12)
  - STRIKE_TTL_DAYS: global_strikes key TTL (default: 7); parsed and
    validated only, hotstate always gives the key a fixed 7-day TTL
  - PROVISIONAL_BAN_TTL_S: Sentinel-issued ban TTL (default: 300)
  - BATCH_GAP_RESET: batch_id gap that triggers a session window reset (default: 10)
  - LEARN_SUSPEND_ON: nav_score at or above which learning is suspended (default: 0.85)
  - LEARN_RESUME_AFTER_S: clean-activity duration before learning resumes (default: 60)

Ambient (transport, storage, observability):

  - HTTP_ADDR: HTTP listen address (default: :8080)
  - BADGER_DIR: parent directory of the hot-state and cold-state BadgerDB databases, kept in its hot/ and cold/ subdirectories (default: ./data/hotstate)
  - DUCKDB_PATH: audit-log DuckDB file path (default: ./data/sentinel.duckdb)
  - STREAM_RATE_LIMIT: requests/sec allowed on /stream/* (default: 20)
  - EVAL_RATE_LIMIT: requests/sec allowed on /evaluate (default: 10)
  - NATS_URL: NATS server URL for provisional-ban publish (default: nats://127.0.0.1:4222)
  - CIRCUIT_BREAKER_HOT_TIMEOUT_MS: how long the hot-state circuit breaker stays
    open before it lets a trial call through (default: 200)
  - CIRCUIT_BREAKER_COLD_TIMEOUT_MS: the same for the cold-state breaker
    (default: 1000); neither store call has a per-call timeout
  - LOG_LEVEL: zerolog level (default: info)
  - LOG_FORMAT: console or json (default: console)

# Usage Example

	cfg, err := config.Load()
	if err != nil {
	    log.Fatalf("config: %v", err)
	}
	srv := &http.Server{Addr: cfg.Server.Addr}

# Thread Safety

Config is immutable after Load() returns; safe for concurrent read access
without synchronization.
*/
package config
