// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config defines Sentinel's runtime configuration and the
// recognized-options table from SPEC_FULL.md §6. Loading is layered
// (defaults → optional config.yaml → environment) via koanf.v2 (koanf.go);
// this file holds the Config struct itself and validation.
//
// Thread Safety:
// Config is immutable after Load() and safe for concurrent read access from
// multiple goroutines.
package config

import (
	"fmt"
	"time"
)

// Config holds all Sentinel runtime configuration.
type Config struct {
	Keyboard       KeyboardConfig       `koanf:"keyboard"`
	Identity       IdentityConfig       `koanf:"identity"`
	Trust          TrustConfig          `koanf:"trust"`
	Ban            BanConfig            `koanf:"ban"`
	Learning       LearningConfig       `koanf:"learning"`
	Server         ServerConfig         `koanf:"server"`
	Storage        StorageConfig        `koanf:"storage"`
	RateLimit      RateLimitConfig      `koanf:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker"`
	NATS           NATSConfig           `koanf:"nats"`
	Logging        LoggingConfig        `koanf:"logging"`
}

// KeyboardConfig configures the keyboard feature extractor (§4.1).
//
// Environment variables: KB_WINDOW_SIZE, KB_WINDOW_STEP, KB_COUNT_MATURITY,
// KB_TIME_MATURITY_S.
type KeyboardConfig struct {
	WindowSize       int           `koanf:"window_size"`
	WindowStep       int           `koanf:"window_step"`
	CountMaturity    int           `koanf:"count_maturity"`
	TimeMaturity     time.Duration `koanf:"time_maturity"`
}

// IdentityConfig configures the per-user identity model's cold-start gate
// (§4.7). Environment variable: IDENTITY_SAMPLES_REQUIRED.
type IdentityConfig struct {
	SamplesRequired int `koanf:"samples_required"`
}

// TrustConfig configures the trust stabilizer and phase transitions
// (§4.10). Environment variables: TRUSTED_THRESHOLD, TRUST_DELTA.
type TrustConfig struct {
	TrustedThreshold float64 `koanf:"trusted_threshold"`
	Delta            float64 `koanf:"delta"`
}

// BanConfig configures strike and ban TTLs (§3, §4.10). Environment
// variables: STRIKE_TTL_DAYS, PROVISIONAL_BAN_TTL_S, BATCH_GAP_RESET.
type BanConfig struct {
	StrikeTTL         time.Duration `koanf:"strike_ttl"`
	ProvisionalTTL    time.Duration `koanf:"provisional_ttl"`
	BatchGapReset     int           `koanf:"batch_gap_reset"`
}

// LearningConfig configures the selective-learning suspension gate
// (§4.10). Environment variables: LEARN_SUSPEND_ON, LEARN_RESUME_AFTER_S.
type LearningConfig struct {
	SuspendOn   float64       `koanf:"suspend_on"`
	ResumeAfter time.Duration `koanf:"resume_after"`
}

// ServerConfig configures the HTTP transport. Environment variable:
// HTTP_ADDR.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// StorageConfig configures the hot/cold persistence backends. Environment
// variables: BADGER_DIR, DUCKDB_PATH.
type StorageConfig struct {
	BadgerDir  string `koanf:"badger_dir"`
	DuckDBPath string `koanf:"duckdb_path"`
}

// RateLimitConfig configures the HTTP surface's per-endpoint rate limits
// (§6). Environment variables: STREAM_RATE_LIMIT, EVAL_RATE_LIMIT.
type RateLimitConfig struct {
	StreamPerSecond int `koanf:"stream_per_second"`
	EvalPerSecond   int `koanf:"eval_per_second"`
}

// CircuitBreakerConfig configures the gobreaker timeouts guarding hot/cold
// store calls (§5). Environment variables: CIRCUIT_BREAKER_HOT_TIMEOUT_MS,
// CIRCUIT_BREAKER_COLD_TIMEOUT_MS.
type CircuitBreakerConfig struct {
	HotTimeout  time.Duration `koanf:"hot_timeout"`
	ColdTimeout time.Duration `koanf:"cold_timeout"`
}

// NATSConfig configures the provisional-ban publisher (eventprocessor).
// Environment variable: NATS_URL.
type NATSConfig struct {
	URL string `koanf:"url"`
}

// LoggingConfig configures zerolog output. Environment variables:
// LOG_LEVEL, LOG_FORMAT.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Validate checks the loaded configuration for internally inconsistent or
// out-of-range values that would make the core's invariants (§3 I1, §4.10)
// impossible to satisfy.
func (c *Config) Validate() error {
	if c.Keyboard.WindowSize <= 0 {
		return fmt.Errorf("config: keyboard.window_size must be positive, got %d", c.Keyboard.WindowSize)
	}
	if c.Keyboard.WindowStep <= 0 || c.Keyboard.WindowStep > c.Keyboard.WindowSize {
		return fmt.Errorf("config: keyboard.window_step must be in (0, window_size], got %d", c.Keyboard.WindowStep)
	}
	if c.Trust.TrustedThreshold <= 0 || c.Trust.TrustedThreshold > 1 {
		return fmt.Errorf("config: trust.trusted_threshold must be in (0, 1], got %f", c.Trust.TrustedThreshold)
	}
	if c.Trust.Delta <= 0 || c.Trust.Delta > 1 {
		return fmt.Errorf("config: trust.delta must be in (0, 1], got %f", c.Trust.Delta)
	}
	if c.Ban.BatchGapReset <= 0 {
		return fmt.Errorf("config: ban.batch_gap_reset must be positive, got %d", c.Ban.BatchGapReset)
	}
	if c.Learning.SuspendOn <= 0 || c.Learning.SuspendOn > 1 {
		return fmt.Errorf("config: learning.suspend_on must be in (0, 1], got %f", c.Learning.SuspendOn)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr must not be empty")
	}
	if c.Storage.BadgerDir == "" {
		return fmt.Errorf("config: storage.badger_dir must not be empty")
	}
	if c.Storage.DuckDBPath == "" {
		return fmt.Errorf("config: storage.duckdb_path must not be empty")
	}
	if c.RateLimit.StreamPerSecond <= 0 {
		return fmt.Errorf("config: rate_limit.stream_per_second must be positive, got %d", c.RateLimit.StreamPerSecond)
	}
	if c.RateLimit.EvalPerSecond <= 0 {
		return fmt.Errorf("config: rate_limit.eval_per_second must be positive, got %d", c.RateLimit.EvalPerSecond)
	}
	if c.CircuitBreaker.HotTimeout <= 0 {
		return fmt.Errorf("config: circuit_breaker.hot_timeout must be positive, got %s", c.CircuitBreaker.HotTimeout)
	}
	if c.CircuitBreaker.ColdTimeout <= 0 {
		return fmt.Errorf("config: circuit_breaker.cold_timeout must be positive, got %s", c.CircuitBreaker.ColdTimeout)
	}
	return nil
}
