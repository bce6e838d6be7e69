// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where a config file is searched, in
// order of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/sentinel/config.yaml",
	"/etc/sentinel/config.yml",
}

// ConfigPathEnvVar overrides the config file search with an explicit path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the recognized-options defaults from SPEC_FULL.md §6.
func defaultConfig() *Config {
	return &Config{
		Keyboard: KeyboardConfig{
			WindowSize:    50,
			WindowStep:    5,
			CountMaturity: 50,
			TimeMaturity:  20 * time.Second,
		},
		Identity: IdentityConfig{
			SamplesRequired: 150,
		},
		Trust: TrustConfig{
			TrustedThreshold: 0.75,
			Delta:            0.12,
		},
		Ban: BanConfig{
			StrikeTTL:      7 * 24 * time.Hour,
			ProvisionalTTL: 300 * time.Second,
			BatchGapReset:  10,
		},
		Learning: LearningConfig{
			SuspendOn:   0.85,
			ResumeAfter: 60 * time.Second,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Storage: StorageConfig{
			BadgerDir:  "./data/hotstate",
			DuckDBPath: "./data/sentinel.duckdb",
		},
		RateLimit: RateLimitConfig{
			StreamPerSecond: 20,
			EvalPerSecond:   10,
		},
		CircuitBreaker: CircuitBreakerConfig{
			HotTimeout:  200 * time.Millisecond,
			ColdTimeout: 1 * time.Second,
		},
		NATS: NATSConfig{
			URL: "nats://127.0.0.1:4222",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration with layered sources:
//  1. Defaults: the recognized-options table (SPEC_FULL.md §6).
//  2. Config file: optional YAML file, first match from DefaultConfigPaths
//     (or CONFIG_PATH).
//  3. Environment variables: highest priority, mapped via envTransformFunc.
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load environment variables: %w", err)
	}

	if err := processDurationFields(k); err != nil {
		return nil, fmt.Errorf("config: process duration fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps the recognized option names from SPEC_FULL.md §6 to
// koanf's dotted config paths. Unrecognized environment variables are
// skipped rather than polluting the config tree.
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		"KB_WINDOW_SIZE":      "keyboard.window_size",
		"KB_WINDOW_STEP":      "keyboard.window_step",
		"KB_COUNT_MATURITY":   "keyboard.count_maturity",
		"KB_TIME_MATURITY_S":  "keyboard.time_maturity",

		"IDENTITY_SAMPLES_REQUIRED": "identity.samples_required",

		"TRUSTED_THRESHOLD": "trust.trusted_threshold",
		"TRUST_DELTA":       "trust.delta",

		"STRIKE_TTL_DAYS":        "ban.strike_ttl",
		"PROVISIONAL_BAN_TTL_S":  "ban.provisional_ttl",
		"BATCH_GAP_RESET":        "ban.batch_gap_reset",

		"LEARN_SUSPEND_ON":     "learning.suspend_on",
		"LEARN_RESUME_AFTER_S": "learning.resume_after",

		"HTTP_ADDR": "server.addr",

		"BADGER_DIR":  "storage.badger_dir",
		"DUCKDB_PATH": "storage.duckdb_path",

		"STREAM_RATE_LIMIT": "rate_limit.stream_per_second",
		"EVAL_RATE_LIMIT":   "rate_limit.eval_per_second",

		"CIRCUIT_BREAKER_HOT_TIMEOUT_MS":  "circuit_breaker.hot_timeout",
		"CIRCUIT_BREAKER_COLD_TIMEOUT_MS": "circuit_breaker.cold_timeout",

		"NATS_URL": "nats.url",

		"LOG_LEVEL":  "logging.level",
		"LOG_FORMAT": "logging.format",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

// GetKoanfInstance returns a fresh Koanf instance for advanced callers
// (tests, hot-reload tooling).
func GetKoanfInstance() *koanf.Koanf {
	return koanf.New(".")
}

// durationUnitPaths maps config paths whose recognized environment variable
// carries a bare integer (seconds or milliseconds per its _S/_MS suffix,
// §6) rather than a Go duration string, to the unit that integer is in.
// Values set by the YAML file or the struct defaults are already
// time.Duration and are left untouched.
var durationUnitPaths = map[string]time.Duration{
	"keyboard.time_maturity":       time.Second,
	"ban.strike_ttl":               24 * time.Hour,
	"ban.provisional_ttl":          time.Second,
	"learning.resume_after":        time.Second,
	"circuit_breaker.hot_timeout":  time.Millisecond,
	"circuit_breaker.cold_timeout": time.Millisecond,
}

// processDurationFields rewrites bare-integer env values for the paths in
// durationUnitPaths into nanosecond counts so mapstructure's duration hook
// unmarshals them into the correct time.Duration.
func processDurationFields(k *koanf.Koanf) error {
	for path, unit := range durationUnitPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		switch v := val.(type) {
		case time.Duration:
			continue
		case string:
			n, err := parsePlainInt(v)
			if err != nil {
				continue // already a duration string like "20s"; leave as-is
			}
			if err := k.Set(path, time.Duration(n)*unit); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		default:
			_ = v
		}
	}
	return nil
}

func parsePlainInt(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	var n int64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not a plain integer: %q", s)
		}
		n = n*10 + int64(c-'0')
	}
	return n, nil
}
