// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return defaultConfig()
}

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsZeroWindowSize(t *testing.T) {
	cfg := validConfig()
	cfg.Keyboard.WindowSize = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsStepGreaterThanWindow(t *testing.T) {
	cfg := validConfig()
	cfg.Keyboard.WindowStep = cfg.Keyboard.WindowSize + 1
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsTrustedThresholdOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Trust.TrustedThreshold = 1.5
	require.Error(t, cfg.Validate())

	cfg2 := validConfig()
	cfg2.Trust.TrustedThreshold = 0
	require.Error(t, cfg2.Validate())
}

func TestValidateRejectsNonPositiveTrustDelta(t *testing.T) {
	cfg := validConfig()
	cfg.Trust.Delta = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroBatchGapReset(t *testing.T) {
	cfg := validConfig()
	cfg.Ban.BatchGapReset = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsLearnSuspendOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Learning.SuspendOn = 1.1
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyServerAddr(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Addr = ""
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyStoragePaths(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.BadgerDir = ""
	require.Error(t, cfg.Validate())

	cfg2 := validConfig()
	cfg2.Storage.DuckDBPath = ""
	require.Error(t, cfg2.Validate())
}

func TestValidateRejectsNonPositiveRateLimits(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.StreamPerSecond = 0
	require.Error(t, cfg.Validate())

	cfg2 := validConfig()
	cfg2.RateLimit.EvalPerSecond = -1
	require.Error(t, cfg2.Validate())
}

func TestValidateRejectsNonPositiveCircuitBreakerTimeouts(t *testing.T) {
	cfg := validConfig()
	cfg.CircuitBreaker.HotTimeout = 0
	require.Error(t, cfg.Validate())

	cfg2 := validConfig()
	cfg2.CircuitBreaker.ColdTimeout = 0
	require.Error(t, cfg2.Validate())
}

func TestDefaultConfigMatchesRecognizedOptionsTable(t *testing.T) {
	cfg := defaultConfig()
	require.Equal(t, 50, cfg.Keyboard.WindowSize)
	require.Equal(t, 5, cfg.Keyboard.WindowStep)
	require.Equal(t, 50, cfg.Keyboard.CountMaturity)
	require.Equal(t, 20*time.Second, cfg.Keyboard.TimeMaturity)
	require.Equal(t, 150, cfg.Identity.SamplesRequired)
	require.Equal(t, 0.75, cfg.Trust.TrustedThreshold)
	require.Equal(t, 0.12, cfg.Trust.Delta)
	require.Equal(t, 7*24*time.Hour, cfg.Ban.StrikeTTL)
	require.Equal(t, 300*time.Second, cfg.Ban.ProvisionalTTL)
	require.Equal(t, 10, cfg.Ban.BatchGapReset)
	require.Equal(t, 0.85, cfg.Learning.SuspendOn)
	require.Equal(t, 60*time.Second, cfg.Learning.ResumeAfter)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, 20, cfg.RateLimit.StreamPerSecond)
	require.Equal(t, 10, cfg.RateLimit.EvalPerSecond)
	require.Equal(t, 200*time.Millisecond, cfg.CircuitBreaker.HotTimeout)
	require.Equal(t, 1*time.Second, cfg.CircuitBreaker.ColdTimeout)
}
