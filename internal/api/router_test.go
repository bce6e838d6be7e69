// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-auth/sentinel/internal/audit"
	"github.com/sentinel-auth/sentinel/internal/coldstate"
	"github.com/sentinel-auth/sentinel/internal/config"
	"github.com/sentinel-auth/sentinel/internal/hotstate"
	"github.com/sentinel-auth/sentinel/internal/navigator"
	"github.com/sentinel-auth/sentinel/internal/orchestrator"
)

type allowAllEnforcer struct{}

func (allowAllEnforcer) Violates(deviceID, endpoint, method string) bool { return false }

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Keyboard: config.KeyboardConfig{WindowSize: 50, WindowStep: 5, CountMaturity: 10, TimeMaturity: 5 * time.Minute},
		Identity: config.IdentityConfig{SamplesRequired: 20},
		Trust:    config.TrustConfig{TrustedThreshold: 0.75, Delta: 0.12},
		Ban:      config.BanConfig{StrikeTTL: 7 * 24 * time.Hour, ProvisionalTTL: hotstate.ProvisionalBanTTL, BatchGapReset: 20},
		Learning: config.LearningConfig{SuspendOn: 0.85, ResumeAfter: time.Minute},
		CircuitBreaker: config.CircuitBreakerConfig{HotTimeout: time.Second, ColdTimeout: time.Second},
		RateLimit: config.RateLimitConfig{StreamPerSecond: 100, EvalPerSecond: 50},
	}
}

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	hot := hotstate.New(openTestDB(t))
	cold := coldstate.New(openTestDB(t))
	auditStore := audit.NewMemoryStore()
	nav := navigator.New(navigator.DefaultConfig(), allowAllEnforcer{})
	cfg := testConfig()
	engine := orchestrator.New(cfg, hot, cold, auditStore, nav, nil)
	return NewRouter(cfg, engine)
}

func TestHealthzReturnsOK(t *testing.T) {
	router := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStreamKeyboardRejectsMissingFields(t *testing.T) {
	router := testRouter(t)
	body := bytes.NewBufferString(`{"session_id":"s1"}`)
	req := httptest.NewRequest(http.MethodPost, "/stream/keyboard", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamKeyboardAcceptsValidBatch(t *testing.T) {
	router := testRouter(t)
	body := bytes.NewBufferString(`{
		"session_id": "s1", "user_id": "u1", "batch_id": 1,
		"events": [
			{"key": "a", "kind": "down", "t": 0},
			{"key": "a", "kind": "up", "t": 80}
		]
	}`)
	req := httptest.NewRequest(http.MethodPost, "/stream/keyboard", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestEvaluateColdStartChallenges(t *testing.T) {
	router := testRouter(t)
	body := bytes.NewBufferString(`{
		"eval_id": "eval-1", "session_id": "s2", "user_id": "u2",
		"user_agent": "desktop-chrome", "endpoint": "/evaluate", "method": "POST",
		"device_id": "device-1"
	}`)
	req := httptest.NewRequest(http.MethodPost, "/evaluate", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "CHALLENGE")
}
