// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-auth/sentinel/internal/audit"
	"github.com/sentinel-auth/sentinel/internal/coldstate"
	"github.com/sentinel-auth/sentinel/internal/config"
	"github.com/sentinel-auth/sentinel/internal/hotstate"
	"github.com/sentinel-auth/sentinel/internal/keyboard"
	"github.com/sentinel-auth/sentinel/internal/mouse"
	"github.com/sentinel-auth/sentinel/internal/navigator"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type alwaysAllowEnforcer struct{}

func (alwaysAllowEnforcer) Violates(deviceID, endpoint, method string) bool { return false }

func testConfig() *config.Config {
	return &config.Config{
		Keyboard: config.KeyboardConfig{
			WindowSize:    keyboard.WindowSize,
			WindowStep:    keyboard.WindowStride,
			CountMaturity: 10,
			TimeMaturity:  5 * time.Minute,
		},
		Identity: config.IdentityConfig{SamplesRequired: 20},
		Trust:    config.TrustConfig{TrustedThreshold: 0.75, Delta: 0.12},
		Ban: config.BanConfig{
			StrikeTTL:      7 * 24 * time.Hour,
			ProvisionalTTL: hotstate.ProvisionalBanTTL,
			BatchGapReset:  20,
		},
		Learning: config.LearningConfig{SuspendOn: 0.85, ResumeAfter: time.Minute},
		CircuitBreaker: config.CircuitBreakerConfig{
			HotTimeout:  time.Second,
			ColdTimeout: time.Second,
		},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	hot := hotstate.New(openTestDB(t))
	cold := coldstate.New(openTestDB(t))
	auditStore := audit.NewMemoryStore()
	nav := navigator.New(navigator.DefaultConfig(), alwaysAllowEnforcer{})
	return New(testConfig(), hot, cold, auditStore, nav, nil)
}

func reqCtx(now time.Time) navigator.RequestContext {
	return navigator.RequestContext{
		IP:         "203.0.113.5",
		UserAgent:  "desktop-chrome",
		Endpoint:   "/evaluate",
		Method:     "POST",
		DeviceID:   "device-1",
		GeoCountry: "US",
		Timestamp:  now,
	}
}

// typeBatch builds n DOWN/UP pairs from start with a plausible dwell/flight.
func typeBatch(start float64, n int) []keyboard.Event {
	events := make([]keyboard.Event, 0, n*2)
	t := start
	for i := 0; i < n; i++ {
		key := string(rune('a' + i%26))
		events = append(events, keyboard.Event{Key: key, Kind: keyboard.Down, T: t})
		events = append(events, keyboard.Event{Key: key, Kind: keyboard.Up, T: t + 80})
		t += 150
	}
	return events
}

func TestIngestKeyboardDropsStaleBatch(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.IngestKeyboard(ctx, "sess-1", "user-1", 5, typeBatch(0, 10)))
	// A batch_id at or below the last accepted one is silently dropped.
	require.NoError(t, e.IngestKeyboard(ctx, "sess-1", "user-1", 5, typeBatch(0, 10)))
	require.NoError(t, e.IngestKeyboard(ctx, "sess-1", "user-1", 3, typeBatch(0, 10)))

	session, err := e.loadOrCreateSession(ctx, "sess-1", "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 5, session.LastKBBatchID)
}

func TestIngestKeyboardAccumulatesWindowsAndScoresOnceFull(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// WindowSize keystroke DOWN/UP pairs fill exactly one window.
	require.NoError(t, e.IngestKeyboard(ctx, "sess-2", "user-2", 1, typeBatch(0, keyboard.WindowSize)))

	session, err := e.loadOrCreateSession(ctx, "sess-2", "user-2")
	require.NoError(t, err)
	require.GreaterOrEqual(t, session.KBWindowCount, 1)
	require.True(t, session.HaveFirstKBEvent)
	require.NotEmpty(t, session.CompletedWindows)
}

func TestIngestKeyboardGapResetsWindowsAndCostsHalfStrike(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.IngestKeyboard(ctx, "sess-3", "user-3", 1, typeBatch(0, keyboard.WindowSize)))
	before, err := e.loadOrCreateSession(ctx, "sess-3", "user-3")
	require.NoError(t, err)
	require.NotEmpty(t, before.CompletedWindows)

	// Jump far beyond BatchGapReset.
	require.NoError(t, e.IngestKeyboard(ctx, "sess-3", "user-3", 1000, typeBatch(0, 10)))
	after, err := e.loadOrCreateSession(ctx, "sess-3", "user-3")
	require.NoError(t, err)
	require.Empty(t, after.CompletedWindows)
}

func TestIngestMouseUpdatesTeleportCounters(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	events := []mouse.Event{
		{X: 0, Y: 0, Kind: mouse.Move, T: 0},
		{X: 5, Y: 0, Kind: mouse.Move, T: 10},
		{X: 10, Y: 0, Kind: mouse.Click, T: 20},
	}
	require.NoError(t, e.IngestMouse(ctx, "sess-4", "user-4", 1, events))

	session, err := e.loadOrCreateSession(ctx, "sess-4", "user-4")
	require.NoError(t, err)
	require.Equal(t, 1, session.TotalClicks)
}

func TestIngestMouseGapResetCostsStrikeOnMouseOnlySession(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	events := []mouse.Event{
		{X: 0, Y: 0, Kind: mouse.Move, T: 0},
		{X: 5, Y: 0, Kind: mouse.Move, T: 10},
		{X: 10, Y: 0, Kind: mouse.Click, T: 20},
	}

	// A session with no keyboard events ever: KBWindowCount stays 0 forever,
	// so the gap-strike parity must key off the mouse stream's own counter
	// instead or repeated gap resets would never cost a strike.
	require.NoError(t, e.IngestMouse(ctx, "sess-9", "user-9", 1, events))
	require.NoError(t, e.IngestMouse(ctx, "sess-9", "user-9", 1000, events))

	session, err := e.loadOrCreateSession(ctx, "sess-9", "user-9")
	require.NoError(t, err)
	require.Equal(t, 0, session.KBWindowCount)
	require.Equal(t, 1, session.StrikeCount)

	// A third batch, again far beyond the gap threshold, lands on the other
	// parity and costs no additional strike (two gapped batches == one strike).
	require.NoError(t, e.IngestMouse(ctx, "sess-9", "user-9", 2000, events))
	session, err = e.loadOrCreateSession(ctx, "sess-9", "user-9")
	require.NoError(t, err)
	require.Equal(t, 1, session.StrikeCount)
}

func TestEvaluateBlocksOnActiveBan(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.setBan(ctx, "user-5", time.Minute, "sentinel", "strike_limit"))

	d, err := e.Evaluate(ctx, "eval-1", "sess-5", "user-5", reqCtx(time.Now()))
	require.NoError(t, err)
	require.Equal(t, resultBlock, d.Result)
	require.Equal(t, "active_ban", d.Reason)
	require.Equal(t, 1.0, d.Risk)
}

func TestEvaluateIsIdempotentOnEvalID(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Evaluate(ctx, "eval-2", "sess-6", "user-6", reqCtx(time.Now()))
	require.NoError(t, err)

	second, err := e.Evaluate(ctx, "eval-2", "sess-6", "user-6", reqCtx(time.Now()))
	require.NoError(t, err)
	require.Equal(t, first.Result, second.Result)
	require.Equal(t, first.Risk, second.Risk)
}

func TestEvaluateColdStartChallenges(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// No keyboard activity at all: kb_window_count (0) < WindowSize triggers
	// the hst_cold_start override.
	d, err := e.Evaluate(ctx, "eval-3", "sess-7", "user-7", reqCtx(time.Now()))
	require.NoError(t, err)
	require.Equal(t, resultChallenge, d.Result)
	require.Equal(t, "hst_cold_start", d.Reason)
}

func TestEvaluateOverridesOnStrikeLimit(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.updateSessionTransactional(ctx, "sess-8", func(s *hotstate.SessionState) (*hotstate.SessionState, error) {
		if s == nil {
			s = hotstate.NewSessionState("user-8")
		}
		s.StrikeCount = 3
		s.KBWindowCount = keyboard.WindowSize
		return s, nil
	})
	require.NoError(t, err)

	d, err := e.Evaluate(ctx, "eval-4", "sess-8", "user-8", reqCtx(time.Now()))
	require.NoError(t, err)
	require.Equal(t, resultBlock, d.Result)
	require.Equal(t, "strike_limit", d.Reason)
}

func TestDecideByThresholdBoundaries(t *testing.T) {
	th := thresholds{challengeAt: 0.5, blockAt: 0.85}

	result, reason := decideByThreshold(0.2, th)
	require.Equal(t, resultAllow, result)
	require.Empty(t, reason)

	result, reason = decideByThreshold(0.5, th)
	require.Equal(t, resultChallenge, result)
	require.Equal(t, "risk_threshold", reason)

	result, reason = decideByThreshold(0.85, th)
	require.Equal(t, resultBlock, result)
	require.Equal(t, "risk_threshold", reason)
}

func TestWeightsAndThresholdsVaryByMode(t *testing.T) {
	normal := weightsFor(hotstate.ModeNormal)
	challenge := weightsFor(hotstate.ModeChallenge)
	trusted := weightsFor(hotstate.ModeTrusted)

	require.Greater(t, challenge.keyboard, normal.keyboard)
	require.Less(t, trusted.keyboard, normal.keyboard)

	require.Less(t, thresholdsFor(hotstate.ModeChallenge).blockAt, thresholdsFor(hotstate.ModeNormal).blockAt)
	require.Greater(t, thresholdsFor(hotstate.ModeTrusted).blockAt, thresholdsFor(hotstate.ModeNormal).blockAt)
}

func TestPercentile95(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	require.InDelta(t, 10, percentile95(xs), 1e-9)
	require.Equal(t, 0.0, percentile95(nil))
}

func TestClamp01(t *testing.T) {
	require.Equal(t, 0.0, clamp01(-1))
	require.Equal(t, 1.0, clamp01(2))
	require.Equal(t, 0.5, clamp01(0.5))
}

func TestLastNWindows(t *testing.T) {
	windows := make([]keyboard.FeatureWindow, 3)
	require.Len(t, lastNWindows(windows, 5), 3)
	require.Len(t, lastNWindows(windows, 2), 2)
}
