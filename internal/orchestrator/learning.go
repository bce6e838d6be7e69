// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/sentinel-auth/sentinel/internal/anomaly"
	"github.com/sentinel-auth/sentinel/internal/hotstate"
	"github.com/sentinel-auth/sentinel/internal/keyboard"
	"github.com/sentinel-auth/sentinel/internal/logging"
	"github.com/sentinel-auth/sentinel/internal/metrics"
)

// identityTrustFloor / identityMinConsecutiveAllows / identityMinContextStable
// gate identity learning (§4.10 step 10): the session must look settled and
// trustworthy before its behavior is folded into the per-user identity
// model, or a single adversarial window could poison it.
const (
	identityTrustFloor           = 0.65
	identityMinConsecutiveAllows = 5
	identityMinContextStable     = 30 * time.Second
)

// learn runs the selective-learning gate and returns whether the session's
// pending keyboard windows should be cleared afterward. During keyboard
// cold start (kb_window_count < WindowSize), the HST learns on every
// completed window for ALLOW or CHALLENGE; once past cold start it learns
// only on ALLOW in NORMAL mode with learning not suspended. Identity
// learning runs independently under its own, stricter gate.
func (e *Engine) learn(ctx context.Context, session *hotstate.SessionState, newMode hotstate.Mode, newTrust float64, newConsecutiveAllows int, contextStableSince time.Time, learningNotSuspended bool, navScore float64, result string) (clearKBWindows bool) {
	if len(session.CompletedWindows) == 0 {
		return false
	}

	coldStartKB := session.KBWindowCount < keyboard.WindowSize
	switch {
	case coldStartKB:
		if result == resultAllow || result == resultChallenge {
			e.learnWindows(ctx, session.UserID, anomaly.KeyboardHST, session.CompletedWindows)
			clearKBWindows = true
		}
	case result == resultAllow && newMode == hotstate.ModeNormal && learningNotSuspended:
		e.learnWindows(ctx, session.UserID, anomaly.KeyboardHST, session.CompletedWindows)
		clearKBWindows = true
	}

	if newMode == hotstate.ModeNormal && learningNotSuspended &&
		navScore < 0.5 && newTrust >= identityTrustFloor &&
		newConsecutiveAllows >= identityMinConsecutiveAllows &&
		e.now().Sub(contextStableSince) >= identityMinContextStable {
		e.learnIdentityWindows(ctx, session.UserID, session.CompletedWindows)
	}

	return clearKBWindows
}

// learnIdentityWindows trains the identity model on session.CompletedWindows
// after excluding windows the keyboard HST itself flags as anomalous (above
// the batch's 95th-percentile HST score): a window that doesn't even look
// like the keyboard model's idea of "normal" shouldn't shape the identity
// model either.
func (e *Engine) learnIdentityWindows(ctx context.Context, userID string, windows []keyboard.FeatureWindow) {
	filtered := windows
	if hst, err := e.loadModel(ctx, userID, anomaly.KeyboardHST); err == nil && hst != nil && len(windows) > 1 {
		scores := make([]float64, len(windows))
		for i, w := range windows {
			scores[i] = hst.ScoreOne(w.Vector())
		}
		cutoff := percentile95(scores)
		filtered = filtered[:0]
		for i, w := range windows {
			if scores[i] <= cutoff {
				filtered = append(filtered, w)
			}
		}
	}
	if len(filtered) == 0 {
		return
	}
	e.learnWindows(ctx, userID, anomaly.KeyboardIdentity, filtered)
}

// learnWindows dispatches to coldstate.LearnWithRetry (§4.8), recording the
// outcome. A false ok with no error means the per-user learning lock was
// already held: §5/§7 treat that as a silent no-op, the next batch retries.
func (e *Engine) learnWindows(ctx context.Context, userID string, modelType anomaly.ModelType, windows []keyboard.FeatureWindow) {
	vectors := make([][12]float64, len(windows))
	for i, w := range windows {
		vectors[i] = w.Vector()
	}

	start := e.now()
	v, err := e.coldBreaker.Execute(func() (any, error) {
		return e.cold.LearnWithRetry(ctx, userID, modelType, vectors, func(m *anomaly.Model, window [12]float64) {
			m.LearnOne(window)
		})
	})
	metrics.RecordColdStoreCall("learn_with_retry", e.now().Sub(start), err)

	outcome := "learned"
	switch {
	case err != nil:
		if isBreakerOpen(err) {
			outcome = "cold_store_unavailable"
		} else {
			outcome = "error"
		}
		logging.Warn().Err(err).Str("user_id", userID).Str("model_type", string(modelType)).Msg("learn_with_retry failed")
	case !v.(bool):
		outcome = "lock_unavailable"
	}
	metrics.RecordLearningAttempt(string(modelType), outcome)
}

func percentile95(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	idx := int(math.Ceil(0.95*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
