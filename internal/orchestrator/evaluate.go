// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/goccy/go-json"

	"github.com/sentinel-auth/sentinel/internal/anomaly"
	"github.com/sentinel-auth/sentinel/internal/audit"
	"github.com/sentinel-auth/sentinel/internal/hotstate"
	"github.com/sentinel-auth/sentinel/internal/keyboard"
	"github.com/sentinel-auth/sentinel/internal/logging"
	"github.com/sentinel-auth/sentinel/internal/metrics"
	"github.com/sentinel-auth/sentinel/internal/navigator"
)

// identityContradictionRisk / identityContradictionConfidence gate the
// BLOCK override; identityImmatureRisk gates the CHALLENGE override when
// confidence hasn't caught up yet (§4.10 step 4).
const (
	identityContradictionRisk       = 0.95
	identityContradictionConfidence = 0.60
	identityImmatureRisk            = 0.98
	trustCrashIdentityRisk          = 0.90
)

// identityRecentWindows bounds how many of a session's pending completed
// windows are scored against the identity model per evaluate call, mirroring
// the keyboard HST's own "up to 5 most recent" rule (§4.10 step 3).
const identityRecentWindows = 5

// Evaluate runs the full decision sequence (§4.10 steps 1-11) for one
// request and returns the verdict. evalID must be unique per logical
// evaluation attempt; a retried evalID returns the stored decision, risk and
// mode without re-running fusion (§4.11). The audit record keeps no reason
// or ban expiry, so those fields are empty on a replayed decision.
func (e *Engine) Evaluate(ctx context.Context, evalID, sessionID, userID string, reqCtx navigator.RequestContext) (*Decision, error) {
	start := e.now()

	if prior, err := e.audit.Get(ctx, evalID); err == nil && prior != nil {
		return auditEventToDecision(prior), nil
	}

	session, err := e.loadOrCreateSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	// Step 2: ban check.
	if ban, berr := e.getBan(ctx, userID); berr != nil {
		return nil, berr
	} else if ban != nil {
		d := &Decision{
			EvalID: evalID, SessionID: sessionID, Result: resultBlock,
			Reason: "active_ban", Risk: 1.0, Mode: string(session.Mode),
		}
		e.recordDecision(ctx, d, userID, start, audit.ComponentScores{}, audit.AnomalyVectors{}, nil)
		return d, nil
	}

	// Step 3: component scores.
	countConf := keyboard.CountConfidence(session.KBWindowCount, e.cfg.Keyboard.CountMaturity)
	elapsed := 0.0
	if session.HaveFirstKBEvent {
		elapsed = e.now().Sub(time.Unix(int64(session.FirstKBEventTime), 0)).Seconds()
	}
	timeConf := keyboard.TimeConfidence(elapsed, e.cfg.Keyboard.TimeMaturity.Seconds())
	kbConfidence := keyboard.Confidence(countConf, timeConf)
	kbScore := session.LastKBScore * kbConfidence

	mouseScore := session.LastMouseScore

	identityRisk, identityConfidence, coldStartIdentity, identityVectors, identityErr := e.scoreIdentity(ctx, session)
	if identityErr != nil {
		return nil, identityErr
	}

	navResult, newTOFU := e.nav.Evaluate(reqCtx, session.TOFUContext, session.LastGeo)

	// Step 4: priority override chain, first match wins.
	overrideResult, overrideReason := "", ""
	switch {
	case session.StrikeCount >= 3:
		overrideResult, overrideReason = resultBlock, "strike_limit"
	case mouseScore >= 1.0:
		overrideResult, overrideReason = resultBlock, "non_human_physics"
	case navResult.Decision == navigator.Block:
		overrideResult, overrideReason = resultBlock, "environment_violation"
	case identityRisk >= identityContradictionRisk && identityConfidence >= identityContradictionConfidence:
		overrideResult, overrideReason = resultBlock, "identity_contradiction"
	case identityRisk >= identityImmatureRisk && identityConfidence < identityContradictionConfidence:
		overrideResult, overrideReason = resultChallenge, "immature_identity"
	case session.KBWindowCount < keyboard.WindowSize:
		overrideResult, overrideReason = resultChallenge, "hst_cold_start"
	}

	// Step 5: weighted-sum fusion.
	w := weightsFor(session.Mode)
	identityTerm := w.identity * math.Sqrt(clamp01(identityConfidence)) * identityRisk
	finalRisk := clamp01(w.keyboard*kbScore + w.mouse*mouseScore + w.navigator*navResult.Score + identityTerm)

	// Step 6: threshold decision, unless an override already decided.
	result, reason := overrideResult, overrideReason
	if result == "" {
		result, reason = decideByThreshold(finalRisk, thresholdsFor(session.Mode))
	}

	// Step 7: trust stabilizer. Trust moves toward 1 when final_risk is below
	// the 0.5 midpoint and toward 0 above it, scaled by TRUST_DELTA.
	trustCrashed := identityRisk >= trustCrashIdentityRisk
	newTrust := clamp01(session.TrustScore + e.cfg.Trust.Delta*(0.5-finalRisk))
	if trustCrashed {
		newTrust = 0
	}

	// Step 8: phase transitions.
	newPhase := session.Phase
	switch session.Phase {
	case hotstate.PhaseUnknown:
		if session.KBWindowCount >= keyboard.WindowSize && timeConf >= 1 {
			newPhase = hotstate.PhaseVerifying
		}
	case hotstate.PhaseVerifying:
		if newTrust >= e.cfg.Trust.TrustedThreshold {
			newPhase = hotstate.PhaseTrusted
		}
	case hotstate.PhaseTrusted:
		if newTrust == 0 {
			newPhase = hotstate.PhaseUnknown
		}
	}
	if newPhase != session.Phase {
		metrics.RecordPhaseTransition(string(session.Phase), string(newPhase))
	}

	// Step 9: post-decision bookkeeping. Mode starts from the phase just
	// computed (earning TRUSTED always promotes mode), then the decision
	// itself can still demote it: CHALLENGE always forces ModeChallenge and
	// BLOCK always forces ModeNormal, regardless of phase. A trust crash
	// demotes mode to NORMAL immediately rather than waiting on result, so a
	// newly re-poisoned identity can't keep riding TRUSTED's lenient fusion
	// weights/thresholds for the rest of this same evaluation.
	newMode := session.Mode
	switch {
	case newPhase == hotstate.PhaseTrusted:
		newMode = hotstate.ModeTrusted
	case trustCrashed:
		newMode = hotstate.ModeNormal
	case newMode == hotstate.ModeChallenge && result == resultAllow:
		// A CHALLENGE-mode session that clears an ALLOW returns to NORMAL.
		newMode = hotstate.ModeNormal
	}

	newConsecutiveAllows := session.ConsecutiveAllows
	newStrikeCount := session.StrikeCount
	var banTTL time.Duration
	switch result {
	case resultAllow:
		newConsecutiveAllows++
	case resultChallenge:
		newMode = hotstate.ModeChallenge
		newConsecutiveAllows = 0
	case resultBlock:
		banTTL = e.cfg.Ban.ProvisionalTTL
		newStrikeCount++
		newTrust = 0
		newConsecutiveAllows = 0
		newMode = hotstate.ModeNormal
	}

	newContextStableSince := session.ContextStableSince
	if len(navResult.Violations) > 0 {
		newContextStableSince = e.now()
	} else if newContextStableSince.IsZero() {
		newContextStableSince = e.now()
	}

	newLearningSuspendedUntil := session.LearningSuspendedUntil
	if navResult.Score >= e.cfg.Learning.SuspendOn {
		newLearningSuspendedUntil = e.now().Add(e.cfg.Learning.ResumeAfter)
	}
	learningNotSuspended := !e.now().Before(newLearningSuspendedUntil)

	// Step 10: selective learning.
	clearKBWindows := e.learn(ctx, session, newMode, newTrust, newConsecutiveAllows, newContextStableSince, learningNotSuspended, navResult.Score, result)

	metrics.ObserveTrustScore(newTrust)

	// Persist.
	_, err = e.updateSessionTransactional(ctx, sessionID, func(s *hotstate.SessionState) (*hotstate.SessionState, error) {
		s.TrustScore = newTrust
		s.Mode = newMode
		s.Phase = newPhase
		s.ConsecutiveAllows = newConsecutiveAllows
		s.StrikeCount = newStrikeCount
		s.LastNavScore = navResult.Score
		s.LastIdentityScore = identityRisk
		s.LastIdentityConfidence = identityConfidence
		s.LearningSuspendedUntil = newLearningSuspendedUntil
		s.ContextStableSince = newContextStableSince
		if session.TOFUContext == nil {
			s.TOFUContext = &newTOFU
		}
		if reqCtx.HasGeo {
			s.LastGeo = navigator.GeoPoint{Lat: reqCtx.Lat, Lon: reqCtx.Lon, HasGeo: true, Timestamp: reqCtx.Timestamp}
		}
		if clearKBWindows {
			s.CompletedWindows = nil
		}
		s.LastActivity = e.now()
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	if result == resultBlock {
		if serr := e.setBan(ctx, userID, banTTL, "sentinel", reason); serr != nil {
			logging.Warn().Err(serr).Str("user_id", userID).Msg("failed to set provisional ban")
		}
		if _, serr := e.incrStrike(ctx, userID); serr != nil {
			logging.Warn().Err(serr).Str("user_id", userID).Msg("failed to increment global strike count")
		}
		if e.banPublisher != nil {
			e.banPublisher.PublishProvisionalBan(ctx, userID, reason, e.now().Add(banTTL))
		}
	}

	d := &Decision{
		EvalID: evalID, SessionID: sessionID, Result: result, Reason: reason,
		Risk: finalRisk, Mode: string(newMode),
	}
	if result == resultBlock {
		d.BanExpiresInSeconds = int64(banTTL.Seconds())
	}

	scores := audit.ComponentScores{Keyboard: kbScore, Mouse: mouseScore, Nav: navResult.Score, Identity: identityRisk}
	vectors := audit.AnomalyVectors{Identity: identityVectors}
	var evalContext json.RawMessage
	if coldStartIdentity {
		evalContext, _ = json.Marshal(map[string]bool{"cold_start_identity": true})
	}
	e.recordDecision(ctx, d, userID, start, scores, vectors, evalContext)

	return d, nil
}

func (e *Engine) scoreIdentity(ctx context.Context, session *hotstate.SessionState) (risk, confidence float64, coldStart bool, vectors map[string]float64, err error) {
	model, merr := e.loadModel(ctx, session.UserID, anomaly.KeyboardIdentity)
	if merr != nil {
		if errors.Is(merr, ErrColdStoreUnavailable) {
			// §7: ColdStoreUnavailable — continue with cold_start=true for
			// the affected model rather than failing the whole evaluate.
			return 0, 0, true, nil, nil
		}
		return 0, 0, false, nil, merr
	}
	if model == nil {
		return 0, 0, true, nil, nil
	}

	recent := lastNWindows(session.CompletedWindows, identityRecentWindows)
	if len(recent) == 0 {
		confidence = clamp01(float64(model.FeatureWindows) / float64(e.cfg.Identity.SamplesRequired))
		return 0, confidence, false, nil, nil
	}

	sum := 0.0
	for _, w := range recent {
		sum += model.ScoreOne(w.Vector())
	}
	risk = sum / float64(len(recent))
	confidence = clamp01(float64(model.FeatureWindows) / float64(e.cfg.Identity.SamplesRequired))

	if idx := model.Attribution(recent[len(recent)-1].Vector()); len(idx) > 0 {
		vectors = make(map[string]float64, len(idx))
		v := recent[len(recent)-1].Vector()
		for _, i := range idx {
			vectors[identityDimensionName(i)] = v[i]
		}
	}
	metrics.ObserveAnomalyScore(string(anomaly.KeyboardIdentity), risk)
	return risk, confidence, false, vectors, nil
}

func identityDimensionName(i int) string {
	names := [12]string{
		"dwell_mean", "dwell_std", "dwell_min", "dwell_max",
		"flight_mean", "flight_std", "flight_min", "flight_max",
		"interval_mean", "interval_std", "interval_min", "interval_max",
	}
	if i < 0 || i >= len(names) {
		return "unknown"
	}
	return names[i]
}

func (e *Engine) recordDecision(ctx context.Context, d *Decision, userID string, start time.Time, scores audit.ComponentScores, vectors audit.AnomalyVectors, evalContext json.RawMessage) {
	metrics.RecordEvaluateDecision(d.Result, d.Reason)
	metrics.ObserveFusionRisk(d.Risk)
	metrics.ObserveEvaluateDuration(e.now().Sub(start))

	event := &audit.Event{
		EvalID: d.EvalID, SessionID: d.SessionID, UserID: userID,
		Timestamp: e.now().Unix(), Decision: d.Result, Risk: d.Risk, Mode: d.Mode,
		ComponentScores: scores, AnomalyVectors: vectors, Context: evalContext,
	}
	if _, err := e.audit.Save(ctx, event); err != nil && !errors.Is(err, audit.ErrDuplicateEvalID) {
		logging.Error().Err(err).Str("eval_id", d.EvalID).Msg("failed to persist audit record")
	}
}

func auditEventToDecision(ev *audit.Event) *Decision {
	return &Decision{
		EvalID: ev.EvalID, SessionID: ev.SessionID, Result: ev.Decision,
		Risk: ev.Risk, Mode: ev.Mode,
	}
}
