// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"

	"github.com/sentinel-auth/sentinel/internal/anomaly"
	"github.com/sentinel-auth/sentinel/internal/hotstate"
	"github.com/sentinel-auth/sentinel/internal/keyboard"
	"github.com/sentinel-auth/sentinel/internal/mouse"
)

// IngestKeyboard appends one batch of raw keystroke events to a session's
// feature stream (§4.10 ingest_keyboard). It never returns a decision: the
// batch is rejected outright on stale/duplicate batch_id and otherwise only
// updates hot state, scoring any newly completed windows through the
// session's keyboard HST model as they close.
func (e *Engine) IngestKeyboard(ctx context.Context, sessionID, userID string, batchID int64, events []keyboard.Event) error {
	session, err := e.loadOrCreateSession(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if batchID <= session.LastKBBatchID {
		return nil // stale or replayed batch, silently dropped per §7
	}
	gapReset := session.LastKBBatchID != 0 && int(batchID-session.LastKBBatchID) > e.cfg.Ban.BatchGapReset

	if gapReset {
		// The gap resets the sliding window too, so no window spans it.
		e.DropSession(sessionID)
	}
	ext := e.keyboardExtractor(sessionID)
	var newWindows []keyboard.FeatureWindow
	for _, ev := range events {
		for _, w := range ext.Ingest(ev) {
			if w.Finite() {
				newWindows = append(newWindows, w)
			}
		}
	}

	_, err = e.updateSessionTransactional(ctx, sessionID, func(s *hotstate.SessionState) (*hotstate.SessionState, error) {
		if gapReset {
			s.CompletedWindows = nil
			// §4.10: a batch-id gap beyond the reset threshold costs half a
			// strike; two consecutive gapped batches therefore cost one
			// full strike. StrikeCount is a whole-number counter, so the
			// fractional cost is folded in on every other occurrence.
			if s.KBWindowCount%2 == 1 {
				s.StrikeCount++
			}
		}
		s.LastKBBatchID = batchID

		// §4.1: first_kb_event_time is recorded as Sentinel's own wall
		// clock at first-event time, not the client-supplied monotonic
		// event timestamp — the two clocks aren't comparable, and
		// kb_confidence's time-confidence term needs a wall-clock anchor
		// so it can keep advancing between ingest calls even without new
		// keystrokes (checked again in evaluate()).
		if _, ok := ext.FirstEventTime(); ok && !s.HaveFirstKBEvent {
			s.FirstKBEventTime = float64(e.now().Unix())
			s.HaveFirstKBEvent = true
		}

		for _, w := range newWindows {
			s.CompletedWindows = append(s.CompletedWindows, w)
			s.KBWindowCount++
		}

		if len(s.CompletedWindows) > 0 {
			recent := lastNWindows(s.CompletedWindows, 5)
			model, merr := e.loadModel(ctx, s.UserID, anomaly.KeyboardHST)
			if merr == nil && model != nil {
				sum := 0.0
				for _, w := range recent {
					sum += model.ScoreOne(w.Vector())
				}
				// Raw, confidence-unscaled mean: evaluate() applies
				// kb_confidence at decision time, since confidence keeps
				// growing with wall-clock time even between batches.
				s.LastKBScore = sum / float64(len(recent))
			}
		}

		s.LastActivity = e.now()
		return s, nil
	})
	return err
}

// IngestMouse appends one batch of raw mouse events (§4.10 ingest_mouse),
// updating the teleportation counters and re-deriving the session's mouse
// risk score from any complete strokes the batch contains.
func (e *Engine) IngestMouse(ctx context.Context, sessionID, userID string, batchID int64, events []mouse.Event) error {
	session, err := e.loadOrCreateSession(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if batchID <= session.LastMouseBatchID {
		return nil
	}
	gapReset := session.LastMouseBatchID != 0 && int(batchID-session.LastMouseBatchID) > e.cfg.Ban.BatchGapReset

	strokes := mouse.Segment(events)

	_, err = e.updateSessionTransactional(ctx, sessionID, func(s *hotstate.SessionState) (*hotstate.SessionState, error) {
		if gapReset {
			s.MoveCountSinceLastClick, s.TeleportClicks, s.TotalClicks = 0, 0, 0
			// §4.10: mirrors IngestKeyboard's gap-strike parity check, but
			// against the mouse stream's own batch counter — a mouse-only
			// session never advances KBWindowCount, so reusing it here would
			// never accrue a strike for a pure-mouse-bot attack pattern.
			if s.MouseWindowCount%2 == 1 {
				s.StrikeCount++
			}
		}
		s.LastMouseBatchID = batchID
		s.MouseWindowCount++

		tc := mouse.TeleportCounters{
			MoveCountSinceLastClick: s.MoveCountSinceLastClick,
			TeleportClicks:          s.TeleportClicks,
			TotalClicks:             s.TotalClicks,
		}
		tc = tc.Apply(events)
		s.MoveCountSinceLastClick, s.TeleportClicks, s.TotalClicks = tc.MoveCountSinceLastClick, tc.TeleportClicks, tc.TotalClicks

		maxPhysics := 0.0
		for _, stroke := range strokes {
			features := mouse.Extract(stroke)
			if score := mouse.PhysicsScore(features, mouse.DefaultPhysicsConfig()); score > maxPhysics {
				maxPhysics = score
			}
		}
		if len(strokes) > 0 {
			s.LastMouseScore = mouse.EffectiveRisk(maxPhysics, tc.Ratio())
		} else {
			// No complete stroke this batch: the teleportation ratio may
			// still have moved, so re-derive effective risk against the
			// last known physics contribution folded into LastMouseScore.
			s.LastMouseScore = mouse.EffectiveRisk(s.LastMouseScore, tc.Ratio())
		}

		s.LastActivity = e.now()
		return s, nil
	})
	return err
}
