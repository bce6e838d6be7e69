// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import "github.com/sentinel-auth/sentinel/internal/hotstate"

// Decision is evaluate()'s verdict for one request (§4.10).
type Decision struct {
	EvalID    string  `json:"eval_id"`
	SessionID string  `json:"session_id"`
	Result    string  `json:"decision"` // ALLOW, CHALLENGE, BLOCK
	Reason    string  `json:"reason"`
	Risk      float64 `json:"risk"`
	Mode      string  `json:"mode"`

	// BanExpiresInSeconds is set only when this evaluation itself returns
	// BLOCK and writes the provisional ban: it is the TTL Sentinel set the
	// ban with, not a countdown read back from storage (see DESIGN.md). A
	// BLOCK for an already-active ban (reason "active_ban") leaves it unset.
	BanExpiresInSeconds int64 `json:"ban_expires_in_seconds,omitempty"`
}

const (
	resultAllow     = "ALLOW"
	resultChallenge = "CHALLENGE"
	resultBlock     = "BLOCK"
)

// fusionWeights holds the per-channel weight for one session mode (§4.10
// step 5).
type fusionWeights struct {
	keyboard, mouse, navigator, identity float64
}

func weightsFor(mode hotstate.Mode) fusionWeights {
	switch mode {
	case hotstate.ModeChallenge:
		return fusionWeights{keyboard: 0.85, mouse: 1.00, navigator: 1.00, identity: 0.85}
	case hotstate.ModeTrusted:
		return fusionWeights{keyboard: 0.70 * 0.8, mouse: 0.90, navigator: 1.00, identity: 0.65 * 0.6}
	default: // NORMAL
		return fusionWeights{keyboard: 0.70, mouse: 0.90, navigator: 1.00, identity: 0.65}
	}
}

// thresholds holds a mode's ALLOW/CHALLENGE/BLOCK cut points over
// final_risk (§4.10 step 6): risk below challengeAt is ALLOW, risk at or
// above blockAt is BLOCK, otherwise CHALLENGE.
type thresholds struct {
	challengeAt, blockAt float64
}

func thresholdsFor(mode hotstate.Mode) thresholds {
	switch mode {
	case hotstate.ModeChallenge:
		return thresholds{challengeAt: 0.40, blockAt: 0.75}
	case hotstate.ModeTrusted:
		return thresholds{challengeAt: 0.60, blockAt: 0.92}
	default: // NORMAL
		return thresholds{challengeAt: 0.50, blockAt: 0.85}
	}
}

func decideByThreshold(risk float64, t thresholds) (result, reason string) {
	switch {
	case risk >= t.blockAt:
		return resultBlock, "risk_threshold"
	case risk >= t.challengeAt:
		return resultChallenge, "risk_threshold"
	default:
		return resultAllow, ""
	}
}
