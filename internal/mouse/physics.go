// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package mouse

import "math"

// PhysicsConfig holds the tunable thresholds for the tiered physics
// detector (§4.3).
type PhysicsConfig struct {
	// BiomechanicalMaxVelocity is the Tier 1 hard-fail instantaneous
	// velocity ceiling, in px/ms.
	BiomechanicalMaxVelocity float64
	// LinearityRunThreshold is the Tier 1 hard-fail number of consecutive
	// perfectly-linear MOVEs.
	LinearityRunThreshold int
	// TimingCVThreshold is the Tier 2 coefficient-of-variation ceiling
	// below which inter-event timing is considered suspiciously regular.
	TimingCVThreshold float64
	// SuspicionThreshold is the Tier 3 pass-through gate.
	SuspicionThreshold float64
}

// DefaultPhysicsConfig returns the defaults used absent explicit
// configuration.
func DefaultPhysicsConfig() PhysicsConfig {
	return PhysicsConfig{
		BiomechanicalMaxVelocity: MaxVelocityPxPerMS,
		LinearityRunThreshold:    8,
		TimingCVThreshold:        0.05,
		SuspicionThreshold:       0.3,
	}
}

// DETERMINISM: use an epsilon-based comparison instead of direct float
// equality — IEEE 754 precision makes "== 1.0" unreliable.
const linearityEpsilon = 1e-6

// PhysicsScore runs the tiered physics detector over one stroke's extracted
// features and returns physics_score in [0,1].
//
// Tier 1 (hard fail) returns 1.0 immediately on biomechanically impossible
// evidence. Tier 2 accumulates bounded additive increments for suspiciously
// regular behavior, clamped to [0, 0.9]. Tier 3 passes the accumulated score
// through only if it clears SuspicionThreshold.
func PhysicsScore(f Features, cfg PhysicsConfig) float64 {
	// Tier 1: hard fail.
	if f.MaxVelocityExceeded || f.VelocityMax > cfg.BiomechanicalMaxVelocity {
		return 1.0
	}
	if f.PerfectLinearityRun >= cfg.LinearityRunThreshold {
		return 1.0
	}
	if f.ZeroInterEventTime {
		return 1.0
	}

	// Tier 2: additive, bounded.
	score := 0.0
	if cv := coefficientOfVariation(f.TimeDiffStd, f.VelocityMean); cv > 0 && cv < cfg.TimingCVThreshold {
		score += 0.4
	}
	if f.LinearityError < linearityEpsilon {
		score += 0.3
	}
	if f.TrajectoryEfficiency > 0.98 {
		score += 0.2
	}
	score = math.Min(score, 0.9)

	// Tier 3: pass-through.
	if score >= cfg.SuspicionThreshold {
		return score
	}
	return 0
}

func coefficientOfVariation(std, mean float64) float64 {
	if mean == 0 {
		return 0
	}
	return std / mean
}
