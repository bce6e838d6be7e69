// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package mouse

// TeleportCounters is the session-scoped state the teleportation detector
// threads through successive batches (§4.4). It is carried on
// hotstate.SessionState, not owned by this package.
type TeleportCounters struct {
	MoveCountSinceLastClick int
	TeleportClicks          int
	TotalClicks             int
}

// Apply folds a batch of mouse events into the counters, following §4.4: on
// CLICK, if fewer than 3 MOVEs preceded it since the last click, count it as
// a teleport click; always count the click and reset the move counter.
func (c TeleportCounters) Apply(events []Event) TeleportCounters {
	for _, ev := range events {
		switch ev.Kind {
		case Move:
			c.MoveCountSinceLastClick++
		case Click:
			if c.MoveCountSinceLastClick < 3 {
				c.TeleportClicks++
			}
			c.TotalClicks++
			c.MoveCountSinceLastClick = 0
		}
	}
	return c
}

// Ratio is teleport_clicks / max(total_clicks, 1).
func (c TeleportCounters) Ratio() float64 {
	denom := c.TotalClicks
	if denom < 1 {
		denom = 1
	}
	return float64(c.TeleportClicks) / float64(denom)
}

// EffectiveRisk is max(physics_score, teleportation_ratio), the mouse risk
// signal fed to fusion.
func EffectiveRisk(physicsScore float64, teleportRatio float64) float64 {
	if physicsScore > teleportRatio {
		return physicsScore
	}
	return teleportRatio
}
