// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package eventprocessor

import (
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/sentinel-auth/sentinel/internal/logging"
	"github.com/sentinel-auth/sentinel/internal/metrics"
)

// newCircuitBreaker builds the breaker guarding NATS publish calls. A slow
// or unreachable broker must never stall evaluate()'s own response, so the
// threshold trips fast and resets on its own timeout.
func newCircuitBreaker(name string) *gobreaker.CircuitBreaker[any] {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 5 },
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordCircuitBreakerStateChange(name, from.String(), to.String())
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}
	return gobreaker.NewCircuitBreaker[any](settings)
}
