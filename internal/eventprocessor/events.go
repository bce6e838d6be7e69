// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package eventprocessor publishes Sentinel's provisional-ban notification
// (SPEC_FULL.md §4.11 "Provisional-ban notification" supplement) over NATS
// JetStream. Publishing is best-effort: it fans out a BLOCK decision's ban
// to interested subscribers (e.g. a session-kill listener) without ever
// feeding back into evaluate()'s own decision or persistence path.
package eventprocessor

import (
	"time"

	"github.com/goccy/go-json"
)

// ProvisionalBanTopic is the JetStream subject provisional-ban events are
// published to.
const ProvisionalBanTopic = "sentinel.ban.provisional"

// ProvisionalBanEvent is the wire format of one provisional-ban notification.
type ProvisionalBanEvent struct {
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason"`
	ExpiresAt time.Time `json:"expires_at"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Serialize marshals a ProvisionalBanEvent for publishing.
func Serialize(event *ProvisionalBanEvent) ([]byte, error) {
	return json.Marshal(event)
}
