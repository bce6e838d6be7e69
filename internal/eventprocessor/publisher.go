// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package eventprocessor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/google/uuid"

	"github.com/sentinel-auth/sentinel/internal/config"
	"github.com/sentinel-auth/sentinel/internal/logging"
)

// Publisher wraps a Watermill NATS JetStream publisher with circuit-breaker
// protection, satisfying orchestrator.BanPublisher. Adapted from the
// teacher's internal/eventprocessor/publisher.go: same resilience pattern,
// trimmed to the single provisional-ban publish path.
type Publisher struct {
	publisher message.Publisher
	breaker   *gobreaker.CircuitBreaker[any]

	mu     sync.RWMutex
	closed bool
}

// NewPublisher dials the configured NATS server and returns a Publisher
// ready to fan out provisional-ban events. The underlying stream
// (ProvisionalBanTopic) is expected to already exist; Sentinel does not
// provision it here.
func NewPublisher(cfg config.NATSConfig) (*Publisher, error) {
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}

	wmLogger := watermill.NewStdLogger(false, false)
	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false,
			TrackMsgId:    true,
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("eventprocessor: create nats publisher: %w", err)
	}

	return &Publisher{
		publisher: pub,
		breaker:   newCircuitBreaker("nats-publisher"),
	}, nil
}

// PublishProvisionalBan fans out a provisional ban, best-effort. Failures
// are logged, not returned: a downed broker must never affect evaluate()'s
// own decision or response latency.
func (p *Publisher) PublishProvisionalBan(ctx context.Context, userID, reason string, expiresAt time.Time) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return
	}

	event := &ProvisionalBanEvent{UserID: userID, Reason: reason, ExpiresAt: expiresAt, IssuedAt: time.Now()}
	payload, err := Serialize(event)
	if err != nil {
		logging.Error().Err(err).Str("user_id", userID).Msg("serialize provisional ban event failed")
		return
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	msg.Metadata.Set("user_id", userID)
	msg.Metadata.Set("reason", reason)

	_, err = p.breaker.Execute(func() (any, error) {
		return nil, p.publisher.Publish(ProvisionalBanTopic, msg)
	})
	if err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("publish provisional ban failed")
	}
}

// Close gracefully shuts down the underlying NATS publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}
