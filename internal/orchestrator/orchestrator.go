// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator implements Sentinel's fusion/decision engine (§4.10):
// the component that turns a stream of keyboard/mouse/navigator/identity
// signals into an ALLOW/CHALLENGE/BLOCK verdict. Architecturally it is
// adapted from the teacher's internal/detection/engine.go: a single Engine
// holding the downstream stores and a configured set of detectors, wrapping
// each call in circuit-breaker protection rather than letting a slow
// dependency stall the whole evaluate() path.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/sentinel-auth/sentinel/internal/anomaly"
	"github.com/sentinel-auth/sentinel/internal/audit"
	"github.com/sentinel-auth/sentinel/internal/coldstate"
	"github.com/sentinel-auth/sentinel/internal/config"
	"github.com/sentinel-auth/sentinel/internal/hotstate"
	"github.com/sentinel-auth/sentinel/internal/keyboard"
	"github.com/sentinel-auth/sentinel/internal/logging"
	"github.com/sentinel-auth/sentinel/internal/metrics"
	"github.com/sentinel-auth/sentinel/internal/navigator"
)

// ErrHotStoreUnavailable is returned when the hot-state circuit breaker is
// open; callers treat this as the "HotStoreUnavailable" condition of §7.
var ErrHotStoreUnavailable = errors.New("orchestrator: hot store unavailable")

// ErrColdStoreUnavailable is returned when the cold-state circuit breaker is
// open; callers treat this as the "ColdStoreUnavailable" condition of §7.
var ErrColdStoreUnavailable = errors.New("orchestrator: cold store unavailable")

// BanPublisher fans out a best-effort provisional-ban notification. It is
// satisfied by internal/eventprocessor's NATS publisher; nil disables the
// notification without affecting evaluate()'s own decision or persistence.
type BanPublisher interface {
	PublishProvisionalBan(ctx context.Context, userID, reason string, expiresAt time.Time)
}

// Engine wires the keyboard/mouse/navigator/anomaly packages to the hot and
// cold stores and produces decisions. One Engine is shared by every request
// goroutine; all of its state is either immutable after New or guarded by
// its own locks.
type Engine struct {
	cfg *config.Config

	hot   *hotstate.Store
	cold  *coldstate.Store
	audit audit.Store
	nav   *navigator.Engine

	banPublisher BanPublisher

	hotBreaker  *gobreaker.CircuitBreaker[any]
	coldBreaker *gobreaker.CircuitBreaker[any]

	now func() time.Time

	kbExtractorsMu sync.Mutex
	kbExtractors   map[string]*keyboard.Extractor
}

// New constructs the fusion/decision engine. banPublisher may be nil.
func New(cfg *config.Config, hot *hotstate.Store, cold *coldstate.Store, auditStore audit.Store, nav *navigator.Engine, banPublisher BanPublisher) *Engine {
	e := &Engine{
		cfg:          cfg,
		hot:          hot,
		cold:         cold,
		audit:        auditStore,
		nav:          nav,
		banPublisher: banPublisher,
		now:          time.Now,
		kbExtractors: make(map[string]*keyboard.Extractor),
	}
	e.hotBreaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "hotstate",
		Timeout:     cfg.CircuitBreaker.HotTimeout,
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 5 },
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordCircuitBreakerStateChange(name, from.String(), to.String())
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	e.coldBreaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "coldstate",
		Timeout:     cfg.CircuitBreaker.ColdTimeout,
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 5 },
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordCircuitBreakerStateChange(name, from.String(), to.String())
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return e
}

// WithClock overrides the engine's clock for deterministic tests.
func (e *Engine) WithClock(now func() time.Time) { e.now = now }

// keyboardExtractor returns the process-local sliding-window extractor for a
// session, creating one on first use. Extractor buffers (partial keystroke
// pairs, sub-window accumulation) are intentionally not part of
// hotstate.SessionState: they are high-frequency, cheap to rebuild, and
// carrying them through Badger on every batch would make every keystroke
// batch pay a serialize/persist cost for data that's only useful mid-window.
// Losing a partial window on process restart costs at most one delayed
// feature window, not a correctness violation.
func (e *Engine) keyboardExtractor(sessionID string) *keyboard.Extractor {
	e.kbExtractorsMu.Lock()
	defer e.kbExtractorsMu.Unlock()
	ext, ok := e.kbExtractors[sessionID]
	if !ok {
		ext = keyboard.NewExtractor()
		e.kbExtractors[sessionID] = ext
	}
	return ext
}

// DropSession releases process-local buffers for a session. IngestKeyboard
// calls it on a batch-id gap reset; nothing calls it on session expiry, so
// the extractor map keeps an entry for every session this process has seen.
func (e *Engine) DropSession(sessionID string) {
	e.kbExtractorsMu.Lock()
	defer e.kbExtractorsMu.Unlock()
	delete(e.kbExtractors, sessionID)
}

// loadOrCreateSession hydrates a session's hot state, creating and storing a
// fresh NewSessionState if this is the session's first call (§4.9), so the
// caller's later updateSessionTransactional never sees a nil state.
func (e *Engine) loadOrCreateSession(ctx context.Context, sessionID, userID string) (*hotstate.SessionState, error) {
	start := e.now()
	v, err := e.hotBreaker.Execute(func() (any, error) {
		return e.hot.Get(ctx, sessionID)
	})
	metrics.RecordHotStoreCall("get_session", e.now().Sub(start), err)
	if err != nil {
		if errors.Is(err, hotstate.ErrNotFound) {
			return e.updateSessionTransactional(ctx, sessionID, func(s *hotstate.SessionState) (*hotstate.SessionState, error) {
				if s == nil {
					s = hotstate.NewSessionState(userID)
				}
				return s, nil
			})
		}
		if isBreakerOpen(err) {
			return nil, ErrHotStoreUnavailable
		}
		return nil, err
	}
	return v.(*hotstate.SessionState), nil
}

func (e *Engine) updateSessionTransactional(ctx context.Context, sessionID string, fn hotstate.UpdateFunc) (*hotstate.SessionState, error) {
	start := e.now()
	v, err := e.hotBreaker.Execute(func() (any, error) {
		return e.hot.UpdateTransactional(ctx, sessionID, fn)
	})
	metrics.RecordHotStoreCall("update_session", e.now().Sub(start), err)
	if err != nil {
		if isBreakerOpen(err) {
			return nil, ErrHotStoreUnavailable
		}
		return nil, err
	}
	return v.(*hotstate.SessionState), nil
}

func (e *Engine) getBan(ctx context.Context, userID string) (*hotstate.Ban, error) {
	start := e.now()
	v, err := e.hotBreaker.Execute(func() (any, error) {
		return e.hot.GetBan(ctx, userID)
	})
	metrics.RecordHotStoreCall("get_ban", e.now().Sub(start), err)
	if err != nil {
		if isBreakerOpen(err) {
			return nil, ErrHotStoreUnavailable
		}
		return nil, err
	}
	return v.(*hotstate.Ban), nil
}

func (e *Engine) setBan(ctx context.Context, userID string, ttl time.Duration, provenance, reason string) error {
	start := e.now()
	_, err := e.hotBreaker.Execute(func() (any, error) {
		return nil, e.hot.SetBan(ctx, userID, ttl, provenance, reason)
	})
	metrics.RecordHotStoreCall("set_ban", e.now().Sub(start), err)
	if err == nil {
		metrics.RecordBan(provenance, reason)
	}
	if isBreakerOpen(err) {
		return ErrHotStoreUnavailable
	}
	return err
}

func (e *Engine) incrStrike(ctx context.Context, userID string) (int, error) {
	start := e.now()
	v, err := e.hotBreaker.Execute(func() (any, error) {
		return e.hot.IncrStrike(ctx, userID)
	})
	metrics.RecordHotStoreCall("incr_strike", e.now().Sub(start), err)
	if err != nil {
		if isBreakerOpen(err) {
			return 0, ErrHotStoreUnavailable
		}
		return 0, err
	}
	return v.(int), nil
}

// loadModel loads a user's cold-state model through the cold breaker. A nil
// model (no error) means cold start: no model has been trained yet.
func (e *Engine) loadModel(ctx context.Context, userID string, modelType anomaly.ModelType) (*anomaly.Model, error) {
	start := e.now()
	v, err := e.coldBreaker.Execute(func() (any, error) {
		um, lerr := e.cold.Load(ctx, userID, modelType)
		if lerr != nil || um == nil {
			return (*anomaly.Model)(nil), lerr
		}
		m, derr := anomaly.Deserialize(um.ModelBlob)
		if derr != nil {
			// §7: BlobIntegrityError on load — treat as cold start, not a
			// hard failure; the corrupt row was already deleted by
			// coldstate.Load's own auto-heal.
			logging.Warn().Err(derr).Str("user_id", userID).Str("model_type", string(modelType)).Msg("cold model deserialize failed, treating as cold start")
			return (*anomaly.Model)(nil), nil
		}
		return m, nil
	})
	metrics.RecordColdStoreCall("load_model", e.now().Sub(start), err)
	if err != nil {
		if isBreakerOpen(err) {
			return nil, ErrColdStoreUnavailable
		}
		return nil, err
	}
	return v.(*anomaly.Model), nil
}

func isBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func lastNWindows(windows []keyboard.FeatureWindow, n int) []keyboard.FeatureWindow {
	if len(windows) <= n {
		return windows
	}
	return windows[len(windows)-n:]
}
