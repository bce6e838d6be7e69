// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package hotstate implements the session-state store (§4.9): BadgerDB-backed
// SessionState hydration, optimistic transactional update, and the
// ban/strike keyspace (§6). Grounded on the teacher's internal/wal
// db.Update(func(txn *badger.Txn) error {...}) transaction idiom; the
// optimistic-concurrency guarantee comes from Badger's own SSI conflict
// detection rather than a hand-rolled WATCH/MULTI/EXEC (original_source's
// Redis-based approach maps directly onto it).
package hotstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/sentinel-auth/sentinel/internal/keyboard"
	"github.com/sentinel-auth/sentinel/internal/navigator"
)

// Mode is the session's operating posture (§4.10).
type Mode string

const (
	ModeNormal    Mode = "NORMAL"
	ModeChallenge Mode = "CHALLENGE"
	ModeTrusted   Mode = "TRUSTED"
)

// Phase is the session's lifecycle stage.
type Phase string

const (
	PhaseUnknown   Phase = "UNKNOWN"
	PhaseVerifying Phase = "VERIFYING"
	PhaseTrusted   Phase = "TRUSTED"
)

// SessionState is the hot, per-session record (§3). Put and
// UpdateTransactional apply its TTL themselves on every write (30 min idle).
type SessionState struct {
	UserID string `json:"user_id"`

	TrustScore float64 `json:"trust_score"`
	Mode       Mode    `json:"mode"`
	Phase      Phase   `json:"phase"`

	LastKBBatchID    int64 `json:"last_kb_batch_id"`
	LastMouseBatchID int64 `json:"last_mouse_batch_id"`

	CompletedWindows []keyboard.FeatureWindow `json:"completed_windows"`
	KBWindowCount    int                      `json:"kb_window_count"`
	FirstKBEventTime float64                  `json:"first_kb_event_time"`
	HaveFirstKBEvent bool                     `json:"have_first_kb_event"`

	LastKBScore            float64 `json:"last_kb_score"`
	LastMouseScore          float64 `json:"last_mouse_score"`
	LastNavScore            float64 `json:"last_nav_score"`
	LastIdentityScore       float64 `json:"last_identity_score"`
	LastIdentityConfidence  float64 `json:"last_identity_confidence"`

	ConsecutiveAllows int `json:"consecutive_allows"`
	StrikeCount       int `json:"strike_count"`

	LearningSuspendedUntil time.Time `json:"learning_suspended_until"`
	ContextStableSince     time.Time `json:"context_stable_since"`

	TOFUContext *navigator.TOFUContext `json:"tofu_context,omitempty"`
	LastGeo     navigator.GeoPoint     `json:"last_geo"`

	MoveCountSinceLastClick int `json:"move_count_since_last_click"`
	TeleportClicks          int `json:"teleport_clicks"`
	TotalClicks             int `json:"total_clicks"`
	MouseWindowCount        int `json:"mouse_window_count"`

	LastActivity time.Time `json:"last_activity"`
}

// NewSessionState returns the initial state for a brand-new session (§3:
// trust_score=0.5, mode=NORMAL, phase=UNKNOWN).
func NewSessionState(userID string) *SessionState {
	return &SessionState{
		UserID:     userID,
		TrustScore: 0.5,
		Mode:       ModeNormal,
		Phase:      PhaseUnknown,
	}
}

// Ban is the deserialized value of a blacklist:{user_id} key.
type Ban struct {
	Provenance string
	Reason     string
}

const (
	sessionTTL = 30 * time.Minute
	strikeTTL  = 7 * 24 * time.Hour

	// MaxTransactionalRetries bounds UpdateTransactional's optimistic retry
	// loop (§4.9, §5): on exhaustion the caller sees ErrTransientConflict.
	MaxTransactionalRetries = 5
)

// Ban TTL tiers (§3).
const (
	ProvisionalBanTTL = 5 * time.Minute
	StrikeBanTTLLow   = 1 * time.Hour
	StrikeBanTTLHigh  = 24 * time.Hour
)

// ErrTransientConflict is surfaced when UpdateTransactional exhausts its
// optimistic retries (§7: evaluate must fail safe to CHALLENGE on this).
var ErrTransientConflict = errors.New("hotstate: transient conflict, retries exhausted")

// ErrNotFound is returned by Get when no session state is stored.
var ErrNotFound = errors.New("hotstate: session not found")

func sessionKey(sessionID string) []byte   { return []byte("session:" + sessionID + ":state") }
func blacklistKey(userID string) []byte    { return []byte("blacklist:" + userID) }
func strikesKey(userID string) []byte      { return []byte("global_strikes:" + userID) }

// Store is the hot-state store. It wraps a single BadgerDB handle and
// applies no call timeout of its own. The orchestrator calls it through a
// circuit breaker and reports only an open breaker as HotStoreUnavailable
// (§7); other Badger errors reach its callers unchanged.
type Store struct {
	db *badger.DB
}

// New constructs a Store over an already-open BadgerDB handle.
func New(db *badger.DB) *Store {
	return &Store{db: db}
}

// Get returns the session's current state, or ErrNotFound if absent/expired.
func (s *Store) Get(ctx context.Context, sessionID string) (*SessionState, error) {
	var state SessionState
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &state)
		})
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Put writes the session state unconditionally with the standard 30-minute
// idle TTL.
func (s *Store) Put(ctx context.Context, sessionID string, state *SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("hotstate: marshal session state: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(sessionKey(sessionID), data).WithTTL(sessionTTL)
		return txn.SetEntry(e)
	})
}

// UpdateFunc transforms a session's state. A nil input state means the
// session did not previously exist; UpdateFunc must construct one (e.g. via
// NewSessionState). Returning an error aborts the transaction without
// writing.
type UpdateFunc func(state *SessionState) (*SessionState, error)

// UpdateTransactional reads the current state, applies fn, and writes the
// result back atomically. Badger's SSI detects write-write conflicts
// between concurrent callers touching the same key; on conflict this
// retries up to MaxTransactionalRetries times before returning
// ErrTransientConflict. fn must be a deterministic function of its input so
// retries converge (§5: Ordering).
func (s *Store) UpdateTransactional(ctx context.Context, sessionID string, fn UpdateFunc) (*SessionState, error) {
	var result *SessionState
	for attempt := 0; attempt < MaxTransactionalRetries; attempt++ {
		var txnErr error
		err := s.db.Update(func(txn *badger.Txn) error {
			var current *SessionState
			item, err := txn.Get(sessionKey(sessionID))
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				current = nil
			case err != nil:
				return err
			default:
				current = &SessionState{}
				if verr := item.Value(func(val []byte) error {
					return json.Unmarshal(val, current)
				}); verr != nil {
					return verr
				}
			}

			next, ferr := fn(current)
			if ferr != nil {
				txnErr = ferr
				return ferr
			}
			result = next

			data, merr := json.Marshal(next)
			if merr != nil {
				return merr
			}
			e := badger.NewEntry(sessionKey(sessionID), data).WithTTL(sessionTTL)
			return txn.SetEntry(e)
		})

		if txnErr != nil {
			return nil, txnErr
		}
		if err == nil {
			return result, nil
		}
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return nil, err
	}
	return nil, ErrTransientConflict
}

// SetBan sets blacklist:{user_id} with the given TTL and reason. Per §5,
// Sentinel only ever writes provisional TTLs; a subsequent longer-TTL write
// by the external auditor naturally takes precedence by overwrite.
func (s *Store) SetBan(ctx context.Context, userID string, ttl time.Duration, provenance, reason string) error {
	value := []byte(provenance + "|" + reason)
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(blacklistKey(userID), value).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

// ClearBan removes a user's ban.
func (s *Store) ClearBan(ctx context.Context, userID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(blacklistKey(userID))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// GetBan returns the user's current ban, or nil if not banned.
func (s *Store) GetBan(ctx context.Context, userID string) (*Ban, error) {
	var ban *Ban
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blacklistKey(userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			ban = parseBan(val)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ban, nil
}

func parseBan(val []byte) *Ban {
	s := string(val)
	for i := 0; i < len(s); i++ {
		if s[i] == '|' {
			return &Ban{Provenance: s[:i], Reason: s[i+1:]}
		}
	}
	return &Ban{Provenance: "", Reason: s}
}

// BanTTLForStrikes returns the ban TTL tier for a given strike count (§3).
func BanTTLForStrikes(strikeCount int) time.Duration {
	switch {
	case strikeCount >= 3:
		return StrikeBanTTLHigh
	default:
		return StrikeBanTTLLow
	}
}

// IncrStrike increments and returns global_strikes:{user_id}, refreshing its
// 7-day TTL.
func (s *Store) IncrStrike(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.Update(func(txn *badger.Txn) error {
		key := strikesKey(userID)
		current := 0
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			current = 0
		case err != nil:
			return err
		default:
			if verr := item.Value(func(val []byte) error {
				n, perr := parseInt(val)
				if perr != nil {
					return perr
				}
				current = n
				return nil
			}); verr != nil {
				return verr
			}
		}
		current++
		count = current
		e := badger.NewEntry(key, formatInt(current)).WithTTL(strikeTTL)
		return txn.SetEntry(e)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func parseInt(b []byte) (int, error) {
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("hotstate: invalid strike counter %q", b)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

func formatInt(n int) []byte {
	if n == 0 {
		return []byte("0")
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return buf[i:]
}
