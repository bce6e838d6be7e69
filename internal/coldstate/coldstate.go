// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package coldstate implements the model store (§4.8): versioned
// load/save with optimistic concurrency, base64 blob integrity
// (auto-heal on corruption), and the per-(user_id, model_type) non-blocking
// learning lock (§5, I7). Grounded on the teacher's internal/wal BadgerDB
// transaction idiom, applied here to original_source's model_store.py
// load/save/learn_with_retry contract.
package coldstate

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/sentinel-auth/sentinel/internal/anomaly"
)

// ErrVersionConflict is returned by Save when expectedVersion does not match
// the stored version (§4.8: conditional update).
var ErrVersionConflict = errors.New("coldstate: version conflict")

// ErrBlobIntegrity is returned by Save when the base64 encoding of a blob
// would not have a length divisible by 4 (I6); the save is aborted and the
// previously stored row is left untouched (§7).
var ErrBlobIntegrity = errors.New("coldstate: blob integrity check failed")

// MaxLearnRetries bounds learn_with_retry's reload-and-reapply loop (§4.8).
const MaxLearnRetries = 3

// UserModel is the cold, per-(user_id, model_type) persisted record (§3).
type UserModel struct {
	UserID              string           `json:"user_id"`
	ModelType           anomaly.ModelType `json:"model_type"`
	ModelBlob           []byte            `json:"-"`
	FeatureWindowCount  int               `json:"feature_window_count"`
	Version             int               `json:"version"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// record is the on-disk JSON envelope; ModelBlob is stored base64-encoded
// per §6's blob encoding contract.
type record struct {
	FeatureWindowCount int       `json:"feature_window_count"`
	Version            int       `json:"version"`
	UpdatedAt          time.Time `json:"updated_at"`
	ModelBlobBase64    string    `json:"model_blob_base64"`
}

func modelKey(userID string, modelType anomaly.ModelType) []byte {
	return []byte("model:" + userID + ":" + string(modelType))
}

// Store is the cold-state model store.
type Store struct {
	db *badger.DB

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New constructs a Store over an already-open BadgerDB handle.
func New(db *badger.DB) *Store {
	return &Store{db: db, locks: make(map[string]*sync.Mutex)}
}

// Load returns the user's model, or (nil, nil) if absent. A blob whose
// base64 length is not divisible by 4 is treated as corrupt: the row is
// deleted and (nil, nil) is returned (auto-heal, §4.8/§7).
func (s *Store) Load(ctx context.Context, userID string, modelType anomaly.ModelType) (*UserModel, error) {
	var rec record
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(modelKey(userID, modelType))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	if len(rec.ModelBlobBase64)%4 != 0 {
		if derr := s.delete(ctx, userID, modelType); derr != nil {
			return nil, derr
		}
		return nil, nil
	}
	blob, err := base64.StdEncoding.DecodeString(rec.ModelBlobBase64)
	if err != nil {
		if derr := s.delete(ctx, userID, modelType); derr != nil {
			return nil, derr
		}
		return nil, nil
	}

	return &UserModel{
		UserID:             userID,
		ModelType:          modelType,
		ModelBlob:          blob,
		FeatureWindowCount: rec.FeatureWindowCount,
		Version:            rec.Version,
		UpdatedAt:          rec.UpdatedAt,
	}, nil
}

func (s *Store) delete(ctx context.Context, userID string, modelType anomaly.ModelType) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(modelKey(userID, modelType))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Save writes model with a conditional update requiring the stored version
// to equal expectedVersion; on success the new stored version is
// expectedVersion+1 (I4). Returns ErrVersionConflict on mismatch and
// ErrBlobIntegrity if the base64 encoding would violate I6 (in which case
// nothing is written, per §7).
func (s *Store) Save(ctx context.Context, m *UserModel, expectedVersion int) error {
	encoded := base64.StdEncoding.EncodeToString(m.ModelBlob)
	if len(encoded)%4 != 0 {
		return ErrBlobIntegrity
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		key := modelKey(m.UserID, m.ModelType)
		storedVersion := 0
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			storedVersion = 0
		case err != nil:
			return err
		default:
			var rec record
			if verr := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); verr != nil {
				return verr
			}
			storedVersion = rec.Version
		}

		if storedVersion != expectedVersion {
			return ErrVersionConflict
		}

		rec := record{
			FeatureWindowCount: m.FeatureWindowCount,
			Version:            expectedVersion + 1,
			UpdatedAt:          m.UpdatedAt,
			ModelBlobBase64:    encoded,
		}
		data, merr := json.Marshal(rec)
		if merr != nil {
			return merr
		}
		return txn.Set(key, data)
	})
	if errors.Is(err, badger.ErrConflict) {
		return ErrVersionConflict
	}
	return err
}

func (s *Store) lockFor(userID string, modelType anomaly.ModelType) *sync.Mutex {
	key := userID + ":" + string(modelType)
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// LearnFunc applies one feature window to a model in place.
type LearnFunc func(m *anomaly.Model, window [12]float64)

// LearnWithRetry acquires the per-(user,model_type) learning lock
// non-blockingly; if already held, it returns immediately with ok=false
// (§5: the next batch retries, no error surfaced). Otherwise it loads the
// model (constructing a fresh one if absent, per the resolved Open Question
// in SPEC_FULL.md — identity learning is never blocked on model existence),
// applies learn to every window, and saves with up to MaxLearnRetries
// reload-and-reapply attempts on version conflict.
func (s *Store) LearnWithRetry(ctx context.Context, userID string, modelType anomaly.ModelType, windows [][12]float64, learn LearnFunc) (ok bool, err error) {
	mu := s.lockFor(userID, modelType)
	if !mu.TryLock() {
		return false, nil
	}
	defer mu.Unlock()

	for attempt := 0; attempt <= MaxLearnRetries; attempt++ {
		stored, lerr := s.Load(ctx, userID, modelType)
		if lerr != nil {
			return false, lerr
		}

		var model *anomaly.Model
		expectedVersion := 0
		featureWindowCount := 0
		if stored != nil {
			model, lerr = anomaly.Deserialize(stored.ModelBlob)
			if lerr != nil {
				model = anomaly.New()
			}
			expectedVersion = stored.Version
			featureWindowCount = stored.FeatureWindowCount
		} else {
			model = anomaly.New()
		}

		for _, w := range windows {
			learn(model, w)
			featureWindowCount++
		}

		toSave := &UserModel{
			UserID:             userID,
			ModelType:          modelType,
			ModelBlob:          model.Serialize(),
			FeatureWindowCount: featureWindowCount,
			UpdatedAt:          currentTime(ctx),
		}

		saveErr := s.Save(ctx, toSave, expectedVersion)
		if saveErr == nil {
			return true, nil
		}
		if errors.Is(saveErr, ErrVersionConflict) {
			continue
		}
		return false, saveErr
	}
	return false, fmt.Errorf("coldstate: learn_with_retry exhausted %d retries for %s/%s", MaxLearnRetries, userID, modelType)
}

// currentTime lets callers inject a deterministic clock via context for
// tests; falls back to wall-clock time otherwise.
func currentTime(ctx context.Context) time.Time {
	if t, ok := ctx.Value(clockKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

type clockKey struct{}

// WithClock returns a context carrying a fixed time for deterministic tests.
func WithClock(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, clockKey{}, t)
}
