// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package coldstate

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-auth/sentinel/internal/anomaly"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestLoadAbsentReturnsNil(t *testing.T) {
	store := New(openTestDB(t))
	m, err := store.Load(context.Background(), "user-1", anomaly.KeyboardHST)
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	store := New(openTestDB(t))
	ctx := context.Background()
	model := anomaly.New()

	err := store.Save(ctx, &UserModel{
		UserID:             "user-2",
		ModelType:          anomaly.KeyboardHST,
		ModelBlob:          model.Serialize(),
		FeatureWindowCount: 1,
	}, 0)
	require.NoError(t, err)

	got, err := store.Load(ctx, "user-2", anomaly.KeyboardHST)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 1, got.Version)
	require.Equal(t, 1, got.FeatureWindowCount)
}

func TestSaveVersionConflict(t *testing.T) {
	store := New(openTestDB(t))
	ctx := context.Background()
	model := anomaly.New()

	um := &UserModel{UserID: "user-3", ModelType: anomaly.KeyboardHST, ModelBlob: model.Serialize()}
	require.NoError(t, store.Save(ctx, um, 0))

	err := store.Save(ctx, um, 0)
	require.ErrorIs(t, err, ErrVersionConflict)
}

func TestLoadAutoHealsCorruptBase64(t *testing.T) {
	store := New(openTestDB(t))
	ctx := context.Background()
	key := modelKey("user-4", anomaly.KeyboardHST)

	err := store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, []byte(`{"feature_window_count":0,"version":0,"model_blob_base64":"abc"}`))
	})
	require.NoError(t, err)

	m, err := store.Load(ctx, "user-4", anomaly.KeyboardHST)
	require.NoError(t, err)
	require.Nil(t, m)

	_, err = store.db.NewTransaction(false).Get(key)
	require.ErrorIs(t, err, badger.ErrKeyNotFound)
}

func TestLearnWithRetryCreatesFreshModelWhenAbsent(t *testing.T) {
	store := New(openTestDB(t))
	ctx := context.Background()

	var window [12]float64
	for i := range window {
		window[i] = float64(i) * 0.1
	}

	ok, err := store.LearnWithRetry(ctx, "user-5", anomaly.KeyboardIdentity, [][12]float64{window}, func(m *anomaly.Model, w [12]float64) {
		m.LearnOne(w)
	})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := store.Load(ctx, "user-5", anomaly.KeyboardIdentity)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 1, got.FeatureWindowCount)
	require.Equal(t, 1, got.Version)
}

func TestLearnWithRetryNonBlockingLock(t *testing.T) {
	store := New(openTestDB(t))
	ctx := context.Background()
	mu := store.lockFor("user-6", anomaly.KeyboardHST)
	mu.Lock()
	defer mu.Unlock()

	ok, err := store.LearnWithRetry(ctx, "user-6", anomaly.KeyboardHST, nil, func(m *anomaly.Model, w [12]float64) {})
	require.NoError(t, err)
	require.False(t, ok)
}
