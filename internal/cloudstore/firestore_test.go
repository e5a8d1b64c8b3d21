package cloudstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/celerix-dev/celerix-telemetry/pkg/sdk"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need the Firestore emulator:
//
//	gcloud emulators firestore start --host-port=localhost:8086
//	FIRESTORE_EMULATOR_HOST=localhost:8086 go test ./internal/cloudstore/
func newEmulatorStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	store, err := New(context.Background(), "celerix-telemetry-test")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_AddGetMerge(t *testing.T) {
	store := newEmulatorStore(t)
	ctx := context.Background()
	coll := sdk.UserSensorData("u-" + uuid.NewString())
	ts := time.UnixMilli(1_700_000_000_000).UTC()

	id, err := store.Add(ctx, coll, map[string]any{
		"location":      map[string]any{"lat": 51.5, "lon": -0.1},
		"nearbyDevices": []any{"AA:BB"},
		"time":          ts,
	})
	require.NoError(t, err)

	doc, err := store.Get(ctx, coll+"/"+id)
	require.NoError(t, err)
	got, ok := doc["time"].(time.Time)
	require.True(t, ok)
	assert.True(t, got.Equal(ts))

	require.NoError(t, store.Merge(ctx, coll+"/"+id, map[string]any{"nearbyAttractionsCount": 0}))
	doc, err = store.Get(ctx, coll+"/"+id)
	require.NoError(t, err)
	assert.Contains(t, doc, "nearbyDevices")
	assert.Contains(t, doc, "nearbyAttractionsCount")

	_, err = store.Get(ctx, coll+"/missing")
	assert.ErrorIs(t, err, sdk.ErrDocumentNotFound)
	assert.ErrorIs(t, store.Merge(ctx, coll+"/missing", map[string]any{"a": 1}), sdk.ErrDocumentNotFound)
}

func TestStore_ListAndBatch(t *testing.T) {
	store := newEmulatorStore(t)
	ctx := context.Background()
	coll := sdk.UserSensorData("u-" + uuid.NewString())
	ts := time.UnixMilli(1_700_000_000_000).UTC()

	for i := 0; i < 3; i++ {
		_, err := store.Add(ctx, coll, map[string]any{"time": ts})
		require.NoError(t, err)
	}

	docs, err := store.List(ctx, coll)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, coll+"/"+docs[0].ID, docs[0].Path)

	batch := store.Batch()
	for _, d := range docs {
		batch.Update(d.Path, map[string]any{"time": ts.Add(-time.Hour)})
	}
	require.NoError(t, batch.Commit(ctx))

	docs, err = store.List(ctx, coll)
	require.NoError(t, err)
	for _, d := range docs {
		assert.True(t, d.Data["time"].(time.Time).Equal(ts.Add(-time.Hour)))
	}
}

func TestStore_InvalidPaths(t *testing.T) {
	store := &Store{}
	ctx := context.Background()

	_, err := store.Add(ctx, "users/u1", map[string]any{})
	assert.ErrorIs(t, err, sdk.ErrInvalidPath)
	_, err = store.Get(ctx, "users")
	assert.ErrorIs(t, err, sdk.ErrInvalidPath)
	assert.ErrorIs(t, store.Merge(ctx, "a/b/c", map[string]any{"x": 1}), sdk.ErrInvalidPath)
}

func TestBatch_TooLargeRefusedLocally(t *testing.T) {
	store := &Store{}
	b := store.Batch()
	for i := 0; i <= sdk.MaxBatchWrites; i++ {
		b.Update("sensor-data/x", map[string]any{"v": i})
	}
	assert.ErrorIs(t, b.Commit(context.Background()), sdk.ErrBatchTooLarge)
}
