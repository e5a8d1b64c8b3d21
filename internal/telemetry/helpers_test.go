package telemetry

import (
	"context"
	"errors"
	"sync"

	"github.com/celerix-dev/celerix-telemetry/internal/engine"
	"github.com/celerix-dev/celerix-telemetry/internal/places"
	"github.com/celerix-dev/celerix-telemetry/pkg/schema"
	"github.com/celerix-dev/celerix-telemetry/pkg/sdk"
)

var errStoreDown = errors.New("store down")

type fakeFinder struct {
	mu     sync.Mutex
	calls  int
	result []schema.PointOfInterest
	err    error
}

func (f *fakeFinder) NearbyPlaces(ctx context.Context, lat, lon float64) ([]schema.PointOfInterest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeFinder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func unavailableFinder() *fakeFinder {
	return &fakeFinder{err: errors.Join(places.ErrUnavailable, errors.New("status 503"))}
}

// spyStore counts writes and commits going to an embedded store.
type spyStore struct {
	*engine.DocStore
	mu      sync.Mutex
	adds    int
	merges  int
	commits int
	failAdd bool
}

func newSpyStore() *spyStore {
	return &spyStore{DocStore: engine.NewDocStore(nil, nil)}
}

func (s *spyStore) Add(ctx context.Context, collectionPath string, data map[string]any) (string, error) {
	s.mu.Lock()
	s.adds++
	fail := s.failAdd
	s.mu.Unlock()
	if fail {
		return "", errStoreDown
	}
	return s.DocStore.Add(ctx, collectionPath, data)
}

func (s *spyStore) Merge(ctx context.Context, docPath string, fields map[string]any) error {
	s.mu.Lock()
	s.merges++
	s.mu.Unlock()
	return s.DocStore.Merge(ctx, docPath, fields)
}

func (s *spyStore) Batch() sdk.WriteBatch {
	return &spyBatch{WriteBatch: s.DocStore.Batch(), store: s}
}

type spyBatch struct {
	sdk.WriteBatch
	store *spyStore
}

func (b *spyBatch) Commit(ctx context.Context) error {
	b.store.mu.Lock()
	b.store.commits++
	b.store.mu.Unlock()
	return b.WriteBatch.Commit(ctx)
}
