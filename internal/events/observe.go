package events

import (
	"context"

	"github.com/celerix-dev/celerix-telemetry/pkg/schema"
	"github.com/celerix-dev/celerix-telemetry/pkg/sdk"
	"go.uber.org/zap"
)

// ObservedStore publishes a Created event after every successful Add to a
// watched collection. All other calls go straight to the wrapped store.
type ObservedStore struct {
	sdk.DocumentStore
	pub     Publisher
	watched map[string]struct{}
	logger  *zap.Logger
}

var _ sdk.DocumentStore = (*ObservedStore)(nil)

// Observe wraps store so creations in the given collections reach pub.
func Observe(store sdk.DocumentStore, pub Publisher, logger *zap.Logger, collections ...string) *ObservedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	watched := make(map[string]struct{}, len(collections))
	for _, c := range collections {
		if clean, err := sdk.CleanCollection(c); err == nil {
			watched[clean] = struct{}{}
		}
	}
	return &ObservedStore{DocumentStore: store, pub: pub, watched: watched, logger: logger}
}

// Add writes the document and then publishes it. A publish failure does not
// undo the write; it is logged and the document stays unenriched.
func (s *ObservedStore) Add(ctx context.Context, collectionPath string, data map[string]any) (string, error) {
	id, err := s.DocumentStore.Add(ctx, collectionPath, data)
	if err != nil {
		return "", err
	}

	collection, err := sdk.CleanCollection(collectionPath)
	if err != nil {
		return id, nil
	}
	if _, ok := s.watched[collection]; !ok {
		return id, nil
	}

	snapshot, err := schema.Normalize(data)
	if err != nil {
		snapshot = map[string]any{}
	}
	ev := Created{
		Path:       sdk.Join(collection, id),
		Collection: collection,
		ID:         id,
		Data:       snapshot,
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.logger.Error("Failed to publish creation event",
			zap.String("path", ev.Path),
			zap.Error(err),
		)
	}
	return id, nil
}
