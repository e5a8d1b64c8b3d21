package telemetry

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/celerix-dev/celerix-telemetry/pkg/sdk"
)

// Writer appends records to the store. Calls are not idempotent: a retried
// call creates another document.
type Writer struct {
	store sdk.DocumentWriter
}

func NewWriter(store sdk.DocumentWriter) *Writer {
	return &Writer{store: store}
}

// ValidateUserID checks that uid can name a user partition.
func ValidateUserID(uid string) error {
	if uid == "" {
		return ErrMissingIdentity
	}
	if strings.Contains(uid, "/") || strings.IndexFunc(uid, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q is not a valid user ID", ErrMissingIdentity, uid)
	}
	return nil
}

// AddPartitioned writes doc under users/{uid}/sensor-data.
func (w *Writer) AddPartitioned(ctx context.Context, uid string, doc map[string]any) (string, error) {
	if err := ValidateUserID(uid); err != nil {
		return "", err
	}
	return w.add(ctx, sdk.UserSensorData(uid), doc)
}

// AddFlat writes doc to a top-level collection.
func (w *Writer) AddFlat(ctx context.Context, collection string, doc map[string]any) (string, error) {
	return w.add(ctx, collection, doc)
}

func (w *Writer) add(ctx context.Context, collection string, doc map[string]any) (string, error) {
	id, err := w.store.Add(ctx, collection, doc)
	if err != nil {
		return "", fmt.Errorf("%w: add to %s: %w", ErrPersistenceFailure, collection, err)
	}
	return id, nil
}
