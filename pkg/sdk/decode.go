package sdk

import (
	"context"
	"encoding/json"
)

// --- Generics Support (Go 1.18+) ---

// Decode converts raw document fields into a typed value.
// Fields are re-marshaled through JSON, so struct tags apply.
func Decode[T any](data map[string]any) (T, error) {
	var target T
	bytes, err := json.Marshal(data)
	if err != nil {
		return target, err
	}
	err = json.Unmarshal(bytes, &target)
	return target, err
}

// Get retrieves a document and decodes it into T.
func Get[T any](ctx context.Context, r DocumentReader, docPath string) (T, error) {
	var target T
	data, err := r.Get(ctx, docPath)
	if err != nil {
		return target, err
	}
	return Decode[T](data)
}
