// Package engine implements the embedded hierarchical document store.
package engine

import (
	"github.com/celerix-dev/celerix-telemetry/pkg/sdk"
)

// Standard errors for the engine. They alias the SDK errors so callers can
// match with errors.Is regardless of which backend they talk to.
var (
	ErrDocumentNotFound = sdk.ErrDocumentNotFound
	ErrInvalidPath      = sdk.ErrInvalidPath
	ErrBatchTooLarge    = sdk.ErrBatchTooLarge
	ErrBatchCommitted   = sdk.ErrBatchCommitted
)

// partitionOf returns the unit of persistence for a collection: the root
// collection itself ("sensor-data") or the root document that owns a
// sub-collection ("users/u1").
func partitionOf(segments []string) string {
	if len(segments) == 1 {
		return segments[0]
	}
	return sdk.Join(segments[0], segments[1])
}

var _ sdk.DocumentStore = (*DocStore)(nil)
