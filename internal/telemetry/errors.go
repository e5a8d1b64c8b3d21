// Package telemetry implements sensor batch ingestion: parsing, enrichment,
// record assembly, persistence, deferred enrichment and timestamp correction.
package telemetry

import (
	"errors"

	"github.com/celerix-dev/celerix-telemetry/internal/places"
)

var (
	// ErrInvalidPayload rejects an empty or malformed reading sequence before any I/O.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrMissingIdentity rejects a request without a usable user ID before any I/O.
	ErrMissingIdentity = errors.New("user ID is required")
	// ErrEnrichmentUnavailable means the places provider could not be used.
	ErrEnrichmentUnavailable = places.ErrUnavailable
	// ErrPersistenceFailure wraps every store read, write or commit failure.
	ErrPersistenceFailure = errors.New("persistence failure")
)
