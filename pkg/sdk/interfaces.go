package sdk

import (
	"context"
	"errors"
)

var (
	// ErrDocumentNotFound is returned when a requested document does not exist.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrInvalidPath is returned when a path is not a valid collection or document path.
	ErrInvalidPath = errors.New("invalid path")
	// ErrBatchTooLarge is returned when a batch stages more than MaxBatchWrites updates.
	ErrBatchTooLarge = errors.New("batch exceeds maximum write count")
	// ErrBatchCommitted is returned when a batch is committed twice.
	ErrBatchCommitted = errors.New("batch already committed")
)

// MaxBatchWrites caps the number of updates a single atomic batch may carry.
// It matches the Firestore limit so every backend behaves the same.
const MaxBatchWrites = 500

// Document is a stored document together with its location.
type Document struct {
	ID   string         `json:"id"`
	Path string         `json:"path"`
	Data map[string]any `json:"data"`
}

// --- Functional Interfaces (Interface Segregation) ---

// DocumentReader defines the read operations for the store.
type DocumentReader interface {
	// Get returns the fields of the document at docPath.
	Get(ctx context.Context, docPath string) (map[string]any, error)
	// List returns every document of a collection, ordered by ID.
	List(ctx context.Context, collectionPath string) ([]Document, error)
}

// DocumentWriter defines the write operations for the store.
type DocumentWriter interface {
	// Add creates a new document with a generated ID and returns the ID.
	Add(ctx context.Context, collectionPath string, data map[string]any) (string, error)
	// Merge overwrites the given top-level fields of an existing document,
	// leaving every other field untouched.
	Merge(ctx context.Context, docPath string, fields map[string]any) error
}

// BatchWriter creates atomic multi-document batches.
type BatchWriter interface {
	Batch() WriteBatch
}

// WriteBatch accumulates field updates and applies them all or none.
type WriteBatch interface {
	// Update stages a merge of fields into the existing document at docPath.
	Update(docPath string, fields map[string]any)
	// Len returns the number of staged updates.
	Len() int
	// Commit applies every staged update as one unit.
	Commit(ctx context.Context) error
}

// --- Composite Interfaces ---

// DocumentStore is the primary interface for interacting with the data store.
// The embedded engine, the remote client and the Firestore backend all implement it.
type DocumentStore interface {
	DocumentReader
	DocumentWriter
	BatchWriter
}
