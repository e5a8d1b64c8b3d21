// Package cloudstore implements sdk.DocumentStore on Google Cloud Firestore.
package cloudstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/celerix-dev/celerix-telemetry/pkg/sdk"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Store is a Firestore-backed document store. Firestore keeps timestamps
// native, so no tagging is needed on this path.
type Store struct {
	client *firestore.Client
}

var _ sdk.DocumentStore = (*Store)(nil)

// New connects to the project. FIRESTORE_EMULATOR_HOST is honoured by the
// client library.
func New(ctx context.Context, projectID string) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) collection(path string) (*firestore.CollectionRef, string, error) {
	clean, err := sdk.CleanCollection(path)
	if err != nil {
		return nil, "", err
	}
	ref := s.client.Collection(clean)
	if ref == nil {
		return nil, "", fmt.Errorf("%w: %q", sdk.ErrInvalidPath, path)
	}
	return ref, clean, nil
}

func (s *Store) doc(path string) (*firestore.DocumentRef, error) {
	if !sdk.IsDocument(path) {
		return nil, fmt.Errorf("%w: %q is not a document path", sdk.ErrInvalidPath, path)
	}
	ref := s.client.Doc(path)
	if ref == nil {
		return nil, fmt.Errorf("%w: %q", sdk.ErrInvalidPath, path)
	}
	return ref, nil
}

func (s *Store) Add(ctx context.Context, collectionPath string, data map[string]any) (string, error) {
	coll, _, err := s.collection(collectionPath)
	if err != nil {
		return "", err
	}
	ref, _, err := coll.Add(ctx, data)
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

func (s *Store) Get(ctx context.Context, docPath string) (map[string]any, error) {
	ref, err := s.doc(docPath)
	if err != nil {
		return nil, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return nil, mapError(err, docPath)
	}
	return snap.Data(), nil
}

// Merge replaces the given top-level fields. It fails with
// sdk.ErrDocumentNotFound instead of creating the document.
func (s *Store) Merge(ctx context.Context, docPath string, fields map[string]any) error {
	ref, err := s.doc(docPath)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	if _, err := ref.Update(ctx, updates(fields)); err != nil {
		return mapError(err, docPath)
	}
	return nil
}

func (s *Store) List(ctx context.Context, collectionPath string) ([]sdk.Document, error) {
	coll, clean, err := s.collection(collectionPath)
	if err != nil {
		return nil, err
	}
	snaps, err := coll.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}

	docs := make([]sdk.Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, sdk.Document{
			ID:   snap.Ref.ID,
			Path: sdk.Join(clean, snap.Ref.ID),
			Data: snap.Data(),
		})
	}
	return docs, nil
}

func (s *Store) Batch() sdk.WriteBatch {
	return &batch{store: s}
}

type batch struct {
	store     *Store
	updates   []sdk.BatchUpdate
	committed bool
}

func (b *batch) Update(docPath string, fields map[string]any) {
	b.updates = append(b.updates, sdk.BatchUpdate{Path: docPath, Fields: fields})
}

func (b *batch) Len() int { return len(b.updates) }

func (b *batch) Commit(ctx context.Context) error {
	if b.committed {
		return sdk.ErrBatchCommitted
	}
	if len(b.updates) > sdk.MaxBatchWrites {
		return fmt.Errorf("%w: %d updates", sdk.ErrBatchTooLarge, len(b.updates))
	}
	if len(b.updates) == 0 {
		b.committed = true
		return nil
	}

	wb := b.store.client.Batch()
	for _, u := range b.updates {
		ref, err := b.store.doc(u.Path)
		if err != nil {
			return err
		}
		wb.Update(ref, updates(u.Fields))
	}
	if _, err := wb.Commit(ctx); err != nil {
		return mapError(err, "batch")
	}
	b.committed = true
	return nil
}

// updates addresses each key as a single-segment field path, so keys with
// dots are not split.
func updates(fields map[string]any) []firestore.Update {
	out := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		out = append(out, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
	}
	return out
}

func mapError(err error, path string) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", sdk.ErrDocumentNotFound, path)
	}
	return err
}
