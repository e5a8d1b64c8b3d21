package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/celerix-dev/celerix-telemetry/pkg/schema"
	"github.com/celerix-dev/celerix-telemetry/pkg/sdk"
	"github.com/google/uuid"
)

// PartitionData holds every collection of one partition:
// [collectionPath][docID]fields.
type PartitionData = map[string]map[string]map[string]any

// DocStore is the thread-safe embedded document store.
type DocStore struct {
	mu sync.RWMutex
	// Structure: [partition][collectionPath][docID]fields
	data      map[string]PartitionData
	persister *Persistence
	wg        sync.WaitGroup
	seq       uint64 // bumped for every snapshot, guarded by mu
	newID     func() string
}

// NewDocStore initializes a store.
// It accepts existing data (from LoadAll) and an optional persister.
func NewDocStore(initialData map[string]PartitionData, p *Persistence) *DocStore {
	if initialData == nil {
		initialData = make(map[string]PartitionData)
	}
	return &DocStore{
		data:      initialData,
		persister: p,
		newID:     uuid.NewString,
	}
}

// Wait waits for all background persistence tasks to complete.
func (s *DocStore) Wait() {
	s.wg.Wait()
}

// --- Interface Implementation ---

func (s *DocStore) Add(ctx context.Context, collectionPath string, data map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	segments, err := collectionSegments(collectionPath)
	if err != nil {
		return "", err
	}
	doc, err := schema.Normalize(data)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	id := s.newID()
	partition := partitionOf(segments)
	collection := sdk.Join(segments...)

	s.mu.Lock()
	s.collection(partition, collection, true)[id] = doc
	snapshot, seq := s.snapshot(partition)
	s.mu.Unlock()

	s.persistAsync(partition, seq, snapshot)
	return id, nil
}

func (s *DocStore) Get(ctx context.Context, docPath string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	partition, collection, id, err := locate(docPath)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collection(partition, collection, false)[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, docPath)
	}
	return cloneDocument(doc), nil
}

func (s *DocStore) Merge(ctx context.Context, docPath string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	partition, collection, id, err := locate(docPath)
	if err != nil {
		return err
	}
	normalized, err := schema.Normalize(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}

	s.mu.Lock()
	doc, ok := s.collection(partition, collection, false)[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, docPath)
	}
	for k, v := range normalized {
		doc[k] = v
	}
	snapshot, seq := s.snapshot(partition)
	s.mu.Unlock()

	s.persistAsync(partition, seq, snapshot)
	return nil
}

func (s *DocStore) List(ctx context.Context, collectionPath string) ([]sdk.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	segments, err := collectionSegments(collectionPath)
	if err != nil {
		return nil, err
	}
	collection := sdk.Join(segments...)

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.collection(partitionOf(segments), collection, false)
	list := make([]sdk.Document, 0, len(docs))
	for id, doc := range docs {
		list = append(list, sdk.Document{
			ID:   id,
			Path: sdk.Join(collection, id),
			Data: cloneDocument(doc),
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// Partitions returns the IDs of every stored partition.
func (s *DocStore) Partitions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]string, 0, len(s.data))
	for p := range s.data {
		list = append(list, p)
	}
	sort.Strings(list)
	return list
}

// collection returns the documents of a collection, creating the maps when
// create is set. It MUST be called while holding s.mu.
func (s *DocStore) collection(partition, collection string, create bool) map[string]map[string]any {
	p, ok := s.data[partition]
	if !ok {
		if !create {
			return nil
		}
		p = make(PartitionData)
		s.data[partition] = p
	}
	c, ok := p[collection]
	if !ok && create {
		c = make(map[string]map[string]any)
		p[collection] = c
	}
	return c
}

// copyPartition creates a deep copy of a partition's data.
// It MUST be called while holding s.mu.Lock or s.mu.RLock.
func (s *DocStore) copyPartition(partition string) PartitionData {
	original, ok := s.data[partition]
	if !ok {
		return nil
	}

	partitionCopy := make(PartitionData, len(original))
	for collection, docs := range original {
		docsCopy := make(map[string]map[string]any, len(docs))
		for id, doc := range docs {
			docsCopy[id] = cloneDocument(doc)
		}
		partitionCopy[collection] = docsCopy
	}
	return partitionCopy
}

// snapshot copies a partition and tags the copy with a sequence number.
// It MUST be called while holding s.mu.Lock.
func (s *DocStore) snapshot(partition string) (PartitionData, uint64) {
	s.seq++
	return s.copyPartition(partition), s.seq
}

// persistAsync saves a snapshot in the background. Older snapshots that
// finish after newer ones are dropped by the persister.
func (s *DocStore) persistAsync(partition string, seq uint64, snapshot PartitionData) {
	if s.persister == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.persister.saveVersion(partition, seq, snapshot)
	}()
}

func collectionSegments(collectionPath string) ([]string, error) {
	segments, err := sdk.Split(collectionPath)
	if err != nil {
		return nil, err
	}
	if len(segments)%2 != 1 {
		return nil, fmt.Errorf("%w: %q is not a collection path", ErrInvalidPath, collectionPath)
	}
	return segments, nil
}

func locate(docPath string) (partition, collection, id string, err error) {
	collection, id, err = sdk.SplitDocument(docPath)
	if err != nil {
		return "", "", "", err
	}
	segments, _ := sdk.Split(collection)
	return partitionOf(segments), collection, id, nil
}

func cloneDocument(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneDocument(t)
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
