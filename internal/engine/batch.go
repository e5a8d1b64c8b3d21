package engine

import (
	"context"
	"fmt"

	"github.com/celerix-dev/celerix-telemetry/pkg/schema"
	"github.com/celerix-dev/celerix-telemetry/pkg/sdk"
)

type stagedUpdate struct {
	path   string
	fields map[string]any
}

// Batch stages updates against a DocStore and applies them under a single
// write lock, so readers see either none or all of them.
type Batch struct {
	store     *DocStore
	updates   []stagedUpdate
	committed bool
}

// Batch starts a new atomic batch.
func (s *DocStore) Batch() sdk.WriteBatch {
	return &Batch{store: s}
}

func (b *Batch) Update(docPath string, fields map[string]any) {
	b.updates = append(b.updates, stagedUpdate{path: docPath, fields: fields})
}

func (b *Batch) Len() int { return len(b.updates) }

// Commit validates every staged update before touching any document.
// A missing target or an encoding failure aborts the whole batch.
func (b *Batch) Commit(ctx context.Context) error {
	if b.committed {
		return ErrBatchCommitted
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(b.updates) > sdk.MaxBatchWrites {
		return fmt.Errorf("%w: %d updates", ErrBatchTooLarge, len(b.updates))
	}
	if len(b.updates) == 0 {
		b.committed = true
		return nil
	}

	type resolved struct {
		partition, collection, id string
		fields                    map[string]any
	}
	plan := make([]resolved, 0, len(b.updates))
	for _, u := range b.updates {
		partition, collection, id, err := locate(u.path)
		if err != nil {
			return err
		}
		fields, err := schema.Normalize(u.fields)
		if err != nil {
			return fmt.Errorf("encode fields for %s: %w", u.path, err)
		}
		plan = append(plan, resolved{partition, collection, id, fields})
	}

	s := b.store
	s.mu.Lock()
	for i, r := range plan {
		if _, ok := s.collection(r.partition, r.collection, false)[r.id]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, b.updates[i].path)
		}
	}

	touched := make(map[string]bool)
	for _, r := range plan {
		doc := s.collection(r.partition, r.collection, false)[r.id]
		for k, v := range r.fields {
			doc[k] = v
		}
		touched[r.partition] = true
	}
	type pending struct {
		seq  uint64
		data PartitionData
	}
	snapshots := make(map[string]pending, len(touched))
	for p := range touched {
		data, seq := s.snapshot(p)
		snapshots[p] = pending{seq: seq, data: data}
	}
	s.mu.Unlock()

	b.committed = true
	for p, snap := range snapshots {
		s.persistAsync(p, snap.seq, snap.data)
	}
	return nil
}
