package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/celerix-dev/celerix-telemetry/pkg/sdk"
)

func TestDocStore_AddGetMerge(t *testing.T) {
	ctx := context.Background()
	ds := NewDocStore(nil, nil)

	id, err := ds.Add(ctx, "users/u1/sensor-data", map[string]any{
		"location": map[string]any{"lat": 51.5, "lon": -0.1},
		"count":    3,
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if id == "" {
		t.Fatal("Expected a generated ID")
	}

	doc, err := ds.Get(ctx, "users/u1/sensor-data/"+id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if doc["count"] != float64(3) {
		t.Errorf("Expected count 3, got %v", doc["count"])
	}

	err = ds.Merge(ctx, "users/u1/sensor-data/"+id, map[string]any{"count": 4, "extra": "x"})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	doc, _ = ds.Get(ctx, "users/u1/sensor-data/"+id)
	if doc["count"] != float64(4) || doc["extra"] != "x" {
		t.Errorf("Merge mismatch: %v", doc)
	}
	loc := doc["location"].(map[string]any)
	if loc["lat"] != 51.5 {
		t.Errorf("Merge must not touch other fields, got %v", loc)
	}

	// Get non-existent
	_, err = ds.Get(ctx, "users/u1/sensor-data/missing")
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("Expected ErrDocumentNotFound, got %v", err)
	}

	// Merge non-existent
	err = ds.Merge(ctx, "users/u1/sensor-data/missing", map[string]any{"a": 1})
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("Expected ErrDocumentNotFound, got %v", err)
	}
}

func TestDocStore_InvalidPaths(t *testing.T) {
	ctx := context.Background()
	ds := NewDocStore(nil, nil)

	if _, err := ds.Add(ctx, "users/u1", map[string]any{}); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Add to a document path should fail, got %v", err)
	}
	if _, err := ds.Get(ctx, "users"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Get of a collection path should fail, got %v", err)
	}
	if _, err := ds.List(ctx, "users//sensor-data"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Empty segment should fail, got %v", err)
	}
}

func TestDocStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	ds := NewDocStore(nil, nil)

	id, _ := ds.Add(ctx, "sensor-data", map[string]any{"location": map[string]any{"lat": 1.0}})
	doc, _ := ds.Get(ctx, "sensor-data/"+id)
	doc["location"].(map[string]any)["lat"] = 99.0

	again, _ := ds.Get(ctx, "sensor-data/"+id)
	if again["location"].(map[string]any)["lat"] != 1.0 {
		t.Errorf("Stored document was mutated through a returned copy: %v", again)
	}
}

func TestDocStore_ListAndPartitions(t *testing.T) {
	ctx := context.Background()
	ds := NewDocStore(nil, nil)

	ds.Add(ctx, "users/u1/sensor-data", map[string]any{"n": 1})
	ds.Add(ctx, "users/u1/sensor-data", map[string]any{"n": 2})
	ds.Add(ctx, "users/u2/sensor-data", map[string]any{"n": 3})
	ds.Add(ctx, "sensor-data", map[string]any{"n": 4})

	docs, err := ds.List(ctx, "users/u1/sensor-data")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("Expected 2 documents, got %d", len(docs))
	}
	if docs[0].ID > docs[1].ID {
		t.Errorf("Expected documents ordered by ID: %s, %s", docs[0].ID, docs[1].ID)
	}
	if docs[0].Path != "users/u1/sensor-data/"+docs[0].ID {
		t.Errorf("Unexpected path %q", docs[0].Path)
	}

	empty, err := ds.List(ctx, "users/nobody/sensor-data")
	if err != nil || len(empty) != 0 {
		t.Errorf("Expected empty list, got %v, %v", empty, err)
	}

	parts := ds.Partitions()
	want := []string{"sensor-data", "users/u1", "users/u2"}
	if fmt.Sprint(parts) != fmt.Sprint(want) {
		t.Errorf("Expected partitions %v, got %v", want, parts)
	}
}

func TestDocStore_TimestampsStayTyped(t *testing.T) {
	ctx := context.Background()
	ds := NewDocStore(nil, nil)
	ts := time.UnixMilli(1_700_000_000_000).UTC()

	id, _ := ds.Add(ctx, "sensor-data", map[string]any{"time": ts})
	doc, _ := ds.Get(ctx, "sensor-data/"+id)

	got, ok := doc["time"].(time.Time)
	if !ok {
		t.Fatalf("Expected time.Time, got %T", doc["time"])
	}
	if !got.Equal(ts) {
		t.Errorf("Expected %v, got %v", ts, got)
	}
}

func TestBatch_CommitAppliesAll(t *testing.T) {
	ctx := context.Background()
	ds := NewDocStore(nil, nil)

	a, _ := ds.Add(ctx, "users/u1/sensor-data", map[string]any{"v": 1, "keep": true})
	b, _ := ds.Add(ctx, "users/u1/sensor-data", map[string]any{"v": 2})

	batch := ds.Batch()
	batch.Update("users/u1/sensor-data/"+a, map[string]any{"v": 10})
	batch.Update("users/u1/sensor-data/"+b, map[string]any{"v": 20})
	if batch.Len() != 2 {
		t.Errorf("Expected 2 staged updates, got %d", batch.Len())
	}

	if err := batch.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	docA, _ := ds.Get(ctx, "users/u1/sensor-data/"+a)
	docB, _ := ds.Get(ctx, "users/u1/sensor-data/"+b)
	if docA["v"] != float64(10) || docB["v"] != float64(20) {
		t.Errorf("Batch not applied: %v %v", docA, docB)
	}
	if docA["keep"] != true {
		t.Errorf("Batch update must not touch other fields: %v", docA)
	}

	if err := batch.Commit(ctx); !errors.Is(err, ErrBatchCommitted) {
		t.Errorf("Expected ErrBatchCommitted, got %v", err)
	}
}

func TestBatch_MissingTargetAbortsEverything(t *testing.T) {
	ctx := context.Background()
	ds := NewDocStore(nil, nil)

	a, _ := ds.Add(ctx, "users/u1/sensor-data", map[string]any{"v": 1})

	batch := ds.Batch()
	batch.Update("users/u1/sensor-data/"+a, map[string]any{"v": 10})
	batch.Update("users/u1/sensor-data/ghost", map[string]any{"v": 20})

	err := batch.Commit(ctx)
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("Expected ErrDocumentNotFound, got %v", err)
	}

	docA, _ := ds.Get(ctx, "users/u1/sensor-data/"+a)
	if docA["v"] != float64(1) {
		t.Errorf("Partial batch application: %v", docA)
	}
}

func TestBatch_TooLarge(t *testing.T) {
	ctx := context.Background()
	ds := NewDocStore(nil, nil)

	batch := ds.Batch()
	for i := 0; i <= sdk.MaxBatchWrites; i++ {
		batch.Update(fmt.Sprintf("sensor-data/d%d", i), map[string]any{"v": i})
	}
	if err := batch.Commit(ctx); !errors.Is(err, ErrBatchTooLarge) {
		t.Errorf("Expected ErrBatchTooLarge, got %v", err)
	}
}

func TestPersistence(t *testing.T) {
	tmpDir := t.TempDir()

	p, err := NewPersistence(tmpDir, nil)
	if err != nil {
		t.Fatalf("NewPersistence failed: %v", err)
	}

	ts := time.UnixMilli(1_700_000_000_000).UTC()
	data := PartitionData{
		"users/user1/sensor-data": {
			"doc1": {"time": ts, "nearbyDevices": []any{"AA:BB"}},
		},
	}

	if err := p.SavePartition("users/user1", data); err != nil {
		t.Fatalf("SavePartition failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "users%2Fuser1.json")); os.IsNotExist(err) {
		t.Fatal("Partition file was not created")
	}

	allData, err := p.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(allData) != 1 {
		t.Errorf("Expected 1 partition, got %d", len(allData))
	}

	doc := allData["users/user1"]["users/user1/sensor-data"]["doc1"]
	got, ok := doc["time"].(time.Time)
	if !ok || !got.Equal(ts) {
		t.Errorf("Loaded time mismatch: %#v", doc["time"])
	}
}

func TestPersistence_SkipsCorruptFiles(t *testing.T) {
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "broken.json"), []byte("{not json"), 0644)

	p, _ := NewPersistence(tmpDir, nil)
	allData, err := p.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(allData) != 0 {
		t.Errorf("Expected corrupt file to be skipped, got %v", allData)
	}
}

func TestDocStore_Persistence(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()

	p, _ := NewPersistence(tmpDir, nil)
	ds := NewDocStore(nil, p)

	id, err := ds.Add(ctx, "users/p1/sensor-data", map[string]any{"v": "one"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := ds.Merge(ctx, "users/p1/sensor-data/"+id, map[string]any{"v": "two"}); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	ds.Wait() // Wait for background persistence

	allData, _ := p.LoadAll()
	ds2 := NewDocStore(allData, p)

	doc, err := ds2.Get(ctx, "users/p1/sensor-data/"+id)
	if err != nil {
		t.Fatalf("Get on new store failed: %v", err)
	}
	if doc["v"] != "two" {
		t.Errorf("Expected latest snapshot on disk, got %v", doc["v"])
	}
}

func TestDocStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	ds := NewDocStore(nil, nil)
	const (
		numGoroutines = 10
		numOps        = 100
	)
	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines*numOps)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			collection := fmt.Sprintf("users/u%d/sensor-data", n%3)
			for j := 0; j < numOps; j++ {
				id, err := ds.Add(ctx, collection, map[string]any{"j": j})
				if err != nil {
					errs <- err
					continue
				}
				doc, err := ds.Get(ctx, collection+"/"+id)
				if err != nil || doc["j"] != float64(j) {
					errs <- fmt.Errorf("expected %d, got %v, err %v", j, doc["j"], err)
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
