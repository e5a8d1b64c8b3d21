package engine

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/celerix-dev/celerix-telemetry/pkg/schema"
	"go.uber.org/zap"
)

// Persistence handles the disk I/O for the DocStore. Each partition lives in
// its own JSON file named after the URL-escaped partition ID.
type Persistence struct {
	DataDir string
	logger  *zap.Logger
	mu      sync.Mutex // Protects concurrent writes to the filesystem
	written map[string]uint64
}

// NewPersistence initializes a persistence handler.
func NewPersistence(dir string, logger *zap.Logger) (*Persistence, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persistence{DataDir: dir, logger: logger, written: make(map[string]uint64)}, nil
}

// SavePartition writes a single partition's data to a JSON file atomically.
func (p *Persistence) SavePartition(partition string, data PartitionData) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write(partition, data)
}

// saveVersion writes a snapshot unless a newer one was already written.
func (p *Persistence) saveVersion(partition string, seq uint64, data PartitionData) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if seq <= p.written[partition] {
		return
	}
	if err := p.write(partition, data); err != nil {
		p.logger.Error("Failed to persist partition",
			zap.String("partition", partition),
			zap.Error(err),
		)
		return
	}
	p.written[partition] = seq
}

func (p *Persistence) write(partition string, data PartitionData) error {
	filePath := filepath.Join(p.DataDir, url.PathEscape(partition)+".json")
	tempPath := filePath + ".tmp"

	tree := make(map[string]any, len(data))
	for collection, docs := range data {
		encoded := make(map[string]any, len(docs))
		for id, doc := range docs {
			encoded[id] = schema.EncodeValue(doc)
		}
		tree[collection] = encoded
	}

	bytes, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal partition %s: %w", partition, err)
	}

	// Write to a temporary file first, then rename over the old one:
	// a crash leaves either the old file or the new one, never a torn write.
	if err := os.WriteFile(tempPath, bytes, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, filePath)
}

// LoadAll returns all partition data found in the data directory.
func (p *Persistence) LoadAll() (map[string]PartitionData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	allData := make(map[string]PartitionData)

	files, err := os.ReadDir(p.DataDir)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if filepath.Ext(file.Name()) != ".json" {
			continue
		}
		partition, err := url.PathUnescape(strings.TrimSuffix(file.Name(), ".json"))
		if err != nil {
			p.logger.Warn("Skipping file with unreadable partition name", zap.String("file", file.Name()))
			continue
		}

		content, err := os.ReadFile(filepath.Join(p.DataDir, file.Name()))
		if err != nil {
			p.logger.Warn("Could not read partition file", zap.String("file", file.Name()), zap.Error(err))
			continue
		}

		var raw map[string]map[string]map[string]any
		if err := json.Unmarshal(content, &raw); err != nil {
			p.logger.Warn("Could not unmarshal partition file", zap.String("file", file.Name()), zap.Error(err))
			continue
		}

		data := make(PartitionData, len(raw))
		for collection, docs := range raw {
			decodedDocs := make(map[string]map[string]any, len(docs))
			for id, doc := range docs {
				decoded, _ := schema.DecodeValue(doc).(map[string]any)
				if decoded == nil {
					decoded = map[string]any{}
				}
				decodedDocs[id] = decoded
			}
			data[collection] = decodedDocs
		}
		allData[partition] = data
	}
	return allData, nil
}
