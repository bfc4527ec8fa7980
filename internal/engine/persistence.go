package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/celerix-dev/drinklog/pkg/schema"
)

// Persistence stores each collection as a JSON file in DataDir.
type Persistence struct {
	DataDir string
	mu      sync.Mutex // Protects concurrent writes to the filesystem
	logger  *slog.Logger
}

// NewPersistence initializes a persistence handler.
func NewPersistence(dir string) (*Persistence, error) {
	// Ensure the data directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Persistence{DataDir: dir, logger: slog.Default().With("component", "persistence")}, nil
}

// SaveCollection writes a single collection to a JSON file atomically.
func (p *Persistence) SaveCollection(name string, docs []schema.Document) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	filePath := filepath.Join(p.DataDir, fmt.Sprintf("%s.json", name))
	tempPath := filePath + ".tmp"

	if docs == nil {
		docs = []schema.Document{}
	}
	bytes, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tempPath, bytes, 0644); err != nil {
		return err
	}

	// Either the old file or the new one survives a crash, never a partial write.
	return os.Rename(tempPath, filePath)
}

// LoadAll returns all collections found in the data directory.
func (p *Persistence) LoadAll() (map[string][]schema.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	allData := make(map[string][]schema.Document)

	files, err := os.ReadDir(p.DataDir)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		name := strings.TrimSuffix(file.Name(), ".json")

		content, err := os.ReadFile(filepath.Join(p.DataDir, file.Name()))
		if err != nil {
			p.logger.Warn("could not read collection file", "file", file.Name(), "error", err)
			continue
		}

		var docs []schema.Document
		if err := json.Unmarshal(content, &docs); err != nil {
			p.logger.Warn("could not unmarshal collection file", "file", file.Name(), "error", err)
			continue
		}
		allData[name] = docs
	}
	return allData, nil
}
