package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists one JSON file per workflow. Saves are atomic so a
// failed transition never leaves a half-written record behind.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workflow directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the full workflow record atomically.
func (s *FileStore) Save(w *Workflow) error {
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}
	path := filepath.Join(s.dir, w.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write workflow file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads a workflow by id.
func (s *FileStore) Load(id string) (*Workflow, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow %s: %w", id, err)
	}
	var w Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse workflow %s: %w", id, err)
	}
	return &w, nil
}

// List returns the ids of all persisted workflows.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, name[:len(name)-len(".json")])
	}
	return ids, nil
}
