// Package chain defines the task/chain lifecycle contract the runtime
// calls into, plus a file-backed reference implementation so the CLI can
// run without an external tracker.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Task statuses.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskComplete   = "complete"
	TaskApproved   = "approved"
	TaskRework     = "rework"
)

// Chain statuses.
const (
	ChainActive   = "active"
	ChainComplete = "complete"
)

// Task is one unit of work inside a chain.
type Task struct {
	ID          string     `json:"id"`
	ChainID     string     `json:"chain_id"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Status summarizes a chain.
type Status struct {
	ChainID   string `json:"chain_id"`
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
}

// Lifecycle is the external collaborator contract. The runtime invokes
// these from tool executors and workflow transition hooks; it does not own
// task or chain persistence.
type Lifecycle interface {
	StartTask(ctx context.Context, taskID string) error
	CompleteTask(ctx context.Context, taskID string) error
	ApproveTask(ctx context.Context, taskID string) error
	ReworkTask(ctx context.Context, taskID string, reason string) error
	GetTasksForChain(ctx context.Context, chainID string) ([]Task, error)
	GetChainStatus(ctx context.Context, chainID string) (Status, error)
}

// chainRecord is the on-disk form of one chain.
type chainRecord struct {
	ChainID   string    `json:"chain_id"`
	Status    string    `json:"status"`
	Tasks     []Task    `json:"tasks"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileStore is a Lifecycle backed by one JSON file per chain. Completing
// the last task of a chain marks the chain complete.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create chain directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// AddTask registers a new pending task on a chain, creating the chain
// record if needed.
func (s *FileStore) AddTask(chainID, taskID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(chainID)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &chainRecord{ChainID: chainID, Status: ChainActive}
	}
	for _, t := range rec.Tasks {
		if t.ID == taskID {
			return fmt.Errorf("task %s already exists on chain %s", taskID, chainID)
		}
	}
	rec.Tasks = append(rec.Tasks, Task{ID: taskID, ChainID: chainID, Title: title, Status: TaskPending})
	rec.Status = ChainActive
	return s.save(rec)
}

func (s *FileStore) StartTask(ctx context.Context, taskID string) error {
	return s.transition(taskID, func(t *Task) error {
		now := time.Now()
		t.Status = TaskInProgress
		t.StartedAt = &now
		return nil
	})
}

func (s *FileStore) CompleteTask(ctx context.Context, taskID string) error {
	return s.transition(taskID, func(t *Task) error {
		now := time.Now()
		t.Status = TaskComplete
		t.CompletedAt = &now
		return nil
	})
}

func (s *FileStore) ApproveTask(ctx context.Context, taskID string) error {
	return s.transition(taskID, func(t *Task) error {
		if t.Status != TaskComplete {
			return fmt.Errorf("task %s is %s, only complete tasks can be approved", t.ID, t.Status)
		}
		t.Status = TaskApproved
		return nil
	})
}

func (s *FileStore) ReworkTask(ctx context.Context, taskID string, reason string) error {
	return s.transition(taskID, func(t *Task) error {
		t.Status = TaskRework
		t.CompletedAt = nil
		return nil
	})
}

func (s *FileStore) GetTasksForChain(ctx context.Context, chainID string) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(chainID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return append([]Task(nil), rec.Tasks...), nil
}

func (s *FileStore) GetChainStatus(ctx context.Context, chainID string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(chainID)
	if err != nil {
		return Status{}, err
	}
	if rec == nil {
		return Status{}, fmt.Errorf("unknown chain: %s", chainID)
	}
	st := Status{ChainID: chainID, Status: rec.Status, Total: len(rec.Tasks)}
	for _, t := range rec.Tasks {
		if t.Status == TaskComplete || t.Status == TaskApproved {
			st.Completed++
		}
	}
	return st, nil
}

// transition applies fn to the named task wherever it lives and persists
// the enclosing chain, recomputing chain completion.
func (s *FileStore) transition(taskID string, fn func(*Task) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		rec, err := s.load(chainIDFromFile(entry.Name()))
		if err != nil || rec == nil {
			continue
		}
		for i := range rec.Tasks {
			if rec.Tasks[i].ID != taskID {
				continue
			}
			if err := fn(&rec.Tasks[i]); err != nil {
				return err
			}
			rec.Status = chainStatusOf(rec.Tasks)
			return s.save(rec)
		}
	}
	return fmt.Errorf("unknown task: %s", taskID)
}

func chainStatusOf(tasks []Task) string {
	if len(tasks) == 0 {
		return ChainActive
	}
	for _, t := range tasks {
		if t.Status != TaskComplete && t.Status != TaskApproved {
			return ChainActive
		}
	}
	return ChainComplete
}

func chainIDFromFile(name string) string {
	return name[:len(name)-len(".json")]
}

func (s *FileStore) load(chainID string) (*chainRecord, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, chainID+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var rec chainRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse chain record: %w", err)
	}
	return &rec, nil
}

func (s *FileStore) save(rec *chainRecord) error {
	rec.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, rec.ChainID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
