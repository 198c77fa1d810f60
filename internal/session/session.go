// Package session provides per-session conversation records and their
// persistence. A session is one run of the agentic loop; its record is
// the audit trail and is never reread by the loop during a run.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/conductor/internal/provider"
)

// Terminal outcomes for a session.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeInterrupted = "interrupted"
)

// ToolCallRecord captures one requested tool call and its governance
// outcome, whether or not it executed.
type ToolCallRecord struct {
	Tool       string                 `json:"tool"`
	Args       map[string]interface{} `json:"args,omitempty"`
	Iteration  int                    `json:"iteration"`
	Allowed    bool                   `json:"allowed"`
	DenyReason string                 `json:"deny_reason,omitempty"`
	Result     string                 `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
	DurationMs int64                  `json:"duration_ms,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Session is the persisted state of one agentic loop run.
type Session struct {
	ID           string             `json:"id"`
	Role         string             `json:"role"`
	StageType    string             `json:"stage_type,omitempty"`
	ChainID      string             `json:"chain_id,omitempty"`
	TaskID       string             `json:"task_id,omitempty"`
	WorkflowID   string             `json:"workflow_id,omitempty"`
	NestingDepth int                `json:"nesting_depth"`
	Messages     []provider.Message `json:"messages"`
	ToolCalls    []ToolCallRecord   `json:"tool_calls"`
	TokenUsage   provider.Usage     `json:"token_usage"`
	Iterations   int                `json:"iterations"`
	Outcome      string             `json:"outcome,omitempty"`
	StopReason   string             `json:"stop_reason,omitempty"`
	Error        string             `json:"error,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`

	mu sync.Mutex
}

// AppendMessage records a conversation message in order.
func (s *Session) AppendMessage(msg provider.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
}

// AppendToolCall records a tool call and its governance outcome.
func (s *Session) AppendToolCall(rec ToolCallRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	s.ToolCalls = append(s.ToolCalls, rec)
	s.UpdatedAt = time.Now()
}

// AddUsage accumulates token usage from one model turn.
func (s *Session) AddUsage(u provider.Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TokenUsage.Add(u)
	s.UpdatedAt = time.Now()
}

// Store persists session records.
type Store interface {
	Save(sess *Session) error
	Load(id string) (*Session, error)
	List() ([]string, error)
}

// Manager creates and persists sessions through a Store.
type Manager struct {
	store Store
}

// NewManager wraps a store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Create starts a new session record and persists it immediately.
func (m *Manager) Create(role string, nestingDepth int) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:           uuid.NewString(),
		Role:         role,
		NestingDepth: nestingDepth,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.Save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Update persists the session's current state.
func (m *Manager) Update(sess *Session) error {
	return m.store.Save(sess)
}

// Get loads a session by id.
func (m *Manager) Get(id string) (*Session, error) {
	return m.store.Load(id)
}

// List returns the ids of all persisted sessions.
func (m *Manager) List() ([]string, error) {
	return m.store.List()
}

// FileStore persists one JSON file per session.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the full session record atomically.
func (s *FileStore) Save(sess *Session) error {
	sess.mu.Lock()
	data, err := json.MarshalIndent(sess, "", "  ")
	sess.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	path := filepath.Join(s.dir, sess.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads a session record by id.
func (s *FileStore) Load(id string) (*Session, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", id, err)
	}
	return &sess, nil
}

// List returns all session ids in the store.
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
