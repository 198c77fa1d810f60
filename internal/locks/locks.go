// Package locks provides advisory file-scope locking for work chains.
// Locks are held over glob patterns, not concrete files: they prevent two
// chains from intending to touch overlapping scopes, they are not a
// filesystem-level mutex.
package locks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/conductor/internal/globs"
)

// DefaultTTL is how long an acquired lock lives without an Extend.
const DefaultTTL = 24 * time.Hour

// FileLock is one chain's claim over a set of file patterns.
type FileLock struct {
	Files      []string  `json:"files"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the lock's TTL has passed.
func (l FileLock) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// lockFile is the on-disk table of all held locks.
type lockFile struct {
	Version int                 `json:"version"`
	Chains  map[string]FileLock `json:"chains"`
}

// Conflict describes an overlap between a requested pattern and a held one.
type Conflict struct {
	ChainID     string `json:"chain_id"`
	HeldPattern string `json:"held_pattern"`
	Requested   string `json:"requested_pattern"`
}

// AcquireResult reports the outcome of an acquisition attempt.
type AcquireResult struct {
	OK               bool
	ConflictChain    string
	ConflictPatterns []string // [requested, held] for the first overlap found
}

// Coordinator manages the lock table at a single path. All operations
// read-modify-write the full table; expiry is lazy, done on every read.
type Coordinator struct {
	path   string
	ttl    time.Duration
	logger *logging.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTTL overrides the default lock lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Coordinator) { c.ttl = ttl }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a coordinator persisting to the given path.
func NewCoordinator(path string, opts ...Option) *Coordinator {
	c := &Coordinator{
		path:   path,
		ttl:    DefaultTTL,
		logger: logging.New().WithComponent("locks"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Acquire claims the given patterns for a chain. Re-acquisition by the
// same chain replaces its lock and is never a conflict. On overlap with
// another chain, nothing is acquired and the first conflict is reported.
func (c *Coordinator) Acquire(chainID string, patterns []string, owner string) (AcquireResult, error) {
	if chainID == "" {
		return AcquireResult{}, fmt.Errorf("chain id is required")
	}
	if len(patterns) == 0 {
		return AcquireResult{}, fmt.Errorf("at least one file pattern is required")
	}
	for _, p := range patterns {
		if _, err := globs.Compile(p); err != nil {
			return AcquireResult{}, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	table, err := c.load()
	if err != nil {
		return AcquireResult{}, err
	}

	for otherID, held := range table.Chains {
		if otherID == chainID {
			continue
		}
		for _, requested := range patterns {
			for _, heldPattern := range held.Files {
				if globs.Overlaps(requested, heldPattern) {
					c.logger.Warn("lock conflict", map[string]interface{}{
						"chain":     chainID,
						"held_by":   otherID,
						"requested": requested,
						"held":      heldPattern,
					})
					return AcquireResult{
						OK:               false,
						ConflictChain:    otherID,
						ConflictPatterns: []string{requested, heldPattern},
					}, nil
				}
			}
		}
	}

	now := c.now()
	table.Chains[chainID] = FileLock{
		Files:      patterns,
		Owner:      owner,
		AcquiredAt: now,
		ExpiresAt:  now.Add(c.ttl),
	}
	if err := c.save(table); err != nil {
		return AcquireResult{}, err
	}
	c.logger.Info("lock acquired", map[string]interface{}{
		"chain":    chainID,
		"patterns": patterns,
		"owner":    owner,
	})
	return AcquireResult{OK: true}, nil
}

// Release drops a chain's lock. Returns false if the chain held nothing.
func (c *Coordinator) Release(chainID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	table, err := c.load()
	if err != nil {
		return false, err
	}
	if _, ok := table.Chains[chainID]; !ok {
		return false, nil
	}
	delete(table.Chains, chainID)
	if err := c.save(table); err != nil {
		return false, err
	}
	c.logger.Info("lock released", map[string]interface{}{"chain": chainID})
	return true, nil
}

// Extend refreshes a chain's lock expiry. A zero duration uses the
// coordinator's TTL. Returns false if the chain holds no lock.
func (c *Coordinator) Extend(chainID string, d time.Duration) (bool, error) {
	if d <= 0 {
		d = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	table, err := c.load()
	if err != nil {
		return false, err
	}
	lock, ok := table.Chains[chainID]
	if !ok {
		return false, nil
	}
	lock.ExpiresAt = c.now().Add(d)
	table.Chains[chainID] = lock
	if err := c.save(table); err != nil {
		return false, err
	}
	return true, nil
}

// IsFileLocked reports whether any held pattern matches the given path,
// and which chain holds it.
func (c *Coordinator) IsFileLocked(path string) (bool, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	table, err := c.load()
	if err != nil {
		return false, "", err
	}
	for chainID, held := range table.Chains {
		for _, pattern := range held.Files {
			if globs.Match(pattern, path) {
				return true, chainID, nil
			}
		}
	}
	return false, "", nil
}

// CheckScopeConflicts reports every held pattern that overlaps any of the
// requested patterns, without acquiring anything.
func (c *Coordinator) CheckScopeConflicts(patterns []string) ([]Conflict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	table, err := c.load()
	if err != nil {
		return nil, err
	}
	var conflicts []Conflict
	for chainID, held := range table.Chains {
		for _, requested := range patterns {
			for _, heldPattern := range held.Files {
				if globs.Overlaps(requested, heldPattern) {
					conflicts = append(conflicts, Conflict{
						ChainID:     chainID,
						HeldPattern: heldPattern,
						Requested:   requested,
					})
				}
			}
		}
	}
	return conflicts, nil
}

// Held returns a copy of the current lock table, expired entries purged.
func (c *Coordinator) Held() (map[string]FileLock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	table, err := c.load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]FileLock, len(table.Chains))
	for id, lock := range table.Chains {
		out[id] = lock
	}
	return out, nil
}

// load reads the lock table and purges expired entries. There is no
// background sweeper; expiry happens here.
func (c *Coordinator) load() (*lockFile, error) {
	table := &lockFile{Version: 1, Chains: make(map[string]FileLock)}
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return table, nil
		}
		return nil, fmt.Errorf("failed to read lock file: %w", err)
	}
	if err := json.Unmarshal(data, table); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	if table.Chains == nil {
		table.Chains = make(map[string]FileLock)
	}
	now := c.now()
	purged := false
	for id, lock := range table.Chains {
		if lock.Expired(now) {
			delete(table.Chains, id)
			purged = true
			c.logger.Debug("purged expired lock", map[string]interface{}{"chain": id})
		}
	}
	if purged {
		if err := c.save(table); err != nil {
			return nil, err
		}
	}
	return table, nil
}

// save writes the full table atomically via a temp file and rename.
func (c *Coordinator) save(table *lockFile) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock table: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return os.Rename(tmp, c.path)
}
