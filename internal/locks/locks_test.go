package locks

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestCoordinator(t *testing.T, opts ...Option) *Coordinator {
	t.Helper()
	return NewCoordinator(filepath.Join(t.TempDir(), "locks.json"), opts...)
}

func TestAcquire_Basic(t *testing.T) {
	c := newTestCoordinator(t)

	res, err := c.Acquire("chain-a", []string{"src/**/*.ts"}, "alice")
	if err != nil {
		t.Fatalf("acquire error: %v", err)
	}
	if !res.OK {
		t.Fatal("first acquisition should succeed")
	}

	held, err := c.Held()
	if err != nil {
		t.Fatalf("held error: %v", err)
	}
	lock, ok := held["chain-a"]
	if !ok {
		t.Fatal("chain-a should hold a lock")
	}
	if lock.Owner != "alice" {
		t.Errorf("expected owner alice, got %s", lock.Owner)
	}
	if !lock.ExpiresAt.After(lock.AcquiredAt) {
		t.Error("lock should expire after acquisition time")
	}
}

func TestAcquire_OverlapConflict(t *testing.T) {
	c := newTestCoordinator(t)

	if res, _ := c.Acquire("chain-a", []string{"src/**/*.ts"}, "alice"); !res.OK {
		t.Fatal("chain-a acquisition should succeed")
	}

	// Materialized subset of chain-a's scope.
	res, err := c.Acquire("chain-b", []string{"src/utils/foo.ts"}, "bob")
	if err != nil {
		t.Fatalf("acquire error: %v", err)
	}
	if res.OK {
		t.Fatal("overlapping acquisition should fail")
	}
	if res.ConflictChain != "chain-a" {
		t.Errorf("expected conflict with chain-a, got %s", res.ConflictChain)
	}
	if len(res.ConflictPatterns) != 2 {
		t.Fatalf("expected requested+held pattern pair, got %v", res.ConflictPatterns)
	}

	// Nothing partially acquired.
	held, _ := c.Held()
	if _, ok := held["chain-b"]; ok {
		t.Error("failed acquisition must not leave a lock behind")
	}
}

func TestAcquire_NestedScopes(t *testing.T) {
	c := newTestCoordinator(t)

	if res, _ := c.Acquire("chain-a", []string{"src/**"}, "alice"); !res.OK {
		t.Fatal("chain-a acquisition should succeed")
	}
	res, _ := c.Acquire("chain-b", []string{"src/utils/**/*.ts"}, "bob")
	if res.OK {
		t.Fatal("nested scope should conflict")
	}
}

func TestAcquire_DisjointScopes(t *testing.T) {
	c := newTestCoordinator(t)

	if res, _ := c.Acquire("chain-a", []string{"src/**"}, "alice"); !res.OK {
		t.Fatal("chain-a acquisition should succeed")
	}
	res, err := c.Acquire("chain-b", []string{"docs/**"}, "bob")
	if err != nil {
		t.Fatalf("acquire error: %v", err)
	}
	if !res.OK {
		t.Fatal("disjoint scopes should both acquire")
	}
}

func TestAcquire_SameChainIdempotent(t *testing.T) {
	c := newTestCoordinator(t)

	if res, _ := c.Acquire("chain-a", []string{"src/**"}, "alice"); !res.OK {
		t.Fatal("first acquisition should succeed")
	}
	res, err := c.Acquire("chain-a", []string{"src/**", "docs/**"}, "alice")
	if err != nil {
		t.Fatalf("acquire error: %v", err)
	}
	if !res.OK {
		t.Fatal("same-chain re-acquisition should be treated as an update")
	}
	held, _ := c.Held()
	if len(held["chain-a"].Files) != 2 {
		t.Errorf("re-acquisition should replace the pattern set, got %v", held["chain-a"].Files)
	}
}

func TestAcquire_InvalidPattern(t *testing.T) {
	c := newTestCoordinator(t)
	if _, err := c.Acquire("chain-a", []string{""}, "alice"); err == nil {
		t.Error("empty pattern should be rejected")
	}
}

func TestRelease(t *testing.T) {
	c := newTestCoordinator(t)

	c.Acquire("chain-a", []string{"src/**"}, "alice")
	ok, err := c.Release("chain-a")
	if err != nil {
		t.Fatalf("release error: %v", err)
	}
	if !ok {
		t.Error("release of held lock should report true")
	}
	ok, _ = c.Release("chain-a")
	if ok {
		t.Error("release of absent lock should report false")
	}

	// Scope is free again.
	if res, _ := c.Acquire("chain-b", []string{"src/**"}, "bob"); !res.OK {
		t.Error("released scope should be acquirable")
	}
}

func TestExtend(t *testing.T) {
	c := newTestCoordinator(t)

	c.Acquire("chain-a", []string{"src/**"}, "alice")
	before, _ := c.Held()

	ok, err := c.Extend("chain-a", 48*time.Hour)
	if err != nil {
		t.Fatalf("extend error: %v", err)
	}
	if !ok {
		t.Error("extend of held lock should report true")
	}
	after, _ := c.Held()
	if !after["chain-a"].ExpiresAt.After(before["chain-a"].ExpiresAt) {
		t.Error("extend should push expiry forward")
	}

	if ok, _ := c.Extend("missing", 0); ok {
		t.Error("extend of absent lock should report false")
	}
}

func TestLazyExpiry(t *testing.T) {
	current := time.Now()
	c := newTestCoordinator(t, WithClock(func() time.Time { return current }))

	c.Acquire("chain-a", []string{"src/**"}, "alice")

	// Move past the TTL; the next read purges the stale lock.
	current = current.Add(DefaultTTL + time.Minute)

	locked, _, err := c.IsFileLocked("src/main.ts")
	if err != nil {
		t.Fatalf("check error: %v", err)
	}
	if locked {
		t.Error("expired lock should be purged on read")
	}
	if res, _ := c.Acquire("chain-b", []string{"src/**"}, "bob"); !res.OK {
		t.Error("expired scope should be acquirable")
	}
}

func TestIsFileLocked(t *testing.T) {
	c := newTestCoordinator(t)

	c.Acquire("chain-a", []string{"src/**/*.ts"}, "alice")

	locked, chain, _ := c.IsFileLocked("src/utils/foo.ts")
	if !locked || chain != "chain-a" {
		t.Errorf("expected src/utils/foo.ts locked by chain-a, got %v/%s", locked, chain)
	}
	locked, _, _ = c.IsFileLocked("docs/readme.md")
	if locked {
		t.Error("docs/readme.md should not be locked")
	}
}

func TestCheckScopeConflicts(t *testing.T) {
	c := newTestCoordinator(t)

	c.Acquire("chain-a", []string{"src/**"}, "alice")
	c.Acquire("chain-b", []string{"docs/**"}, "bob")

	conflicts, err := c.CheckScopeConflicts([]string{"src/utils/*.ts", "assets/**"})
	if err != nil {
		t.Fatalf("check error: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected one conflict, got %d", len(conflicts))
	}
	if conflicts[0].ChainID != "chain-a" {
		t.Errorf("expected conflict with chain-a, got %s", conflicts[0].ChainID)
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks.json")

	c1 := NewCoordinator(path)
	c1.Acquire("chain-a", []string{"src/**"}, "alice")

	// A fresh coordinator over the same file sees the lock.
	c2 := NewCoordinator(path)
	locked, chain, _ := c2.IsFileLocked("src/main.go")
	if !locked || chain != "chain-a" {
		t.Error("lock table should survive a coordinator restart")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("lock file should not be empty")
	}
}
