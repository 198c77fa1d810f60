// Lock subcommand implementations.
package main

import (
	"fmt"
	"strings"
)

// Run acquires a scope of file patterns for a chain.
func (c *LocksAcquireCmd) Run() error {
	rt, err := newRuntime(c.Config, "")
	if err != nil {
		return err
	}
	defer rt.Close()

	coord, err := rt.lockCoordinator()
	if err != nil {
		return err
	}
	res, err := coord.Acquire(c.Chain, c.Patterns, c.Owner)
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("scope conflict with chain %s on %s",
			res.ConflictChain, strings.Join(res.ConflictPatterns, ", "))
	}
	rt.telem.LogEvent("locks_acquired", map[string]interface{}{
		"chain_id": c.Chain,
		"patterns": c.Patterns,
	})
	fmt.Printf("locked %s for chain %s\n", strings.Join(c.Patterns, ", "), c.Chain)
	return nil
}

// Run releases a chain's locks.
func (c *LocksReleaseCmd) Run() error {
	rt, err := newRuntime(c.Config, "")
	if err != nil {
		return err
	}
	defer rt.Close()

	coord, err := rt.lockCoordinator()
	if err != nil {
		return err
	}
	released, err := coord.Release(c.Chain)
	if err != nil {
		return err
	}
	if !released {
		fmt.Printf("chain %s held no locks\n", c.Chain)
		return nil
	}
	fmt.Printf("released locks for chain %s\n", c.Chain)
	return nil
}

// Run shows held locks.
func (c *LocksStatusCmd) Run() error {
	rt, err := newRuntime(c.Config, "")
	if err != nil {
		return err
	}
	defer rt.Close()

	coord, err := rt.lockCoordinator()
	if err != nil {
		return err
	}
	held, err := coord.Held()
	if err != nil {
		return err
	}
	if len(held) == 0 {
		fmt.Println("no locks held")
		return nil
	}
	for chainID, lock := range held {
		fmt.Printf("%s  owner=%s  expires=%s\n", chainID, lock.Owner, lock.ExpiresAt.Format("2006-01-02 15:04"))
		for _, pattern := range lock.Files {
			fmt.Printf("  %s\n", pattern)
		}
	}
	return nil
}

// Run checks patterns for conflicts without acquiring.
func (c *LocksCheckCmd) Run() error {
	rt, err := newRuntime(c.Config, "")
	if err != nil {
		return err
	}
	defer rt.Close()

	coord, err := rt.lockCoordinator()
	if err != nil {
		return err
	}
	conflicts, err := coord.CheckScopeConflicts(c.Patterns)
	if err != nil {
		return err
	}
	if len(conflicts) == 0 {
		fmt.Println("no conflicts")
		return nil
	}
	for _, conflict := range conflicts {
		fmt.Printf("conflict: %s overlaps %s (held by chain %s)\n",
			conflict.Requested, conflict.HeldPattern, conflict.ChainID)
	}
	return fmt.Errorf("%d conflict(s)", len(conflicts))
}
