// Session inspection subcommands.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/vinayprograms/conductor/internal/replay"
	"github.com/vinayprograms/conductor/internal/session"
)

// Run lists recorded sessions, newest first.
func (c *SessionsListCmd) Run() error {
	rt, err := newRuntime(c.Config, "")
	if err != nil {
		return err
	}
	defer rt.Close()

	mgr, err := rt.sessionManager()
	if err != nil {
		return err
	}
	ids, err := mgr.List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("no sessions")
		return nil
	}

	var sessions []*session.Session
	for _, id := range ids {
		sess, err := mgr.Get(id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			continue
		}
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	for _, sess := range sessions {
		fmt.Println(replay.Summary(sess))
	}
	return nil
}

// Run replays one session transcript.
func (c *SessionsShowCmd) Run() error {
	rt, err := newRuntime(c.Config, "")
	if err != nil {
		return err
	}
	defer rt.Close()

	mgr, err := rt.sessionManager()
	if err != nil {
		return err
	}
	sess, err := mgr.Get(c.ID)
	if err != nil {
		return err
	}
	fmt.Print(replay.Render(sess, c.Verbose))
	return nil
}
