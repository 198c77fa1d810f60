package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/vinayprograms/conductor/internal/chain"
)

func newTestRunner(t *testing.T) (*HookRunner, *chain.FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	chains, err := chain.NewFileStore(filepath.Join(dir, "chains"))
	if err != nil {
		t.Fatalf("create chain store error: %v", err)
	}
	return NewHookRunner(dir, chains), chains, dir
}

func TestHooks_CommandBlockingFailure(t *testing.T) {
	runner, _, _ := newTestRunner(t)

	_, err := runner.Run(context.Background(), []TransitionAction{
		{Type: ActionCommand, Command: "exit 3"},
	})
	if err == nil {
		t.Fatal("expected blocking failure")
	}
}

func TestHooks_StopsAtBlockingFailure(t *testing.T) {
	runner, _, dir := newTestRunner(t)

	marker := filepath.Join(dir, "ran")
	_, err := runner.Run(context.Background(), []TransitionAction{
		{Type: ActionCommand, Command: "exit 1"},
		{Type: ActionCommand, Command: fmt.Sprintf("touch %s", marker)},
	})
	if err == nil {
		t.Fatal("expected blocking failure")
	}
	if _, statErr := os.Stat(marker); statErr == nil {
		t.Error("actions after a blocking failure should not run")
	}
}

func TestHooks_NonBlockingContinues(t *testing.T) {
	runner, _, dir := newTestRunner(t)

	marker := filepath.Join(dir, "ran")
	warnings, err := runner.Run(context.Background(), []TransitionAction{
		{Type: ActionCommand, Command: "exit 1", Blocking: boolPtr(false)},
		{Type: ActionCommand, Command: fmt.Sprintf("touch %s", marker)},
	})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(warnings))
	}
	if _, statErr := os.Stat(marker); statErr != nil {
		t.Error("actions after a non-blocking failure should still run")
	}
}

func TestHooks_TaskTransition(t *testing.T) {
	runner, chains, _ := newTestRunner(t)
	ctx := context.Background()

	if err := chains.AddTask("chain-1", "task-1", "build it"); err != nil {
		t.Fatalf("add task error: %v", err)
	}
	_, err := runner.Run(ctx, []TransitionAction{
		{Type: ActionTaskTransition, TaskID: "task-1", Transition: "start"},
		{Type: ActionTaskTransition, TaskID: "task-1", Transition: "complete"},
	})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	tasks, _ := chains.GetTasksForChain(ctx, "chain-1")
	if tasks[0].Status != chain.TaskComplete {
		t.Errorf("expected complete, got %s", tasks[0].Status)
	}
}

func TestHooks_TaskTransitionUnknownVerb(t *testing.T) {
	runner, _, _ := newTestRunner(t)
	_, err := runner.Run(context.Background(), []TransitionAction{
		{Type: ActionTaskTransition, TaskID: "task-1", Transition: "teleport"},
	})
	if err == nil {
		t.Fatal("expected error for unknown transition verb")
	}
}

func TestHooks_FileMove(t *testing.T) {
	runner, _, dir := newTestRunner(t)

	if err := os.WriteFile(filepath.Join(dir, "draft.md"), []byte("x"), 0644); err != nil {
		t.Fatalf("write error: %v", err)
	}
	_, err := runner.Run(context.Background(), []TransitionAction{
		{Type: ActionFileMove, From: "draft.md", To: "archive/final.md"},
	})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "archive", "final.md")); statErr != nil {
		t.Error("file should be moved to the destination")
	}
}

func TestHooks_FileMoveRejectsEscape(t *testing.T) {
	runner, _, _ := newTestRunner(t)
	_, err := runner.Run(context.Background(), []TransitionAction{
		{Type: ActionFileMove, From: "../outside", To: "inside"},
	})
	if err == nil {
		t.Fatal("expected error for a path escaping the workspace")
	}
}

func TestHooks_CustomHandler(t *testing.T) {
	runner, _, _ := newTestRunner(t)

	called := false
	runner.RegisterHandler("notify", func(ctx context.Context, action TransitionAction) error {
		called = true
		return nil
	})
	_, err := runner.Run(context.Background(), []TransitionAction{
		{Type: ActionCustom, Handler: "notify"},
	})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !called {
		t.Error("custom handler should be invoked")
	}
}

func TestHooks_UnknownHandler(t *testing.T) {
	runner, _, _ := newTestRunner(t)
	_, err := runner.Run(context.Background(), []TransitionAction{
		{Type: ActionCustom, Handler: "missing"},
	})
	if err == nil {
		t.Fatal("expected error for unregistered handler")
	}
}
