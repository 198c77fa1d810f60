package chain

import (
	"context"
	"testing"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("create store error: %v", err)
	}
	return store
}

func TestAddTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.AddTask("chain-1", "task-1", "write the parser"); err != nil {
		t.Fatalf("add error: %v", err)
	}
	tasks, err := store.GetTasksForChain(ctx, "chain-1")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Status != TaskPending {
		t.Fatalf("expected one pending task, got %+v", tasks)
	}
	if err := store.AddTask("chain-1", "task-1", "duplicate"); err == nil {
		t.Fatal("duplicate task id should be rejected")
	}
}

func TestTaskTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.AddTask("chain-1", "task-1", "a")
	if err := store.StartTask(ctx, "task-1"); err != nil {
		t.Fatalf("start error: %v", err)
	}
	tasks, _ := store.GetTasksForChain(ctx, "chain-1")
	if tasks[0].Status != TaskInProgress || tasks[0].StartedAt == nil {
		t.Fatalf("expected in_progress with start time, got %+v", tasks[0])
	}

	if err := store.CompleteTask(ctx, "task-1"); err != nil {
		t.Fatalf("complete error: %v", err)
	}
	if err := store.ApproveTask(ctx, "task-1"); err != nil {
		t.Fatalf("approve error: %v", err)
	}
	tasks, _ = store.GetTasksForChain(ctx, "chain-1")
	if tasks[0].Status != TaskApproved {
		t.Errorf("expected approved, got %s", tasks[0].Status)
	}
}

func TestApproveRequiresComplete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.AddTask("chain-1", "task-1", "a")
	if err := store.ApproveTask(ctx, "task-1"); err == nil {
		t.Fatal("approving a pending task should fail")
	}
}

func TestReworkClearsCompletion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.AddTask("chain-1", "task-1", "a")
	store.StartTask(ctx, "task-1")
	store.CompleteTask(ctx, "task-1")
	if err := store.ReworkTask(ctx, "task-1", "missed a case"); err != nil {
		t.Fatalf("rework error: %v", err)
	}
	tasks, _ := store.GetTasksForChain(ctx, "chain-1")
	if tasks[0].Status != TaskRework || tasks[0].CompletedAt != nil {
		t.Errorf("expected rework with cleared completion, got %+v", tasks[0])
	}
}

func TestChainCompletesWithLastTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.AddTask("chain-1", "task-1", "a")
	store.AddTask("chain-1", "task-2", "b")

	store.CompleteTask(ctx, "task-1")
	status, _ := store.GetChainStatus(ctx, "chain-1")
	if status.Status != ChainActive || status.Completed != 1 {
		t.Fatalf("chain should stay active with one task open, got %+v", status)
	}

	store.CompleteTask(ctx, "task-2")
	status, _ = store.GetChainStatus(ctx, "chain-1")
	if status.Status != ChainComplete || status.Completed != 2 {
		t.Errorf("chain should complete with its last task, got %+v", status)
	}
}

func TestReworkReopensChain(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.AddTask("chain-1", "task-1", "a")
	store.CompleteTask(ctx, "task-1")
	status, _ := store.GetChainStatus(ctx, "chain-1")
	if status.Status != ChainComplete {
		t.Fatalf("expected complete, got %s", status.Status)
	}

	store.ReworkTask(ctx, "task-1", "regression")
	status, _ = store.GetChainStatus(ctx, "chain-1")
	if status.Status != ChainActive {
		t.Errorf("rework should reopen the chain, got %s", status.Status)
	}
}

func TestUnknownTaskAndChain(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.StartTask(ctx, "ghost"); err == nil {
		t.Error("expected error for unknown task")
	}
	if _, err := store.GetChainStatus(ctx, "ghost"); err == nil {
		t.Error("expected error for unknown chain")
	}
	tasks, err := store.GetTasksForChain(ctx, "ghost")
	if err != nil || tasks != nil {
		t.Errorf("unknown chain should list no tasks, got %v, %v", tasks, err)
	}
}
