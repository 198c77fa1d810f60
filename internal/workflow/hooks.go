package workflow

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/conductor/internal/chain"
)

// CustomHandler is a registered in-process hook handler.
type CustomHandler func(ctx context.Context, action TransitionAction) error

// HookResult is the outcome of one transition action. Non-blocking
// failures are surfaced as warnings instead of aborting the transition.
type HookResult struct {
	Action TransitionAction
	Output string
	Err    string
}

// HookRunner executes transition actions in declaration order.
type HookRunner struct {
	workspace string
	chain     chain.Lifecycle
	custom    map[string]CustomHandler
	logger    *logging.Logger
}

// NewHookRunner creates a runner for hooks rooted at the workspace.
func NewHookRunner(workspace string, lifecycle chain.Lifecycle) *HookRunner {
	return &HookRunner{
		workspace: workspace,
		chain:     lifecycle,
		custom:    make(map[string]CustomHandler),
		logger:    logging.New().WithComponent("hooks"),
	}
}

// RegisterHandler installs a named custom handler. Actions referencing an
// unregistered handler fail.
func (r *HookRunner) RegisterHandler(name string, fn CustomHandler) {
	r.custom[name] = fn
}

// Run executes actions in order. A blocking failure stops execution and
// returns an error; non-blocking failures are collected as warnings and
// execution continues.
func (r *HookRunner) Run(ctx context.Context, actions []TransitionAction) ([]HookResult, error) {
	var warnings []HookResult
	for _, action := range actions {
		output, err := r.runOne(ctx, action)
		if err == nil {
			continue
		}
		if action.IsBlocking() {
			r.logger.Error("blocking hook failed", map[string]interface{}{
				"type":  string(action.Type),
				"error": err.Error(),
			})
			return warnings, fmt.Errorf("%s hook failed: %w", action.Type, err)
		}
		r.logger.Warn("non-blocking hook failed", map[string]interface{}{
			"type":  string(action.Type),
			"error": err.Error(),
		})
		warnings = append(warnings, HookResult{Action: action, Output: output, Err: err.Error()})
	}
	return warnings, nil
}

func (r *HookRunner) runOne(ctx context.Context, action TransitionAction) (string, error) {
	switch action.Type {
	case ActionCommand:
		return r.runCommand(ctx, action.Command)
	case ActionTaskTransition:
		return "", r.runTaskTransition(ctx, action)
	case ActionFileMove:
		return "", r.runFileMove(action)
	case ActionCustom:
		handler, ok := r.custom[action.Handler]
		if !ok {
			return "", fmt.Errorf("no handler registered for %q", action.Handler)
		}
		return "", handler(ctx, action)
	default:
		return "", fmt.Errorf("unknown action type %q", action.Type)
	}
}

func (r *HookRunner) runCommand(ctx context.Context, command string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = r.workspace
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("command %q: %w", command, err)
	}
	return string(out), nil
}

func (r *HookRunner) runTaskTransition(ctx context.Context, action TransitionAction) error {
	if r.chain == nil {
		return fmt.Errorf("no task lifecycle configured")
	}
	switch action.Transition {
	case "start":
		return r.chain.StartTask(ctx, action.TaskID)
	case "complete":
		return r.chain.CompleteTask(ctx, action.TaskID)
	case "approve":
		return r.chain.ApproveTask(ctx, action.TaskID)
	case "rework":
		return r.chain.ReworkTask(ctx, action.TaskID, "workflow hook")
	default:
		return fmt.Errorf("unknown task transition %q", action.Transition)
	}
}

func (r *HookRunner) runFileMove(action TransitionAction) error {
	from, err := r.resolve(action.From)
	if err != nil {
		return err
	}
	to, err := r.resolve(action.To)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return err
	}
	return os.Rename(from, to)
}

// resolve anchors a hook path inside the workspace and rejects escapes.
func (r *HookRunner) resolve(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty path")
	}
	abs := filepath.Join(r.workspace, rel)
	root := filepath.Clean(r.workspace)
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", rel)
	}
	return abs, nil
}
