// Built-in tool definitions and their executors.
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/vinayprograms/conductor/internal/chain"
	"github.com/vinayprograms/conductor/internal/globs"
)

// GatePrompter surfaces an agent-triggered gate prompt for a workflow.
// Implemented by the workflow manager.
type GatePrompter interface {
	RequestGatePrompt(workflowID string) (string, error)
}

// Deps carries the collaborators built-in tools execute against.
type Deps struct {
	Workspace  string
	Chain      chain.Lifecycle
	Gates      GatePrompter
	WorkflowID string
}

// RegisterBuiltins populates the registry with the standard tool set.
func RegisterBuiltins(r *Registry, deps Deps) error {
	defs := []ToolDefinition{
		{
			Name:        "read_file",
			Description: "Read a file from the workspace",
			Parameters:  paramSchema(map[string]string{"path": "Path relative to the workspace root"}, "path"),
			Execute:     deps.readFile,
		},
		{
			Name:        "list_files",
			Description: "List files under a workspace directory",
			Parameters:  paramSchema(map[string]string{"path": "Directory to list, relative to the workspace root (default: root)"}),
			Execute:     deps.listFiles,
		},
		{
			Name:        "file_search",
			Description: "Find workspace files matching a glob pattern",
			Parameters:  paramSchema(map[string]string{"pattern": "Glob pattern, e.g. src/**/*.go"}, "pattern"),
			Execute:     deps.fileSearch,
		},
		{
			Name:        "write_file",
			Description: "Create or overwrite a file in the workspace",
			Parameters:  paramSchema(map[string]string{"path": "Path relative to the workspace root", "content": "Full file content"}, "path", "content"),
			Roles:       []Role{RoleControl, RolePlanner, RoleImplementer},
			Execute:     deps.writeFile,
		},
		{
			Name:        "delete_file",
			Description: "Delete a file from the workspace",
			Parameters:  paramSchema(map[string]string{"path": "Path relative to the workspace root"}, "path"),
			Roles:       []Role{RoleControl, RoleImplementer},
			Execute:     deps.deleteFile,
		},
		{
			Name:        "create_request",
			Description: "File a change request document",
			Parameters:  paramSchema(map[string]string{"title": "Short request title", "description": "What should change and why"}, "title", "description"),
			Roles:       []Role{RoleControl, RolePlanner},
			Execute:     deps.createRequest,
		},
		{
			Name:        "start_task",
			Description: "Mark a chain task as started",
			Parameters:  paramSchema(map[string]string{"task_id": "Task identifier"}, "task_id"),
			Roles:       []Role{RoleControl, RoleImplementer},
			Execute:     deps.taskCall(func(ctx context.Context, lc chain.Lifecycle, id, _ string) error { return lc.StartTask(ctx, id) }),
		},
		{
			Name:        "complete_task",
			Description: "Mark a chain task as complete",
			Parameters:  paramSchema(map[string]string{"task_id": "Task identifier"}, "task_id"),
			Roles:       []Role{RoleControl, RoleImplementer, RoleVerifier},
			Execute:     deps.taskCall(func(ctx context.Context, lc chain.Lifecycle, id, _ string) error { return lc.CompleteTask(ctx, id) }),
		},
		{
			Name:        "approve_task",
			Description: "Approve a completed chain task",
			Parameters:  paramSchema(map[string]string{"task_id": "Task identifier"}, "task_id"),
			Roles:       []Role{RoleControl, RoleReviewer},
			Execute:     deps.taskCall(func(ctx context.Context, lc chain.Lifecycle, id, _ string) error { return lc.ApproveTask(ctx, id) }),
		},
		{
			Name:        "rework_task",
			Description: "Send a chain task back for rework",
			Parameters:  paramSchema(map[string]string{"task_id": "Task identifier", "reason": "Why the task needs rework"}, "task_id", "reason"),
			Roles:       []Role{RoleControl, RoleReviewer},
			Execute:     deps.taskCall(func(ctx context.Context, lc chain.Lifecycle, id, reason string) error { return lc.ReworkTask(ctx, id, reason) }),
		},
		{
			Name:        "run_check",
			Description: "Run a verification command in the workspace and capture its output",
			Parameters:  paramSchema(map[string]string{"command": "Shell command to run"}, "command"),
			Roles:       []Role{RoleControl, RoleVerifier},
			Execute:     deps.runCheck,
		},
		{
			Name:        "request_gate_prompt",
			Description: "Surface the current stage's approval prompt to the human operator",
			Parameters:  paramSchema(nil),
			Execute:     deps.requestGatePrompt,
		},
	}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// resolve joins a workspace-relative path and rejects escapes.
func (d Deps) resolve(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}
	full := filepath.Join(d.Workspace, filepath.FromSlash(rel))
	clean := filepath.Clean(full)
	root := filepath.Clean(d.Workspace)
	if clean != root && !strings.HasPrefix(clean, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", rel)
	}
	return clean, nil
}

func (d Deps) readFile(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	path, err := d.resolve(stringArg(args, "path"))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (d Deps) listFiles(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	rel := stringArg(args, "path")
	if rel == "" {
		rel = "."
	}
	path, err := d.resolve(rel)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return names, nil
}

func (d Deps) fileSearch(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	pattern := stringArg(args, "pattern")
	compiled, err := globs.Compile(pattern)
	if err != nil {
		return nil, err
	}
	var matches []string
	root := filepath.Clean(d.Workspace)
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if entry.Name() == ".git" || entry.Name() == ".conductor" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if compiled.Match(filepath.ToSlash(rel)) {
			matches = append(matches, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func (d Deps) writeFile(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	path, err := d.resolve(stringArg(args, "path"))
	if err != nil {
		return nil, err
	}
	content, ok := args["content"].(string)
	if !ok {
		return nil, fmt.Errorf("content is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return nil, err
	}
	return fmt.Sprintf("wrote %d bytes", len(content)), nil
}

func (d Deps) deleteFile(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	path, err := d.resolve(stringArg(args, "path"))
	if err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil {
		return nil, err
	}
	return "deleted", nil
}

func (d Deps) createRequest(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	title := stringArg(args, "title")
	description := stringArg(args, "description")
	if title == "" || description == "" {
		return nil, fmt.Errorf("title and description are required")
	}
	rel := filepath.Join("requests", slugify(title)+".md")
	path, err := d.resolve(rel)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	body := fmt.Sprintf("# %s\n\n%s\n", title, description)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		return nil, err
	}
	return filepath.ToSlash(rel), nil
}

func (d Deps) taskCall(fn func(ctx context.Context, lc chain.Lifecycle, taskID, reason string) error) ExecFunc {
	return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		if d.Chain == nil {
			return nil, fmt.Errorf("no task lifecycle configured")
		}
		taskID := stringArg(args, "task_id")
		if taskID == "" {
			return nil, fmt.Errorf("task_id is required")
		}
		if err := fn(ctx, d.Chain, taskID, stringArg(args, "reason")); err != nil {
			return nil, err
		}
		return "ok", nil
	}
}

func (d Deps) runCheck(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	command := stringArg(args, "command")
	if command == "" {
		return nil, fmt.Errorf("command is required")
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = d.Workspace
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	exitCode := 0
	if err != nil {
		exitCode = -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, err
		}
	}
	return map[string]interface{}{"exit_code": exitCode, "output": out.String()}, nil
}

func (d Deps) requestGatePrompt(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if d.Gates == nil || d.WorkflowID == "" {
		return nil, fmt.Errorf("no workflow attached to this session")
	}
	prompt, err := d.Gates.RequestGatePrompt(d.WorkflowID)
	if err != nil {
		return nil, err
	}
	return prompt, nil
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

func paramSchema(props map[string]string, required ...string) map[string]interface{} {
	properties := make(map[string]interface{}, len(props))
	for name, desc := range props {
		properties[name] = map[string]interface{}{"type": "string", "description": desc}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
