package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func testRegistry(t *testing.T, workspace string) *Registry {
	t.Helper()
	r := NewRegistry()
	if err := RegisterBuiltins(r, Deps{Workspace: workspace}); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	return r
}

func contains(defs []ToolDefinition, name string) bool {
	for _, d := range defs {
		if d.Name == name {
			return true
		}
	}
	return false
}

func TestToolsForRole(t *testing.T) {
	r := testRegistry(t, t.TempDir())

	impl := r.ToolsForRole(RoleImplementer)
	if !contains(impl, "write_file") {
		t.Error("implementer should see write_file")
	}
	if contains(impl, "approve_task") {
		t.Error("implementer should not see approve_task")
	}

	rev := r.ToolsForRole(RoleReviewer)
	if !contains(rev, "approve_task") || !contains(rev, "rework_task") {
		t.Error("reviewer should see approval tools")
	}
	if contains(rev, "write_file") {
		t.Error("reviewer should not see write_file")
	}

	// Unrestricted tools are visible to every role.
	if !contains(rev, "read_file") || !contains(impl, "read_file") {
		t.Error("read_file should be visible to all roles")
	}
}

func TestToolsForStage_Intersection(t *testing.T) {
	r := testRegistry(t, t.TempDir())

	// Implementation stage for an implementer: write tools visible.
	defs := r.ToolsForStage(RoleImplementer, StageImplementation)
	if !contains(defs, "write_file") || !contains(defs, "complete_task") {
		t.Errorf("implementation stage should expose write and completion tools, got %v", Names(defs))
	}
	if contains(defs, "run_check") {
		t.Error("run_check is not an implementation-stage tool")
	}

	// Request stage: read-only plus request creation; write_file filtered
	// out by the stage even though the role allows it.
	defs = r.ToolsForStage(RoleImplementer, StageRequest)
	if contains(defs, "write_file") {
		t.Error("request stage must not expose write_file")
	}
	if !contains(defs, "read_file") {
		t.Error("request stage should expose read_file")
	}
}

func TestToolsForStage_NoStage(t *testing.T) {
	r := testRegistry(t, t.TempDir())
	if len(r.ToolsForStage(RoleImplementer, "")) != len(r.ToolsForRole(RoleImplementer)) {
		t.Error("empty stage should apply the role filter only")
	}
}

func TestToolsForStage_EmptyIntersection(t *testing.T) {
	r := testRegistry(t, t.TempDir())

	// Verifier in the request stage: approval/check tools are filtered by
	// the stage, request tools by the role. Whatever remains is the shared
	// read-only set; an empty result would also be legal.
	defs := r.ToolsForStage(RoleVerifier, StageRequest)
	for _, d := range defs {
		if d.Name == "run_check" || d.Name == "create_request" {
			t.Errorf("tool %s should not survive the intersection", d.Name)
		}
	}
}

func TestToolsForStageWithRoleID(t *testing.T) {
	r := testRegistry(t, t.TempDir())
	mgr := NewRoleManager()
	mgr.Define(RoleSpec{ID: "doc-writer", ToolIDs: []string{"read_file", "write_file"}})

	defs := r.ToolsForStageWithRoleID("doc-writer", mgr, StageImplementation)
	if !contains(defs, "read_file") || !contains(defs, "write_file") {
		t.Errorf("configured tools should be visible, got %v", Names(defs))
	}
	if len(defs) != 2 {
		t.Errorf("only configured tools should be visible, got %v", Names(defs))
	}

	// Stage matrix still applies on top of the configured list.
	defs = r.ToolsForStageWithRoleID("doc-writer", mgr, StageRequest)
	if contains(defs, "write_file") {
		t.Error("stage matrix should filter configured tools")
	}

	// Unknown role id sees nothing.
	if defs := r.ToolsForStageWithRoleID("ghost", mgr, StageImplementation); len(defs) != 0 {
		t.Errorf("unknown role id should see no tools, got %v", Names(defs))
	}
}

func TestCanSpawn(t *testing.T) {
	if !CanSpawn(RoleControl) {
		t.Error("control should be spawn-privileged")
	}
	if CanSpawn(RoleImplementer) || CanSpawn(RoleReviewer) || CanSpawn(RoleVerifier) {
		t.Error("non-privileged roles must not spawn")
	}
}

func TestRegister_RequiresName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(ToolDefinition{}); err == nil {
		t.Error("unnamed tool should be rejected")
	}
}

func TestBuiltin_ReadWriteDelete(t *testing.T) {
	workspace := t.TempDir()
	r := testRegistry(t, workspace)
	ctx := context.Background()

	write, _ := r.Get("write_file")
	if _, err := write.Execute(ctx, map[string]interface{}{"path": "src/main.go", "content": "package main\n"}); err != nil {
		t.Fatalf("write error: %v", err)
	}

	read, _ := r.Get("read_file")
	out, err := read.Execute(ctx, map[string]interface{}{"path": "src/main.go"})
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if out.(string) != "package main\n" {
		t.Errorf("unexpected content: %q", out)
	}

	del, _ := r.Get("delete_file")
	if _, err := del.Execute(ctx, map[string]interface{}{"path": "src/main.go"}); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(workspace, "src", "main.go")); !os.IsNotExist(err) {
		t.Error("file should be gone")
	}
}

func TestBuiltin_PathEscapeRejected(t *testing.T) {
	r := testRegistry(t, t.TempDir())
	read, _ := r.Get("read_file")
	if _, err := read.Execute(context.Background(), map[string]interface{}{"path": "../outside.txt"}); err == nil {
		t.Error("path escaping the workspace must be rejected")
	}
}

func TestBuiltin_FileSearch(t *testing.T) {
	workspace := t.TempDir()
	os.MkdirAll(filepath.Join(workspace, "src", "utils"), 0755)
	os.WriteFile(filepath.Join(workspace, "src", "main.go"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(workspace, "src", "utils", "util.go"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(workspace, "readme.md"), []byte("x"), 0644)

	r := testRegistry(t, workspace)
	search, _ := r.Get("file_search")
	out, err := search.Execute(context.Background(), map[string]interface{}{"pattern": "src/**/*.go"})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	matches := out.([]string)
	if len(matches) != 2 {
		t.Errorf("expected 2 matches, got %v", matches)
	}
}

func TestBuiltin_RunCheck(t *testing.T) {
	r := testRegistry(t, t.TempDir())
	run, _ := r.Get("run_check")

	out, err := run.Execute(context.Background(), map[string]interface{}{"command": "echo hello"})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	result := out.(map[string]interface{})
	if result["exit_code"].(int) != 0 {
		t.Errorf("expected exit 0, got %v", result["exit_code"])
	}

	out, err = run.Execute(context.Background(), map[string]interface{}{"command": "exit 3"})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if out.(map[string]interface{})["exit_code"].(int) != 3 {
		t.Errorf("expected exit 3, got %v", out)
	}
}
