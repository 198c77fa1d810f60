// Package catalog holds tool definitions and computes which tools a
// session may see for a given role and workflow stage. Visibility is
// driven by data tables, not code branches: adding a stage or role is a
// config change.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Role is an identity class determining tool visibility and privileges.
type Role string

const (
	RoleControl     Role = "control"
	RolePlanner     Role = "planner"
	RoleImplementer Role = "implementer"
	RoleReviewer    Role = "reviewer"
	RoleVerifier    Role = "verifier"
)

// StageType is one phase of a workflow template.
type StageType string

const (
	StageRequest        StageType = "request"
	StageDesign         StageType = "design"
	StageReview         StageType = "review"
	StageImplementation StageType = "implementation"
	StageVerification   StageType = "verification"
	StageIdeation       StageType = "ideation"
)

// spawnPrivileged lists roles allowed to spawn nested sessions.
var spawnPrivileged = map[Role]bool{
	RoleControl: true,
	RolePlanner: true,
}

// CanSpawn reports whether the role may spawn nested agent sessions.
func CanSpawn(role Role) bool {
	return spawnPrivileged[role]
}

// stageTools maps each stage type to the tool names meaningful in it.
// The effective visible set is the intersection of this table with the
// role's tools.
var stageTools = map[StageType][]string{
	StageRequest:        {"read_file", "list_files", "file_search", "create_request"},
	StageDesign:         {"read_file", "list_files", "file_search", "write_file", "spawn_agent"},
	StageReview:         {"read_file", "list_files", "file_search", "approve_task", "rework_task", "request_gate_prompt"},
	StageImplementation: {"read_file", "list_files", "file_search", "write_file", "delete_file", "start_task", "complete_task", "request_gate_prompt", "spawn_agent"},
	StageVerification:   {"read_file", "list_files", "file_search", "run_check", "complete_task"},
	StageIdeation:       {"read_file", "list_files", "file_search", "create_request", "spawn_agent"},
}

// StageToolNames returns the tool names legal in a stage. Unknown stage
// types expose nothing.
func StageToolNames(stage StageType) []string {
	return append([]string(nil), stageTools[stage]...)
}

// ExecFunc runs a tool with already-validated arguments.
type ExecFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// ToolDefinition describes one tool in the catalog.
type ToolDefinition struct {
	Name        string
	Description string
	// Parameters is a JSON-schema fragment handed verbatim to the LLM.
	Parameters map[string]interface{}
	// Roles that may see this tool. Empty means every role.
	Roles   []Role
	Execute ExecFunc
}

// AllowedForRole reports whether the role may see this tool.
func (d ToolDefinition) AllowedForRole(role Role) bool {
	if len(d.Roles) == 0 {
		return true
	}
	for _, r := range d.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RoleSpec maps a role id to an explicit tool id list, for deployments
// that configure roles as data rather than using the built-in role sets.
type RoleSpec struct {
	ID      string   `json:"id" yaml:"id"`
	ToolIDs []string `json:"tool_ids" yaml:"tool_ids"`
}

// RoleManager resolves role ids to configured tool id lists.
type RoleManager struct {
	mu    sync.RWMutex
	roles map[string]RoleSpec
}

// NewRoleManager creates an empty role manager.
func NewRoleManager() *RoleManager {
	return &RoleManager{roles: make(map[string]RoleSpec)}
}

// Define registers or replaces a role spec.
func (m *RoleManager) Define(spec RoleSpec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[spec.ID] = spec
}

// Get looks up a role spec by id.
func (m *RoleManager) Get(id string) (RoleSpec, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	spec, ok := m.roles[id]
	return spec, ok
}

// Registry holds the full tool catalog. Read-only at session runtime.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]ToolDefinition
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]ToolDefinition)}
}

// Register adds a tool definition. Registering an existing name replaces
// it without changing its position.
func (r *Registry) Register(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool definition requires a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.tools[def.Name] = def
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Definitions returns every registered tool in registration order.
func (r *Registry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// ToolsForRole returns the subset of the catalog visible to a role.
func (r *Registry) ToolsForRole(role Role) []ToolDefinition {
	var out []ToolDefinition
	for _, def := range r.Definitions() {
		if def.AllowedForRole(role) {
			out = append(out, def)
		}
	}
	return out
}

// ToolsForStage returns the intersection of the role's tools and the
// stage matrix. An empty stage applies the role filter only. An empty
// result is a valid outcome: the session has no legal moves until the
// role or stage changes.
func (r *Registry) ToolsForStage(role Role, stage StageType) []ToolDefinition {
	byRole := r.ToolsForRole(role)
	if stage == "" {
		return byRole
	}
	allowed := nameSet(stageTools[stage])
	var out []ToolDefinition
	for _, def := range byRole {
		if allowed[def.Name] {
			out = append(out, def)
		}
	}
	return out
}

// ToolsForStageWithRoleID resolves visibility through a RoleManager: the
// effective set is the intersection of the role's configured tool ids and
// the stage matrix. An unknown role id sees nothing.
func (r *Registry) ToolsForStageWithRoleID(roleID string, mgr *RoleManager, stage StageType) []ToolDefinition {
	spec, ok := mgr.Get(roleID)
	if !ok {
		return nil
	}
	configured := nameSet(spec.ToolIDs)
	var stageAllowed map[string]bool
	if stage != "" {
		stageAllowed = nameSet(stageTools[stage])
	}
	var out []ToolDefinition
	for _, def := range r.Definitions() {
		if !configured[def.Name] {
			continue
		}
		if stageAllowed != nil && !stageAllowed[def.Name] {
			continue
		}
		out = append(out, def)
	}
	return out
}

// Names returns the sorted names of the given definitions.
func Names(defs []ToolDefinition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Name
	}
	sort.Strings(out)
	return out
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
