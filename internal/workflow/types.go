// Package workflow implements the staged workflow state machine: stage
// lifecycle, gates, transition hooks, and file-backed persistence.
package workflow

import (
	"time"

	"github.com/vinayprograms/conductor/internal/catalog"
)

// Workflow statuses.
const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Stage statuses.
const (
	StagePending      = "pending"
	StageActive       = "active"
	StageAwaitingGate = "awaiting_gate"
	StageCompleted    = "completed"
	StageSkipped      = "skipped"
)

// GateType identifies how a stage gate is satisfied.
type GateType string

const (
	GateAuto             GateType = "auto"
	GateHumanApproval    GateType = "human_approval"
	GateChainComplete    GateType = "chain_complete"
	GateVerificationPass GateType = "verification_pass"
)

// StageGate is the condition blocking advancement out of a stage.
// AgentTriggered is an orthogonal modifier on human_approval gates: it
// defers the prompt until the running agent explicitly requests it.
type StageGate struct {
	Type           GateType   `json:"type"`
	Prompt         string     `json:"prompt,omitempty"`
	ChainID        string     `json:"chain_id,omitempty"`
	Commands       []string   `json:"commands,omitempty"`
	AgentTriggered bool       `json:"agent_triggered,omitempty"`
	Satisfied      bool       `json:"satisfied"`
	SatisfiedBy    string     `json:"satisfied_by,omitempty"`
	SatisfiedAt    *time.Time `json:"satisfied_at,omitempty"`
}

// ActionType identifies a transition hook handler.
type ActionType string

const (
	ActionCommand        ActionType = "command"
	ActionTaskTransition ActionType = "task_transition"
	ActionFileMove       ActionType = "file_move"
	ActionCustom         ActionType = "custom"
)

// TransitionAction is one hook step run on stage entry or exit.
// Blocking defaults to true: a nil pointer means a failure aborts the
// enclosing transition.
type TransitionAction struct {
	Type     ActionType `json:"type"`
	Blocking *bool      `json:"blocking,omitempty"`
	// command
	Command string `json:"command,omitempty"`
	// task_transition
	TaskID     string `json:"task_id,omitempty"`
	Transition string `json:"transition,omitempty"` // start|complete|approve|rework
	// file_move
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
	// custom
	Handler string `json:"handler,omitempty"`
}

// IsBlocking reports whether a failure of this action aborts the
// transition.
func (a TransitionAction) IsBlocking() bool {
	return a.Blocking == nil || *a.Blocking
}

// StageHooks are the actions run around a stage transition.
type StageHooks struct {
	OnEnter []TransitionAction `json:"on_enter,omitempty"`
	OnExit  []TransitionAction `json:"on_exit,omitempty"`
}

// Stage is one phase of a running workflow.
type Stage struct {
	Name        string            `json:"name"`
	Type        catalog.StageType `json:"type"`
	Status      string            `json:"status"`
	RoleID      string            `json:"role_id,omitempty"`
	Gate        StageGate         `json:"gate"`
	Hooks       *StageHooks       `json:"hooks,omitempty"`
	ChainID     string            `json:"chain_id,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Message kinds.
const (
	MessageGatePrompt = "gate_prompt"
	MessageHookNotice = "hook_notice"
)

// Message is an operator-facing note attached to a workflow.
type Message struct {
	Stage     int       `json:"stage"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Workflow is the persisted record of one staged process.
type Workflow struct {
	ID                string    `json:"id"`
	RequestID         string    `json:"request_id"`
	Template          string    `json:"template"`
	TemplateVersion   int       `json:"template_version"`
	Status            string    `json:"status"`
	CurrentStageIndex int       `json:"current_stage_index"`
	Stages            []Stage   `json:"stages"`
	Messages          []Message `json:"messages"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// CurrentStage returns the stage at the current index, or nil when the
// workflow has run past its last stage.
func (w *Workflow) CurrentStage() *Stage {
	if w.CurrentStageIndex < 0 || w.CurrentStageIndex >= len(w.Stages) {
		return nil
	}
	return &w.Stages[w.CurrentStageIndex]
}

// TemplateStage is the template form of a stage: everything but runtime
// state.
type TemplateStage struct {
	Name   string            `json:"name" yaml:"name"`
	Type   catalog.StageType `json:"type" yaml:"type"`
	RoleID string            `json:"role_id,omitempty" yaml:"role_id,omitempty"`
	Gate   StageGate         `json:"gate" yaml:"gate"`
	Hooks  *StageHooks       `json:"hooks,omitempty" yaml:"hooks,omitempty"`
}

// Template is a versioned, immutable workflow definition. Publishing an
// update creates a new version; history is never mutated.
type Template struct {
	Name    string          `json:"name" yaml:"name"`
	Stages  []TemplateStage `json:"stages" yaml:"stages"`
	Version int             `json:"version" yaml:"version"`
	Builtin bool            `json:"builtin,omitempty" yaml:"builtin,omitempty"`
}
