// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Run      RunCmd      `cmd:"" help:"Run an agent session"`
	Workflow WorkflowCmd `cmd:"" help:"Manage staged workflows"`
	Locks    LocksCmd    `cmd:"" help:"Manage advisory file locks"`
	Sessions SessionsCmd `cmd:"" help:"Inspect recorded sessions"`
	Setup    SetupCmd    `cmd:"" help:"Interactive setup wizard"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// RunCmd executes one agent session.
type RunCmd struct {
	Prompt        string `arg:"" help:"Task for the agent"`
	Role          string `default:"implementer" help:"Role for the session (control|planner|implementer|reviewer|verifier)"`
	Stage         string `help:"Workflow stage type the session runs in"`
	Chain         string `help:"Chain id the session works on"`
	Task          string `help:"Task id the session works on"`
	WorkflowID    string `name:"workflow" help:"Workflow id the session belongs to"`
	Model         string `help:"Model override"`
	Provider      string `help:"Provider override"`
	Config        string `help:"Config file path"`
	Workspace     string `help:"Workspace directory"`
	MaxIterations int    `help:"Iteration limit override"`
	Strict        bool   `help:"Exit non-zero when the session hits its iteration limit"`
	DryRun        bool   `help:"Print the visible tool set and exit without calling the model"`
}

// WorkflowCmd groups workflow operations.
type WorkflowCmd struct {
	Create    WorkflowCreateCmd    `cmd:"" help:"Create a workflow from a template"`
	List      WorkflowListCmd      `cmd:"" help:"List workflows"`
	Show      WorkflowShowCmd      `cmd:"" help:"Show a workflow's stages and gates"`
	Approve   WorkflowApproveCmd   `cmd:"" help:"Satisfy the current stage's gate"`
	Advance   WorkflowAdvanceCmd   `cmd:"" help:"Advance past the current stage"`
	Pause     WorkflowPauseCmd     `cmd:"" help:"Pause a workflow"`
	Resume    WorkflowResumeCmd    `cmd:"" help:"Resume a paused workflow"`
	Cancel    WorkflowCancelCmd    `cmd:"" help:"Cancel a workflow"`
	Templates WorkflowTemplatesCmd `cmd:"" help:"List available templates"`
}

// WorkflowCreateCmd instantiates a workflow from a template.
type WorkflowCreateCmd struct {
	Template string `arg:"" help:"Template name"`
	Request  string `help:"Request id the workflow fulfills"`
	Config   string `help:"Config file path"`
}

// WorkflowListCmd lists workflows.
type WorkflowListCmd struct {
	Config string `help:"Config file path"`
}

// WorkflowShowCmd shows one workflow.
type WorkflowShowCmd struct {
	ID     string `arg:"" help:"Workflow id"`
	Config string `help:"Config file path"`
}

// WorkflowApproveCmd satisfies the current stage's gate.
type WorkflowApproveCmd struct {
	ID     string `arg:"" help:"Workflow id"`
	By     string `default:"operator" help:"Who is approving"`
	Stage  int    `default:"-1" help:"Stage index to approve (default: current)"`
	Config string `help:"Config file path"`
}

// WorkflowAdvanceCmd advances a workflow whose gate is already satisfied.
type WorkflowAdvanceCmd struct {
	ID     string `arg:"" help:"Workflow id"`
	Config string `help:"Config file path"`
}

// WorkflowPauseCmd pauses a workflow.
type WorkflowPauseCmd struct {
	ID     string `arg:"" help:"Workflow id"`
	Config string `help:"Config file path"`
}

// WorkflowResumeCmd resumes a workflow.
type WorkflowResumeCmd struct {
	ID     string `arg:"" help:"Workflow id"`
	Config string `help:"Config file path"`
}

// WorkflowCancelCmd cancels a workflow.
type WorkflowCancelCmd struct {
	ID     string `arg:"" help:"Workflow id"`
	Config string `help:"Config file path"`
}

// WorkflowTemplatesCmd lists templates.
type WorkflowTemplatesCmd struct {
	Config string `help:"Config file path"`
}

// LocksCmd groups lock operations.
type LocksCmd struct {
	Acquire LocksAcquireCmd `cmd:"" help:"Acquire a scope of file patterns for a chain"`
	Release LocksReleaseCmd `cmd:"" help:"Release a chain's locks"`
	Status  LocksStatusCmd  `cmd:"" help:"Show held locks"`
	Check   LocksCheckCmd   `cmd:"" help:"Check patterns for conflicts without acquiring"`
}

// LocksAcquireCmd acquires file patterns for a chain.
type LocksAcquireCmd struct {
	Chain    string   `arg:"" help:"Chain id"`
	Patterns []string `arg:"" help:"Glob patterns to lock"`
	Owner    string   `default:"operator" help:"Lock owner"`
	Config   string   `help:"Config file path"`
}

// LocksReleaseCmd releases a chain's locks.
type LocksReleaseCmd struct {
	Chain  string `arg:"" help:"Chain id"`
	Config string `help:"Config file path"`
}

// LocksStatusCmd shows held locks.
type LocksStatusCmd struct {
	Config string `help:"Config file path"`
}

// LocksCheckCmd checks patterns for conflicts.
type LocksCheckCmd struct {
	Patterns []string `arg:"" help:"Glob patterns to check"`
	Config   string   `help:"Config file path"`
}

// SessionsCmd groups session inspection.
type SessionsCmd struct {
	List SessionsListCmd `cmd:"" help:"List recorded sessions"`
	Show SessionsShowCmd `cmd:"" help:"Replay a session transcript"`
}

// SessionsListCmd lists sessions.
type SessionsListCmd struct {
	Config string `help:"Config file path"`
}

// SessionsShowCmd replays one session.
type SessionsShowCmd struct {
	ID      string `arg:"" help:"Session id"`
	Verbose bool   `short:"v" help:"Show full message content"`
	Config  string `help:"Config file path"`
}

// SetupCmd runs the interactive setup wizard.
type SetupCmd struct{}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
