// Package loop runs agent sessions: the conversation cycle between an
// LLM provider and the tool catalog, with every mutation checked against
// governance before it executes.
package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vinayprograms/agentkit/logging"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/conductor/internal/catalog"
	"github.com/vinayprograms/conductor/internal/governance"
	"github.com/vinayprograms/conductor/internal/locks"
	"github.com/vinayprograms/conductor/internal/provider"
	"github.com/vinayprograms/conductor/internal/session"
	"github.com/vinayprograms/conductor/internal/workflow"
)

// Defaults bounding a session run.
const (
	DefaultMaxIterations   = 50
	DefaultMaxNestingDepth = 3
)

// Stop reasons recorded on the session beyond the provider's own.
const (
	StopMaxIterations = "max_iterations"
	StopWorkflowHalt  = "workflow_halted"
)

// Approver resolves governance "approve" decisions. A nil approver
// denies them.
type Approver interface {
	Approve(ctx context.Context, file string, action governance.Action, reason string) (bool, error)
}

// Workflows is the slice of the workflow manager the loop consults
// between iterations.
type Workflows interface {
	Get(id string) (*workflow.Workflow, error)
}

// Config bounds and wires a runner.
type Config struct {
	Workspace       string
	MaxIterations   int
	MaxNestingDepth int
}

// Request describes one session to run.
type Request struct {
	Role         catalog.Role
	Stage        catalog.StageType
	SystemPrompt string
	Prompt       string
	ChainID      string
	TaskID       string
	WorkflowID   string

	// nestingDepth is set internally when a session spawns a child.
	nestingDepth int
}

// Runner executes agent sessions against the catalog and governance.
type Runner struct {
	provider  provider.Provider
	registry  *catalog.Registry
	sessions  *session.Manager
	schema    func() (*governance.Schema, error)
	locks     *locks.Coordinator
	workflows Workflows
	approver  Approver
	logger    *logging.Logger
	cfg       Config
}

// RunnerOption configures optional collaborators.
type RunnerOption func(*Runner)

// WithLocks attaches the advisory lock coordinator. Mutations on files
// locked by another chain are denied.
func WithLocks(c *locks.Coordinator) RunnerOption {
	return func(r *Runner) { r.locks = c }
}

// WithWorkflows attaches the workflow manager so sessions halt when
// their workflow is paused or cancelled.
func WithWorkflows(w Workflows) RunnerOption {
	return func(r *Runner) { r.workflows = w }
}

// WithApprover attaches an approver for governance approve decisions.
func WithApprover(a Approver) RunnerOption {
	return func(r *Runner) { r.approver = a }
}

// NewRunner creates a session runner. The schema loader is called once
// per session start so governance edits apply to the next run.
func NewRunner(p provider.Provider, registry *catalog.Registry, sessions *session.Manager, schema func() (*governance.Schema, error), cfg Config, opts ...RunnerOption) *Runner {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxNestingDepth <= 0 {
		cfg.MaxNestingDepth = DefaultMaxNestingDepth
	}
	r := &Runner{
		provider: p,
		registry: registry,
		sessions: sessions,
		schema:   schema,
		logger:   logging.New().WithComponent("loop"),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	RegisterSpawnTool(r.registry)
	return r
}

// RegisterSpawnTool adds the spawn_agent definition. The runner
// intercepts its calls directly since children need run state no
// ExecFunc can carry.
func RegisterSpawnTool(registry *catalog.Registry) {
	registry.Register(catalog.ToolDefinition{
		Name:        "spawn_agent",
		Description: "Spawn a nested agent session with a given role and task, and wait for its result",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"role": map[string]interface{}{"type": "string", "description": "Role for the child session"},
				"task": map[string]interface{}{"type": "string", "description": "Task the child should complete"},
			},
			"required": []string{"role", "task"},
		},
		Roles: []catalog.Role{catalog.RoleControl, catalog.RolePlanner},
	})
}

// Run executes one session to a terminal outcome. The returned session
// is persisted even when the run errors.
func (r *Runner) Run(ctx context.Context, req Request) (*session.Session, error) {
	sess, err := r.sessions.Create(string(req.Role), req.nestingDepth)
	if err != nil {
		return nil, err
	}
	sess.StageType = string(req.Stage)
	sess.ChainID = req.ChainID
	sess.TaskID = req.TaskID
	sess.WorkflowID = req.WorkflowID

	schema, err := r.schema()
	if err != nil {
		return r.fail(sess, fmt.Errorf("failed to load governance schema: %w", err))
	}

	ctx, span := r.startSessionSpan(ctx, sess)

	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt(req.Role, req.Stage)
	}
	sess.AppendMessage(provider.Message{Role: provider.RoleSystem, Content: systemPrompt})
	sess.AppendMessage(provider.Message{Role: provider.RoleUser, Content: req.Prompt})

	visible := r.registry.ToolsForStage(req.Role, req.Stage)
	specs := toolSpecs(visible)
	visibleSet := make(map[string]catalog.ToolDefinition, len(visible))
	for _, def := range visible {
		visibleSet[def.Name] = def
	}
	r.logger.Info("session started", map[string]interface{}{
		"session_id": sess.ID,
		"role":       sess.Role,
		"stage":      sess.StageType,
		"tools":      len(specs),
	})

	for sess.Iterations < r.cfg.MaxIterations {
		if halted, status := r.workflowHalted(req.WorkflowID); halted {
			sess.Outcome = session.OutcomeInterrupted
			sess.StopReason = StopWorkflowHalt
			sess.Error = fmt.Sprintf("workflow is %s", status)
			return r.finish(sess, span, nil)
		}

		resp, err := r.provider.Chat(ctx, provider.ChatRequest{Messages: sess.Messages, Tools: specs})
		if err != nil {
			r.endSessionSpan(span, sess, err)
			return r.fail(sess, err)
		}
		sess.Iterations++
		sess.AddUsage(resp.Usage)
		sess.AppendMessage(provider.Message{
			Role:      provider.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			sess.StopReason = resp.StopReason
			if resp.StopReason == provider.StopMaxTokens {
				sess.Outcome = session.OutcomeInterrupted
			} else {
				sess.Outcome = session.OutcomeSuccess
			}
			return r.finish(sess, span, nil)
		}

		for _, tc := range resp.ToolCalls {
			r.handleToolCall(ctx, sess, req, schema, visibleSet, tc)
			if err := r.sessions.Update(sess); err != nil {
				r.logger.Warn("session persist failed", map[string]interface{}{
					"session_id": sess.ID,
					"error":      err.Error(),
				})
			}
		}
	}

	sess.Outcome = session.OutcomeInterrupted
	sess.StopReason = StopMaxIterations
	return r.finish(sess, span, nil)
}

// handleToolCall checks one requested call against visibility,
// governance, and locks, executes it when allowed, and appends the tool
// result message either way.
func (r *Runner) handleToolCall(ctx context.Context, sess *session.Session, req Request, schema *governance.Schema, visible map[string]catalog.ToolDefinition, tc provider.ToolCall) {
	start := time.Now()
	rec := session.ToolCallRecord{Tool: tc.Name, Args: tc.Args, Iteration: sess.Iterations}

	deny := func(reason string) {
		rec.Allowed = false
		rec.DenyReason = reason
		rec.DurationMs = time.Since(start).Milliseconds()
		sess.AppendToolCall(rec)
		sess.AppendMessage(provider.Message{
			Role:       provider.RoleTool,
			Content:    "denied: " + reason,
			ToolCallID: tc.ID,
		})
		r.logger.Warn("tool call denied", map[string]interface{}{
			"session_id": sess.ID,
			"tool":       tc.Name,
			"reason":     reason,
		})
	}

	def, ok := visible[tc.Name]
	if !ok {
		deny(fmt.Sprintf("tool %q is not available to role %s in stage %s", tc.Name, sess.Role, sess.StageType))
		return
	}

	if file, action, mutates := r.mutationFor(tc.Name, tc.Args); mutates {
		decision := schema.CheckMutationForRole(file, action, sess.Role)
		switch decision.Policy {
		case governance.PolicyDeny:
			deny(denyReason(decision, file, action))
			return
		case governance.PolicyApprove:
			if r.approver == nil {
				deny(fmt.Sprintf("%s of %s requires approval but no approver is attached", action, file))
				return
			}
			approved, err := r.approver.Approve(ctx, file, action, decision.Reason)
			if err != nil {
				deny(fmt.Sprintf("approval check failed: %v", err))
				return
			}
			if !approved {
				deny(fmt.Sprintf("%s of %s was not approved", action, file))
				return
			}
		}
		if r.locks != nil {
			locked, holder, err := r.locks.IsFileLocked(file)
			if err == nil && locked && holder != req.ChainID {
				deny(fmt.Sprintf("file %s is locked by chain %s", file, holder))
				return
			}
		}
	}

	rec.Allowed = true
	var result interface{}
	var execErr error
	execCtx, toolSpan := r.startToolSpan(ctx, sess, tc.Name)
	if tc.Name == "spawn_agent" {
		result, execErr = r.spawnChild(execCtx, sess, req, tc.Args)
	} else if def.Execute != nil {
		result, execErr = def.Execute(execCtx, tc.Args)
	} else {
		execErr = fmt.Errorf("tool %q has no executor", tc.Name)
	}
	r.endToolSpan(toolSpan, execErr)

	rec.DurationMs = time.Since(start).Milliseconds()
	content := ""
	if execErr != nil {
		rec.Error = execErr.Error()
		content = "error: " + execErr.Error()
	} else {
		content = renderResult(result)
		rec.Result = content
	}
	sess.AppendToolCall(rec)
	sess.AppendMessage(provider.Message{
		Role:       provider.RoleTool,
		Content:    content,
		ToolCallID: tc.ID,
	})
}

// spawnChild runs a nested session synchronously and returns its final
// answer. Only spawn-privileged roles get here through visibility, but
// the privilege and depth checks hold on their own.
func (r *Runner) spawnChild(ctx context.Context, parent *session.Session, req Request, args map[string]interface{}) (interface{}, error) {
	if !catalog.CanSpawn(req.Role) {
		return nil, fmt.Errorf("role %s may not spawn nested sessions", req.Role)
	}
	childDepth := parent.NestingDepth + 1
	if childDepth >= r.cfg.MaxNestingDepth {
		return nil, fmt.Errorf("nesting depth limit reached (%d)", r.cfg.MaxNestingDepth)
	}
	roleArg, _ := args["role"].(string)
	task, _ := args["task"].(string)
	if roleArg == "" || task == "" {
		return nil, fmt.Errorf("role and task are required")
	}

	child, err := r.Run(ctx, Request{
		Role:         catalog.Role(roleArg),
		Stage:        req.Stage,
		Prompt:       task,
		ChainID:      req.ChainID,
		WorkflowID:   req.WorkflowID,
		nestingDepth: childDepth,
	})
	if child == nil {
		return nil, err
	}
	summary := finalContent(child)
	if child.Outcome != session.OutcomeSuccess {
		return nil, fmt.Errorf("child session %s ended with %s: %s", child.ID, child.Outcome, child.Error)
	}
	return map[string]interface{}{
		"session_id":    child.ID,
		"result":        summary,
		"iterations":    child.Iterations,
		"input_tokens":  child.TokenUsage.InputTokens,
		"output_tokens": child.TokenUsage.OutputTokens,
	}, nil
}

// mutationFor maps a tool call to the governance file and action it
// implies. Non-mutating tools report false.
func (r *Runner) mutationFor(name string, args map[string]interface{}) (string, governance.Action, bool) {
	switch name {
	case "write_file":
		file, _ := args["path"].(string)
		if file == "" {
			return "", "", false
		}
		action := governance.ActionCreate
		if _, err := os.Stat(filepath.Join(r.cfg.Workspace, filepath.FromSlash(file))); err == nil {
			action = governance.ActionModify
		}
		return file, action, true
	case "delete_file":
		file, _ := args["path"].(string)
		if file == "" {
			return "", "", false
		}
		return file, governance.ActionDelete, true
	case "create_request":
		title, _ := args["title"].(string)
		return "requests/" + slugify(title) + ".md", governance.ActionCreate, true
	}
	return "", "", false
}

func (r *Runner) workflowHalted(workflowID string) (bool, string) {
	if r.workflows == nil || workflowID == "" {
		return false, ""
	}
	w, err := r.workflows.Get(workflowID)
	if err != nil {
		return false, ""
	}
	if w.Status != workflow.StatusActive {
		return true, w.Status
	}
	return false, ""
}

func (r *Runner) fail(sess *session.Session, err error) (*session.Session, error) {
	sess.Outcome = session.OutcomeFailure
	sess.Error = err.Error()
	if persistErr := r.sessions.Update(sess); persistErr != nil {
		r.logger.Error("failed to persist failed session", map[string]interface{}{
			"session_id": sess.ID,
			"error":      persistErr.Error(),
		})
	}
	return sess, err
}

func (r *Runner) finish(sess *session.Session, span trace.Span, err error) (*session.Session, error) {
	if persistErr := r.sessions.Update(sess); persistErr != nil && err == nil {
		err = persistErr
	}
	r.endSessionSpan(span, sess, err)
	r.logger.Info("session finished", map[string]interface{}{
		"session_id": sess.ID,
		"outcome":    sess.Outcome,
		"iterations": sess.Iterations,
	})
	return sess, err
}

func denyReason(d governance.Decision, file string, action governance.Action) string {
	if d.Reason != "" {
		return d.Reason
	}
	return fmt.Sprintf("%s of %s is denied by governance", action, file)
}

func defaultSystemPrompt(role catalog.Role, stage catalog.StageType) string {
	prompt := fmt.Sprintf("You are the %s agent.", role)
	if stage != "" {
		prompt += fmt.Sprintf(" You are working in the %s stage.", stage)
	}
	return prompt + " Use the available tools to complete the task, then reply with a final summary."
}

func toolSpecs(defs []catalog.ToolDefinition) []provider.ToolSpec {
	specs := make([]provider.ToolSpec, len(defs))
	for i, def := range defs {
		specs[i] = provider.ToolSpec{Name: def.Name, Description: def.Description, Parameters: def.Parameters}
	}
	return specs
}

// finalContent returns the last assistant message of a session.
func finalContent(sess *session.Session) string {
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		if sess.Messages[i].Role == provider.RoleAssistant && sess.Messages[i].Content != "" {
			return sess.Messages[i].Content
		}
	}
	return ""
}

// renderResult turns a tool result into message content. Strings pass
// through; everything else is JSON.
func renderResult(result interface{}) string {
	switch v := result.(type) {
	case nil:
		return "ok"
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func slugify(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r == ' ' || r == '-' || r == '_':
			out = append(out, '-')
		}
	}
	for len(out) > 0 && out[0] == '-' {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == '-' {
		out = out[:len(out)-1]
	}
	return string(out)
}
