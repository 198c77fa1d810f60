// Package main is the entry point for the conductor CLI.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/vinayprograms/agentkit/credentials"

	"github.com/vinayprograms/conductor/internal/catalog"
	"github.com/vinayprograms/conductor/internal/governance"
	"github.com/vinayprograms/conductor/internal/loop"
	"github.com/vinayprograms/conductor/internal/session"
	"github.com/vinayprograms/conductor/internal/workflow"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// globalCreds holds loaded credentials (file > env fallback happens in buildProvider)
var globalCreds *credentials.Credentials

func init() {
	if creds, _, err := credentials.Load(); err == nil && creds != nil {
		globalCreds = creds
	}

	// Load .env for any additional env vars
	_ = godotenv.Load()
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("conductor"),
		kong.Description("Governed agent session orchestration: roles, stages, gates, and file governance."),
		kong.UsageOnError(),
		kongVars(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}

// Run executes one agent session.
func (c *RunCmd) Run() error {
	rt, err := newRuntime(c.Config, c.Workspace)
	if err != nil {
		return err
	}
	defer rt.Close()

	chains, err := rt.chainStore()
	if err != nil {
		return err
	}
	workflows, err := rt.workflowManager()
	if err != nil {
		return err
	}
	sessions, err := rt.sessionManager()
	if err != nil {
		return err
	}
	coord, err := rt.lockCoordinator()
	if err != nil {
		return err
	}

	registry := catalog.NewRegistry()
	if err := catalog.RegisterBuiltins(registry, catalog.Deps{
		Workspace:  rt.workspace,
		Chain:      chains,
		Gates:      workflows,
		WorkflowID: c.WorkflowID,
	}); err != nil {
		return err
	}

	role := catalog.Role(c.Role)
	stage := catalog.StageType(c.Stage)

	if c.DryRun {
		loop.RegisterSpawnTool(registry)
		names := catalog.Names(registry.ToolsForStage(role, stage))
		fmt.Printf("role=%s stage=%s tools=%d\n", role, stage, len(names))
		for _, name := range names {
			fmt.Println("  " + name)
		}
		return nil
	}

	llmProvider, err := rt.buildProvider(c.Role, c.Model, c.Provider)
	if err != nil {
		return err
	}

	cfg := loop.Config{
		Workspace:       rt.workspace,
		MaxIterations:   rt.cfg.Limits.MaxIterations,
		MaxNestingDepth: rt.cfg.Limits.MaxNestingDepth,
	}
	if c.MaxIterations > 0 {
		cfg.MaxIterations = c.MaxIterations
	}

	runner := loop.NewRunner(llmProvider, registry, sessions, rt.schemaLoader(), cfg,
		loop.WithLocks(coord),
		loop.WithWorkflows(workflows),
		loop.WithApprover(consoleApprover{}),
	)

	// Chain completions observed during the session open chain_complete
	// gates without polling.
	if rt.cfg.Workflow.Watch {
		watcher, err := workflow.NewWatcher(filepath.Join(rt.storage, "chains"), workflows, chains)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: chain watcher disabled: %v\n", err)
		} else {
			defer watcher.Close()
		}
	}

	fmt.Fprintf(os.Stderr, "Running %s session", c.Role)
	if c.Stage != "" {
		fmt.Fprintf(os.Stderr, " (%s stage)", c.Stage)
	}
	fmt.Fprintln(os.Stderr)

	sess, runErr := runner.Run(context.Background(), loop.Request{
		Role:       role,
		Stage:      stage,
		Prompt:     c.Prompt,
		ChainID:    c.Chain,
		TaskID:     c.Task,
		WorkflowID: c.WorkflowID,
	})
	if sess != nil {
		rt.telem.LogEvent("session_complete", map[string]interface{}{
			"session_id": sess.ID,
			"outcome":    sess.Outcome,
			"iterations": sess.Iterations,
		})
	}
	if runErr != nil {
		return fmt.Errorf("session failed: %w", runErr)
	}

	// Park the workflow on its gate when the agent finished but the gate
	// is still open.
	if c.WorkflowID != "" && sess.Outcome == session.OutcomeSuccess {
		if w, err := workflows.Get(c.WorkflowID); err == nil {
			if stage := w.CurrentStage(); stage != nil && !stage.Gate.Satisfied {
				if err := workflows.MarkAwaitingGate(c.WorkflowID); err == nil {
					fmt.Fprintf(os.Stderr, "⏸ Workflow %s is awaiting its %s gate\n", c.WorkflowID, stage.Gate.Type)
				}
			}
		}
	}

	switch sess.Outcome {
	case session.OutcomeSuccess:
		fmt.Fprintf(os.Stderr, "✓ Session %s complete (%d iterations, %d in / %d out tokens)\n",
			sess.ID, sess.Iterations, sess.TokenUsage.InputTokens, sess.TokenUsage.OutputTokens)
		if content := lastAssistantContent(sess); content != "" {
			fmt.Println(content)
		}
		return nil
	case session.OutcomeInterrupted:
		fmt.Fprintf(os.Stderr, "⚠ Session %s interrupted: %s\n", sess.ID, sess.StopReason)
		if c.Strict {
			os.Exit(2)
		}
		return nil
	default:
		return fmt.Errorf("session %s ended with %s: %s", sess.ID, sess.Outcome, sess.Error)
	}
}

// consoleApprover resolves governance approve decisions on stdin.
type consoleApprover struct{}

func (consoleApprover) Approve(ctx context.Context, file string, action governance.Action, reason string) (bool, error) {
	fmt.Fprintf(os.Stderr, "⚠ Approval required: %s %s", action, file)
	if reason != "" {
		fmt.Fprintf(os.Stderr, " (%s)", reason)
	}
	fmt.Fprint(os.Stderr, " [y/N]: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func lastAssistantContent(sess *session.Session) string {
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		if sess.Messages[i].Role == "assistant" && sess.Messages[i].Content != "" {
			return sess.Messages[i].Content
		}
	}
	return ""
}

// Run shows version information.
func (c *VersionCmd) Run() error {
	fmt.Printf("conductor version %s (commit: %s, built: %s)\n", version, commit, buildTime)
	return nil
}
