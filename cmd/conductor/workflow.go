// Workflow subcommand implementations.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vinayprograms/conductor/internal/workflow"
)

// Run creates a workflow from a template.
func (c *WorkflowCreateCmd) Run() error {
	rt, err := newRuntime(c.Config, "")
	if err != nil {
		return err
	}
	defer rt.Close()

	mgr, err := rt.workflowManager()
	if err != nil {
		return err
	}
	w, warnings, err := mgr.Create(context.Background(), c.Template, c.Request)
	printHookWarnings(warnings)
	if err != nil {
		return err
	}
	rt.telem.LogEvent("workflow_created", map[string]interface{}{
		"workflow_id": w.ID,
		"template":    w.Template,
	})
	fmt.Printf("created workflow %s (template %s v%d, %d stages)\n", w.ID, w.Template, w.TemplateVersion, len(w.Stages))
	printStages(w)
	return nil
}

// Run lists workflows.
func (c *WorkflowListCmd) Run() error {
	rt, err := newRuntime(c.Config, "")
	if err != nil {
		return err
	}
	defer rt.Close()

	mgr, err := rt.workflowManager()
	if err != nil {
		return err
	}
	ids, err := mgr.List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("no workflows")
		return nil
	}
	for _, id := range ids {
		w, err := mgr.Get(id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			continue
		}
		stageName := "-"
		if stage := w.CurrentStage(); stage != nil {
			stageName = stage.Name
		}
		fmt.Printf("%s  %-10s  %-8s  stage=%s\n", w.ID, w.Template, w.Status, stageName)
	}
	return nil
}

// Run shows a workflow.
func (c *WorkflowShowCmd) Run() error {
	rt, err := newRuntime(c.Config, "")
	if err != nil {
		return err
	}
	defer rt.Close()

	mgr, err := rt.workflowManager()
	if err != nil {
		return err
	}
	w, err := mgr.Get(c.ID)
	if err != nil {
		return err
	}
	fmt.Printf("workflow %s\n", w.ID)
	fmt.Printf("  template: %s v%d\n", w.Template, w.TemplateVersion)
	fmt.Printf("  status:   %s\n", w.Status)
	if w.RequestID != "" {
		fmt.Printf("  request:  %s\n", w.RequestID)
	}
	printStages(w)
	if len(w.Messages) > 0 {
		fmt.Println("  messages:")
		for _, msg := range w.Messages {
			fmt.Printf("    [%s stage %d] %s\n", msg.Kind, msg.Stage, msg.Content)
		}
	}
	return nil
}

// Run satisfies the current stage's gate.
func (c *WorkflowApproveCmd) Run() error {
	rt, err := newRuntime(c.Config, "")
	if err != nil {
		return err
	}
	defer rt.Close()

	mgr, err := rt.workflowManager()
	if err != nil {
		return err
	}
	w, warnings, err := mgr.SatisfyGate(context.Background(), c.ID, c.Stage, c.By)
	printHookWarnings(warnings)
	if err != nil {
		return err
	}
	rt.telem.LogEvent("gate_satisfied", map[string]interface{}{
		"workflow_id": w.ID,
		"by":          c.By,
	})
	if w.Status == workflow.StatusCompleted {
		fmt.Printf("workflow %s completed\n", w.ID)
		return nil
	}
	fmt.Printf("advanced to stage %d (%s)\n", w.CurrentStageIndex, w.CurrentStage().Name)
	return nil
}

// Run advances a workflow whose gate is already satisfied.
func (c *WorkflowAdvanceCmd) Run() error {
	rt, err := newRuntime(c.Config, "")
	if err != nil {
		return err
	}
	defer rt.Close()

	mgr, err := rt.workflowManager()
	if err != nil {
		return err
	}
	w, warnings, err := mgr.Advance(context.Background(), c.ID)
	printHookWarnings(warnings)
	if err != nil {
		return err
	}
	if w.Status == workflow.StatusCompleted {
		fmt.Printf("workflow %s completed\n", w.ID)
		return nil
	}
	fmt.Printf("advanced to stage %d (%s)\n", w.CurrentStageIndex, w.CurrentStage().Name)
	return nil
}

// Run pauses a workflow.
func (c *WorkflowPauseCmd) Run() error {
	return workflowStatusChange(c.Config, c.ID, "paused", func(mgr *workflow.Manager) error {
		return mgr.Pause(c.ID)
	})
}

// Run resumes a workflow.
func (c *WorkflowResumeCmd) Run() error {
	return workflowStatusChange(c.Config, c.ID, "resumed", func(mgr *workflow.Manager) error {
		return mgr.Resume(c.ID)
	})
}

// Run cancels a workflow.
func (c *WorkflowCancelCmd) Run() error {
	return workflowStatusChange(c.Config, c.ID, "cancelled", func(mgr *workflow.Manager) error {
		return mgr.Cancel(c.ID)
	})
}

// Run lists templates.
func (c *WorkflowTemplatesCmd) Run() error {
	rt, err := newRuntime(c.Config, "")
	if err != nil {
		return err
	}
	defer rt.Close()

	mgr, err := rt.workflowManager()
	if err != nil {
		return err
	}
	for _, name := range mgr.Templates().Names() {
		tmpl, err := mgr.Templates().Get(name)
		if err != nil {
			continue
		}
		origin := ""
		if tmpl.Builtin {
			origin = " (builtin)"
		}
		fmt.Printf("%s v%d%s\n", tmpl.Name, tmpl.Version, origin)
		for _, stage := range tmpl.Stages {
			fmt.Printf("  %-16s %-14s gate=%s\n", stage.Name, stage.Type, stage.Gate.Type)
		}
	}
	return nil
}

func workflowStatusChange(configPath, id, verb string, fn func(*workflow.Manager) error) error {
	rt, err := newRuntime(configPath, "")
	if err != nil {
		return err
	}
	defer rt.Close()

	mgr, err := rt.workflowManager()
	if err != nil {
		return err
	}
	if err := fn(mgr); err != nil {
		return err
	}
	fmt.Printf("workflow %s %s\n", id, verb)
	return nil
}

func printStages(w *workflow.Workflow) {
	fmt.Println("  stages:")
	for i, stage := range w.Stages {
		marker := " "
		if i == w.CurrentStageIndex && w.Status == workflow.StatusActive {
			marker = "▶"
		}
		gate := string(stage.Gate.Type)
		if stage.Gate.Satisfied {
			gate += " ✓"
		}
		fmt.Printf("  %s %d. %-16s %-13s gate=%s\n", marker, i, stage.Name, stage.Status, gate)
	}
}

func printHookWarnings(warnings []workflow.HookResult) {
	for _, warning := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s hook failed: %s\n", warning.Action.Type, warning.Err)
	}
}
