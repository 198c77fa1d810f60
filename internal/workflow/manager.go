package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/logging"
)

// ErrGateNotSatisfied is returned by Advance when the current stage's
// gate is still open.
var ErrGateNotSatisfied = errors.New("stage gate not satisfied")

// Manager drives workflows through their stages. All mutations operate
// on an in-memory copy loaded from disk and persist only on success, so
// a failed transition leaves the stored record untouched.
type Manager struct {
	store     *FileStore
	templates *Templates
	hooks     *HookRunner
	logger    *logging.Logger
	now       func() time.Time
	mu        sync.Mutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the manager's time source for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager over a store, template registry, and hook
// runner.
func NewManager(store *FileStore, templates *Templates, hooks *HookRunner, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     store,
		templates: templates,
		hooks:     hooks,
		logger:    logging.New().WithComponent("workflow"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Templates exposes the template registry.
func (m *Manager) Templates() *Templates {
	return m.templates
}

// Create instantiates a workflow from the latest version of a template
// and activates its first stage. A blocking entry-hook failure aborts
// creation before anything is persisted.
func (m *Manager) Create(ctx context.Context, templateName, requestID string) (*Workflow, []HookResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tmpl, err := m.templates.Get(templateName)
	if err != nil {
		return nil, nil, err
	}
	if len(tmpl.Stages) == 0 {
		return nil, nil, fmt.Errorf("template %s has no stages", templateName)
	}

	now := m.now()
	w := &Workflow{
		ID:              uuid.NewString(),
		RequestID:       requestID,
		Template:        tmpl.Name,
		TemplateVersion: tmpl.Version,
		Status:          StatusActive,
		Stages:          make([]Stage, len(tmpl.Stages)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for i, ts := range tmpl.Stages {
		w.Stages[i] = Stage{
			Name:   ts.Name,
			Type:   ts.Type,
			Status: StagePending,
			RoleID: ts.RoleID,
			Gate:   ts.Gate,
			Hooks:  ts.Hooks,
		}
	}

	warnings, err := m.activateStage(ctx, w, 0)
	if err != nil {
		return nil, warnings, err
	}
	if err := m.save(w); err != nil {
		return nil, warnings, err
	}
	m.logger.Info("workflow created", map[string]interface{}{
		"workflow_id": w.ID,
		"template":    tmpl.Name,
		"version":     tmpl.Version,
	})
	return w, warnings, nil
}

// Get loads a workflow by id.
func (m *Manager) Get(id string) (*Workflow, error) {
	return m.store.Load(id)
}

// List returns all workflow ids.
func (m *Manager) List() ([]string, error) {
	return m.store.List()
}

// Advance moves a workflow past its current stage. The gate must already
// be satisfied. Exit hooks run before any status changes; a blocking
// failure on either side of the transition aborts it and the persisted
// record is unchanged.
func (m *Manager) Advance(ctx context.Context, id string) (*Workflow, []HookResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.advanceLocked(ctx, id)
}

func (m *Manager) advanceLocked(ctx context.Context, id string) (*Workflow, []HookResult, error) {
	w, err := m.store.Load(id)
	if err != nil {
		return nil, nil, err
	}
	if w.Status != StatusActive {
		return nil, nil, fmt.Errorf("workflow %s is %s, not active", id, w.Status)
	}
	stage := w.CurrentStage()
	if stage == nil {
		return nil, nil, fmt.Errorf("workflow %s has no current stage", id)
	}
	if !stage.Gate.Satisfied {
		return nil, nil, fmt.Errorf("stage %s: %w", stage.Name, ErrGateNotSatisfied)
	}

	var warnings []HookResult
	if stage.Hooks != nil {
		exitWarnings, err := m.hooks.Run(ctx, stage.Hooks.OnExit)
		warnings = append(warnings, exitWarnings...)
		if err != nil {
			return nil, warnings, fmt.Errorf("stage %s exit: %w", stage.Name, err)
		}
	}

	now := m.now()
	stage.Status = StageCompleted
	stage.CompletedAt = &now
	w.CurrentStageIndex++

	if w.CurrentStageIndex >= len(w.Stages) {
		w.Status = StatusCompleted
	} else {
		enterWarnings, err := m.activateStage(ctx, w, w.CurrentStageIndex)
		warnings = append(warnings, enterWarnings...)
		if err != nil {
			return nil, warnings, err
		}
	}

	if err := m.save(w); err != nil {
		return nil, warnings, err
	}
	m.logger.Info("workflow advanced", map[string]interface{}{
		"workflow_id": w.ID,
		"stage_index": w.CurrentStageIndex,
		"status":      w.Status,
	})
	return w, warnings, nil
}

// activateStage marks a stage active, runs its entry hooks, satisfies
// auto gates, and queues the gate prompt for gates that want one up
// front.
func (m *Manager) activateStage(ctx context.Context, w *Workflow, idx int) ([]HookResult, error) {
	stage := &w.Stages[idx]
	now := m.now()
	stage.Status = StageActive
	stage.StartedAt = &now

	var warnings []HookResult
	if stage.Hooks != nil {
		var err error
		warnings, err = m.hooks.Run(ctx, stage.Hooks.OnEnter)
		if err != nil {
			return warnings, fmt.Errorf("stage %s entry: %w", stage.Name, err)
		}
	}

	if stage.Gate.Type == GateAuto {
		stage.Gate.Satisfied = true
		stage.Gate.SatisfiedBy = "auto"
		stage.Gate.SatisfiedAt = &now
	}
	if stage.Gate.Prompt != "" && !stage.Gate.AgentTriggered {
		w.Messages = append(w.Messages, Message{
			Stage:     idx,
			Kind:      MessageGatePrompt,
			Content:   stage.Gate.Prompt,
			CreatedAt: now,
		})
	}
	return warnings, nil
}

// SatisfyGate marks a stage's gate satisfied and advances. The stage
// must be the current one; pass a negative index to mean "current".
// human_approval gates take the approver's identity; verification_pass
// gates run their commands and require every one to exit zero;
// chain_complete gates are satisfied only through OnChainComplete.
func (m *Manager) SatisfyGate(ctx context.Context, id string, stageIdx int, satisfiedBy string) (*Workflow, []HookResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, err := m.store.Load(id)
	if err != nil {
		return nil, nil, err
	}
	if w.Status != StatusActive {
		return nil, nil, fmt.Errorf("workflow %s is %s, not active", id, w.Status)
	}
	stage := w.CurrentStage()
	if stage == nil {
		return nil, nil, fmt.Errorf("workflow %s has no current stage", id)
	}
	if stageIdx >= 0 && stageIdx != w.CurrentStageIndex {
		return nil, nil, fmt.Errorf("stage %d is not current (current is %d)", stageIdx, w.CurrentStageIndex)
	}
	if stage.Gate.Satisfied {
		return nil, nil, fmt.Errorf("stage %s gate is already satisfied", stage.Name)
	}

	switch stage.Gate.Type {
	case GateHumanApproval:
		// satisfied below
	case GateVerificationPass:
		for _, command := range stage.Gate.Commands {
			output, err := m.hooks.runCommand(ctx, command)
			if err != nil {
				return nil, nil, fmt.Errorf("verification command failed: %w\n%s", err, output)
			}
		}
	case GateChainComplete:
		return nil, nil, fmt.Errorf("stage %s gate is satisfied by chain completion, not manually", stage.Name)
	default:
		return nil, nil, fmt.Errorf("stage %s gate type %s cannot be satisfied manually", stage.Name, stage.Gate.Type)
	}

	now := m.now()
	stage.Gate.Satisfied = true
	stage.Gate.SatisfiedBy = satisfiedBy
	stage.Gate.SatisfiedAt = &now
	if err := m.save(w); err != nil {
		return nil, nil, err
	}
	return m.advanceLocked(ctx, id)
}

// RequestGatePrompt emits the deferred prompt of an agent-triggered
// approval gate and returns its text.
func (m *Manager) RequestGatePrompt(id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, err := m.store.Load(id)
	if err != nil {
		return "", err
	}
	stage := w.CurrentStage()
	if stage == nil {
		return "", fmt.Errorf("workflow %s has no current stage", id)
	}
	if stage.Gate.Type != GateHumanApproval || !stage.Gate.AgentTriggered {
		return "", fmt.Errorf("stage %s gate does not take agent-triggered prompts", stage.Name)
	}
	if stage.Gate.Satisfied {
		return "", fmt.Errorf("stage %s gate is already satisfied", stage.Name)
	}
	w.Messages = append(w.Messages, Message{
		Stage:     w.CurrentStageIndex,
		Kind:      MessageGatePrompt,
		Content:   stage.Gate.Prompt,
		CreatedAt: m.now(),
	})
	if err := m.save(w); err != nil {
		return "", err
	}
	return stage.Gate.Prompt, nil
}

// BindStage attaches the chain and session driving the current stage.
func (m *Manager) BindStage(id, chainID, sessionID string) error {
	return m.mutate(id, func(w *Workflow) error {
		stage := w.CurrentStage()
		if stage == nil {
			return fmt.Errorf("workflow %s has no current stage", id)
		}
		if chainID != "" {
			stage.ChainID = chainID
		}
		if sessionID != "" {
			stage.SessionID = sessionID
		}
		return nil
	})
}

// MarkAwaitingGate records that the current stage's work is done and the
// workflow is parked on its gate.
func (m *Manager) MarkAwaitingGate(id string) error {
	return m.mutate(id, func(w *Workflow) error {
		stage := w.CurrentStage()
		if stage == nil {
			return fmt.Errorf("workflow %s has no current stage", id)
		}
		if stage.Status != StageActive {
			return fmt.Errorf("stage %s is %s, not active", stage.Name, stage.Status)
		}
		stage.Status = StageAwaitingGate
		return nil
	})
}

// Pause suspends an active workflow.
func (m *Manager) Pause(id string) error {
	return m.setStatus(id, StatusActive, StatusPaused)
}

// Resume reactivates a paused workflow.
func (m *Manager) Resume(id string) error {
	return m.setStatus(id, StatusPaused, StatusActive)
}

// Fail marks a workflow failed. Terminal statuses are not overwritten.
func (m *Manager) Fail(id string) error {
	return m.mutate(id, func(w *Workflow) error {
		if w.Status == StatusCompleted || w.Status == StatusCancelled || w.Status == StatusFailed {
			return fmt.Errorf("workflow %s is already %s", id, w.Status)
		}
		w.Status = StatusFailed
		return nil
	})
}

// Cancel terminates a workflow. Completed workflows cannot be cancelled.
func (m *Manager) Cancel(id string) error {
	return m.mutate(id, func(w *Workflow) error {
		if w.Status == StatusCompleted || w.Status == StatusCancelled {
			return fmt.Errorf("workflow %s is already %s", id, w.Status)
		}
		w.Status = StatusCancelled
		return nil
	})
}

// OnChainComplete satisfies chain_complete gates waiting on the chain
// and advances their workflows. Returns the ids of workflows advanced.
func (m *Manager) OnChainComplete(ctx context.Context, chainID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids, err := m.store.List()
	if err != nil {
		return nil, err
	}
	var advanced []string
	for _, id := range ids {
		w, err := m.store.Load(id)
		if err != nil || w.Status != StatusActive {
			continue
		}
		stage := w.CurrentStage()
		if stage == nil || stage.Gate.Type != GateChainComplete || stage.Gate.Satisfied {
			continue
		}
		gateChain := stage.Gate.ChainID
		if gateChain == "" {
			gateChain = stage.ChainID
		}
		if gateChain != chainID {
			continue
		}
		now := m.now()
		stage.Gate.Satisfied = true
		stage.Gate.SatisfiedBy = "chain:" + chainID
		stage.Gate.SatisfiedAt = &now
		if err := m.save(w); err != nil {
			return advanced, err
		}
		if _, _, err := m.advanceLocked(ctx, id); err != nil {
			m.logger.Warn("advance after chain completion failed", map[string]interface{}{
				"workflow_id": id,
				"chain_id":    chainID,
				"error":       err.Error(),
			})
			continue
		}
		advanced = append(advanced, id)
	}
	return advanced, nil
}

func (m *Manager) setStatus(id, from, to string) error {
	return m.mutate(id, func(w *Workflow) error {
		if w.Status != from {
			return fmt.Errorf("workflow %s is %s, not %s", id, w.Status, from)
		}
		w.Status = to
		return nil
	})
}

func (m *Manager) mutate(id string, fn func(*Workflow) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, err := m.store.Load(id)
	if err != nil {
		return err
	}
	if err := fn(w); err != nil {
		return err
	}
	return m.save(w)
}

func (m *Manager) save(w *Workflow) error {
	w.UpdatedAt = m.now()
	return m.store.Save(w)
}
