// Shared bootstrap for CLI commands: config, storage, provider, and the
// component graph behind each command.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/telemetry"

	"github.com/vinayprograms/conductor/internal/chain"
	"github.com/vinayprograms/conductor/internal/config"
	"github.com/vinayprograms/conductor/internal/governance"
	"github.com/vinayprograms/conductor/internal/locks"
	"github.com/vinayprograms/conductor/internal/provider"
	"github.com/vinayprograms/conductor/internal/session"
	"github.com/vinayprograms/conductor/internal/workflow"
)

// Runtime is the shared component graph for one command invocation.
type Runtime struct {
	cfg       *config.Config
	workspace string
	storage   string
	telem     telemetry.Exporter
}

// newRuntime loads config and resolves the workspace and storage paths.
func newRuntime(configPath, workspace string) (*Runtime, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	if workspace == "" {
		workspace, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}
	if !filepath.IsAbs(workspace) {
		workspace, _ = filepath.Abs(workspace)
	}

	storage := cfg.Storage.Path
	if !filepath.IsAbs(storage) {
		storage = filepath.Join(workspace, storage)
	}
	if err := os.MkdirAll(storage, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	var telem telemetry.Exporter
	if cfg.Telemetry.Enabled {
		telem, err = telemetry.NewExporter(cfg.Telemetry.Protocol, cfg.Telemetry.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to create telemetry exporter: %w", err)
		}
	} else {
		telem = telemetry.NewNoopExporter()
	}

	return &Runtime{cfg: cfg, workspace: workspace, storage: storage, telem: telem}, nil
}

// Close flushes telemetry.
func (rt *Runtime) Close() {
	if rt.telem != nil {
		rt.telem.Close()
	}
}

func (rt *Runtime) chainStore() (*chain.FileStore, error) {
	return chain.NewFileStore(filepath.Join(rt.storage, "chains"))
}

func (rt *Runtime) sessionManager() (*session.Manager, error) {
	store, err := session.NewFileStore(filepath.Join(rt.storage, "sessions"))
	if err != nil {
		return nil, err
	}
	return session.NewManager(store), nil
}

func (rt *Runtime) lockCoordinator() (*locks.Coordinator, error) {
	ttl := locks.DefaultTTL
	if rt.cfg.Locks.TTL != "" {
		parsed, err := time.ParseDuration(rt.cfg.Locks.TTL)
		if err != nil {
			return nil, fmt.Errorf("invalid lock ttl %q: %w", rt.cfg.Locks.TTL, err)
		}
		ttl = parsed
	}
	return locks.NewCoordinator(filepath.Join(rt.storage, "locks.json"), locks.WithTTL(ttl)), nil
}

func (rt *Runtime) workflowManager() (*workflow.Manager, error) {
	store, err := workflow.NewFileStore(filepath.Join(rt.storage, "workflows"))
	if err != nil {
		return nil, err
	}
	chains, err := rt.chainStore()
	if err != nil {
		return nil, err
	}
	templates := workflow.NewTemplates()
	if dir := rt.cfg.Workflow.TemplateDir; dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		for _, entry := range entries {
			ext := filepath.Ext(entry.Name())
			if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
				continue
			}
			if _, err := templates.LoadFile(filepath.Join(dir, entry.Name())); err != nil {
				fmt.Fprintf(os.Stderr, "warning: skipping template %s: %v\n", entry.Name(), err)
			}
		}
	}
	hooks := workflow.NewHookRunner(rt.workspace, chains)
	return workflow.NewManager(store, templates, hooks), nil
}

// schemaLoader reloads the governance schema per session so edits apply
// to the next run.
func (rt *Runtime) schemaLoader() func() (*governance.Schema, error) {
	path := rt.cfg.Governance.SchemaPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(rt.workspace, path)
	}
	return func() (*governance.Schema, error) {
		return governance.Load(path)
	}
}

// buildProvider creates the LLM backend for a role, applying profile and
// CLI overrides. Keys come from credentials.toml first, env second.
func (rt *Runtime) buildProvider(role, modelOverride, providerOverride string) (provider.Provider, error) {
	llmCfg := rt.cfg.GetProfile(role)
	if modelOverride != "" {
		llmCfg.Model = modelOverride
	}
	if providerOverride != "" {
		llmCfg.Provider = providerOverride
	}
	if llmCfg.Model == "" {
		return nil, fmt.Errorf("no model configured; set [llm] model in conductor.toml or pass --model")
	}

	name := llmCfg.Provider
	if name == "" {
		name = llm.InferProviderFromModel(llmCfg.Model)
	}
	apiKey := ""
	if globalCreds != nil {
		apiKey = globalCreds.GetAPIKey(name)
	}
	if apiKey == "" {
		if envVar := llmCfg.APIKeyEnv; envVar != "" {
			apiKey = os.Getenv(envVar)
		} else if envVar := config.DefaultAPIKeyEnv(name); envVar != "" {
			apiKey = os.Getenv(envVar)
		}
	}

	return provider.New(provider.Config{
		Provider:  name,
		Model:     llmCfg.Model,
		APIKey:    apiKey,
		MaxTokens: llmCfg.MaxTokens,
		BaseURL:   llmCfg.BaseURL,
	})
}
