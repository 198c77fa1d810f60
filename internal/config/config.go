// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the conductor configuration.
type Config struct {
	LLM        LLMConfig          `toml:"llm"`
	Profiles   map[string]Profile `toml:"profiles"` // Per-role model overrides
	Storage    StorageConfig      `toml:"storage"`
	Governance GovernanceConfig   `toml:"governance"`
	Locks      LocksConfig        `toml:"locks"`
	Limits     LimitsConfig       `toml:"limits"`
	Telemetry  TelemetryConfig    `toml:"telemetry"`
	Workflow   WorkflowConfig     `toml:"workflow"`
}

// LLMConfig contains LLM provider settings.
type LLMConfig struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	APIKeyEnv string `toml:"api_key_env"`
	MaxTokens int    `toml:"max_tokens"`
	BaseURL   string `toml:"base_url"` // Custom API endpoint (OpenRouter, LiteLLM, Ollama)
}

// Profile overrides the default LLM settings for one role.
type Profile struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	APIKeyEnv string `toml:"api_key_env"`
	MaxTokens int    `toml:"max_tokens"`
	BaseURL   string `toml:"base_url"`
}

// StorageConfig contains persistent state settings.
type StorageConfig struct {
	Path string `toml:"path"` // Base directory for sessions, workflows, chains, locks
}

// GovernanceConfig points at the mutation rule schema.
type GovernanceConfig struct {
	SchemaPath string `toml:"schema_path"`
}

// LocksConfig tunes the advisory lock coordinator.
type LocksConfig struct {
	TTL string `toml:"ttl"` // Go duration, e.g. "24h"
}

// LimitsConfig bounds session execution.
type LimitsConfig struct {
	MaxIterations   int `toml:"max_iterations"`
	MaxNestingDepth int `toml:"max_nesting_depth"`
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"` // OTLP endpoint (e.g., localhost:4317)
	Protocol string `toml:"protocol"` // grpc (default) or http
}

// WorkflowConfig contains workflow engine settings.
type WorkflowConfig struct {
	TemplateDir string `toml:"template_dir"` // Extra template YAML files to load
	Watch       bool   `toml:"watch"`        // Watch chain records for completion
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		LLM: LLMConfig{
			MaxTokens: 4096,
		},
		Storage: StorageConfig{
			Path: ".conductor",
		},
		Governance: GovernanceConfig{
			SchemaPath: "governance.yaml",
		},
		Locks: LocksConfig{
			TTL: "24h",
		},
		Limits: LimitsConfig{
			MaxIterations:   50,
			MaxNestingDepth: 3,
		},
		Telemetry: TelemetryConfig{
			Protocol: "noop",
		},
		Workflow: WorkflowConfig{
			Watch: true,
		},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads conductor.toml from the current directory, falling
// back to defaults when the file does not exist.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	path := filepath.Join(cwd, "conductor.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return New(), nil
	}
	return LoadFile(path)
}

// GetAPIKey returns the API key from the configured environment variable.
// If api_key_env is not set, uses the default env var for the provider.
func (c *Config) GetAPIKey() string {
	envVar := c.LLM.APIKeyEnv
	if envVar == "" {
		envVar = DefaultAPIKeyEnv(c.LLM.Provider)
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// DefaultAPIKeyEnv returns the default environment variable name for a provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	case "mistral":
		return "MISTRAL_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	default:
		return ""
	}
}

// GetProfile returns the LLM config for a role, falling back to the
// default LLM config for unset fields or unknown roles.
func (c *Config) GetProfile(role string) LLMConfig {
	if role == "" {
		return c.LLM
	}
	profile, ok := c.Profiles[role]
	if !ok {
		return c.LLM
	}
	result := LLMConfig{
		Provider:  profile.Provider,
		Model:     profile.Model,
		APIKeyEnv: profile.APIKeyEnv,
		MaxTokens: profile.MaxTokens,
		BaseURL:   profile.BaseURL,
	}
	if result.Provider == "" {
		result.Provider = c.LLM.Provider
	}
	if result.Model == "" {
		result.Model = c.LLM.Model
	}
	if result.APIKeyEnv == "" {
		result.APIKeyEnv = c.LLM.APIKeyEnv
	}
	if result.MaxTokens == 0 {
		result.MaxTokens = c.LLM.MaxTokens
	}
	if result.BaseURL == "" {
		result.BaseURL = c.LLM.BaseURL
	}
	return result
}

// GetProfileAPIKey returns the API key for a role's profile.
func (c *Config) GetProfileAPIKey(role string) string {
	llmCfg := c.GetProfile(role)
	envVar := llmCfg.APIKeyEnv
	if envVar == "" {
		envVar = DefaultAPIKeyEnv(llmCfg.Provider)
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}
