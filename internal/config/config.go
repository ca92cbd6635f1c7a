// Package config loads and validates the warden configuration file.
//
// Configuration is YAML with environment variable expansion, optional
// $include composition (YAML or JSON5 fragments), and strict field checking:
// unknown keys fail at load time instead of silently falling back to
// defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/warden/pkg/models"
)

// Config is the root configuration for the warden runtime.
type Config struct {
	Version     int               `yaml:"version"`
	LLM         LLMConfig         `yaml:"llm"`
	Agent       AgentConfig       `yaml:"agent"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Sessions    SessionsConfig    `yaml:"sessions"`
	Tools       ToolsConfig       `yaml:"tools"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

type LLMProviderConfig struct {
	APIKey       string        `yaml:"api_key"`
	DefaultModel string        `yaml:"default_model"`
	BaseURL      string        `yaml:"base_url"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

// AgentConfig bounds the message loop.
type AgentConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	ToolTimeout   time.Duration `yaml:"tool_timeout"`
	SystemPrompt  string        `yaml:"system_prompt"`
	MaxTokens     int           `yaml:"max_tokens"`
}

type PermissionsConfig struct {
	// Mode is one of auto, deny, ask, smart.
	Mode                 string      `yaml:"mode"`
	AutoApproveReadWrite bool        `yaml:"auto_approve_read_write"`
	Store                StoreConfig `yaml:"store"`
	Sweep                SweepConfig `yaml:"sweep"`
}

// StoreConfig selects a persistence backend. Path is only read by the
// sqlite backend and defaults to an in-memory database when empty.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// SweepConfig schedules pruning of aged remembered decisions.
type SweepConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Schedule  string        `yaml:"schedule"`
	Retention time.Duration `yaml:"retention"`
}

type SessionsConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type ToolsConfig struct {
	Workspace      string        `yaml:"workspace"`
	MaxReadBytes   int           `yaml:"max_read_bytes"`
	MaxOutputBytes int           `yaml:"max_output_bytes"`
	Modules        ModulesConfig `yaml:"modules"`
}

// ModulesConfig points at a directory of compiled tool modules.
type ModulesConfig struct {
	Dir      string        `yaml:"dir"`
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

type LoggingConfig struct {
	Level          string   `yaml:"level"`
	Format         string   `yaml:"format"`
	AddSource      bool     `yaml:"add_source"`
	RedactPatterns []string `yaml:"redact_patterns"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
	Environment string  `yaml:"environment"`
	Insecure    bool    `yaml:"insecure"`
}

// knownProviders are the names the provider factory can construct.
var knownProviders = map[string]bool{
	"anthropic": true,
	"openai":    true,
	"google":    true,
	"gemini":    true,
}

// Load reads, merges, and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "anthropic"
	}
	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = 10
	}
	if cfg.Agent.ToolTimeout == 0 {
		cfg.Agent.ToolTimeout = 30 * time.Second
	}
	if cfg.Permissions.Mode == "" {
		cfg.Permissions.Mode = string(models.ModeSmart)
	}
	if cfg.Permissions.Store.Backend == "" {
		cfg.Permissions.Store.Backend = "memory"
	}
	if cfg.Permissions.Sweep.Schedule == "" {
		cfg.Permissions.Sweep.Schedule = "@hourly"
	}
	if cfg.Permissions.Sweep.Retention == 0 {
		cfg.Permissions.Sweep.Retention = 30 * 24 * time.Hour
	}
	if cfg.Sessions.Backend == "" {
		cfg.Sessions.Backend = "memory"
	}
	if cfg.Tools.Workspace == "" {
		cfg.Tools.Workspace = "."
	}
	if cfg.Tools.MaxReadBytes == 0 {
		cfg.Tools.MaxReadBytes = 200_000
	}
	if cfg.Tools.MaxOutputBytes == 0 {
		cfg.Tools.MaxOutputBytes = 64_000
	}
	if cfg.Tools.Modules.Debounce == 0 {
		cfg.Tools.Modules.Debounce = 250 * time.Millisecond
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 1.0
	}
}

// Validate checks cross-field constraints. It expects defaults to have been
// applied already.
func (c *Config) Validate() error {
	if err := ValidateVersion(c.Version); err != nil {
		return err
	}
	for name := range c.LLM.Providers {
		if !knownProviders[strings.ToLower(name)] {
			return fmt.Errorf("llm.providers: unknown provider %q", name)
		}
	}
	if len(c.LLM.Providers) > 0 {
		if _, ok := c.LLM.Providers[c.LLM.DefaultProvider]; !ok {
			return fmt.Errorf("llm.default_provider %q is not in llm.providers", c.LLM.DefaultProvider)
		}
	}
	if c.Agent.MaxIterations < 0 {
		return fmt.Errorf("agent.max_iterations must not be negative")
	}
	if c.Agent.ToolTimeout < 0 {
		return fmt.Errorf("agent.tool_timeout must not be negative")
	}
	if !models.ValidPermissionMode(models.PermissionMode(c.Permissions.Mode)) {
		return fmt.Errorf("permissions.mode %q is not one of auto, deny, ask, smart", c.Permissions.Mode)
	}
	if err := validBackend("permissions.store.backend", c.Permissions.Store.Backend); err != nil {
		return err
	}
	if c.Permissions.Sweep.Retention < 0 {
		return fmt.Errorf("permissions.sweep.retention must not be negative")
	}
	if err := validBackend("sessions.backend", c.Sessions.Backend); err != nil {
		return err
	}
	if c.Tools.MaxReadBytes < 0 {
		return fmt.Errorf("tools.max_read_bytes must not be negative")
	}
	if c.Tools.MaxOutputBytes < 0 {
		return fmt.Errorf("tools.max_output_bytes must not be negative")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format %q is not one of json, text", c.Logging.Format)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1")
	}
	return nil
}

func validBackend(field, backend string) error {
	switch backend {
	case "memory", "sqlite":
		return nil
	default:
		return fmt.Errorf("%s %q is not one of memory, sqlite", field, backend)
	}
}

// Provider returns the settings for the named provider, or the zero value
// when no entry exists.
func (c *Config) Provider(name string) LLMProviderConfig {
	return c.LLM.Providers[name]
}
