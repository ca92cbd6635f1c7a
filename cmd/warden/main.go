// Command warden runs a tool-using LLM agent behind a permission gate.
//
// Every tool call the model makes is inspected for threat patterns,
// classified by risk, and judged against the configured permission mode
// before it executes.
//
// # Basic Usage
//
//	warden chat                          # interactive session
//	warden chat -m "list the workspace"  # one-shot message
//	warden tools list                    # registered tools and risk tiers
//	warden permissions list -s default   # remembered decisions
//	warden config validate -c warden.yaml
//
// # Environment Variables
//
//	ANTHROPIC_API_KEY  API key for the anthropic provider
//	OPENAI_API_KEY     API key for the openai provider
//	GEMINI_API_KEY     API key for the google provider (GOOGLE_API_KEY also works)
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/warden/internal/config"
	"github.com/haasonsaas/warden/internal/observability"
)

// Populated via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// defaultConfigName is looked up in the working directory when --config is
// not given. A missing default file is not an error; built-in defaults apply.
const defaultConfigName = "warden.yaml"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "warden",
		Short: "Permission-gated agent runtime",
		Long: `Warden is an LLM agent runtime that gates every tool call behind
threat inspection, risk classification, and a configurable permission
policy. Conversations, tool approvals, and remembered decisions are
all managed from this command.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildChatCmd(),
		buildToolsCmd(),
		buildPermissionsCmd(),
		buildConfigCmd(),
		buildVersionCmd(),
	)

	return rootCmd
}

// loadConfig reads the config file at path. When the caller left the path at
// its default and no such file exists, built-in defaults are used so that
// warden works out of the box.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = defaultConfigName
	}
	if path == defaultConfigName {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *observability.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		AddSource:      cfg.Logging.AddSource,
		RedactPatterns: cfg.Logging.RedactPatterns,
	})
}

// apiKeyFromEnv resolves the conventional environment variable for a provider
// so that a bare config still works when the key lives in the environment.
func apiKeyFromEnv(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "google", "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return os.Getenv("ANTHROPIC_API_KEY")
	}
}
