package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/warden/internal/agent"
	"github.com/haasonsaas/warden/internal/agent/providers"
	"github.com/haasonsaas/warden/internal/config"
	"github.com/haasonsaas/warden/internal/observability"
	"github.com/haasonsaas/warden/internal/permissions"
	"github.com/haasonsaas/warden/internal/security"
	"github.com/haasonsaas/warden/internal/sessions"
	"github.com/haasonsaas/warden/internal/tools/loader"
	"github.com/haasonsaas/warden/pkg/models"
)

type chatOptions struct {
	configPath string
	sessionID  string
	message    string
	provider   string
	model      string
	plain      bool
}

func buildChatCmd() *cobra.Command {
	var opts chatOptions

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the agent",
		Long: `Chat starts an agent conversation. With --message it sends a single
message and exits; otherwise it reads messages interactively until EOF.

Tool calls the model makes are gated by the configured permission mode.
When a call needs approval, the prompt appears on stderr and reads the
answer from the terminal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", defaultConfigName, "path to the config file")
	cmd.Flags().StringVarP(&opts.sessionID, "session", "s", "default", "session ID for the transcript and remembered permissions")
	cmd.Flags().StringVarP(&opts.message, "message", "m", "", "send a single message and exit")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "LLM provider (overrides the config default)")
	cmd.Flags().StringVar(&opts.model, "model", "", "model name (overrides the provider default)")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "wait for complete responses instead of streaming")

	return cmd
}

func runChat(cmd *cobra.Command, opts chatOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var telemetry observability.Telemetry = observability.NewNullTelemetry()
	if cfg.Metrics.Enabled {
		telemetry = observability.NewPrometheusTelemetry(observability.NewMetrics())
		go func() {
			if err := observability.StartMetricsServer(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Warn(ctx, "metrics server stopped", "error", err)
			}
		}()
	}

	tracer, stopTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "warden",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SampleRatio,
		EnableInsecure: cfg.Tracing.Insecure,
	})
	defer func() {
		if err := stopTracer(context.Background()); err != nil {
			logger.Warn(context.Background(), "tracer shutdown failed", "error", err)
		}
	}()

	permStore, err := openPermissionStore(cfg)
	if err != nil {
		return err
	}
	defer permStore.Close()

	if cfg.Permissions.Sweep.Enabled {
		sweeper, err := permissions.NewSweeper(permStore, permissions.SweeperConfig{
			Schedule:  cfg.Permissions.Sweep.Schedule,
			Retention: cfg.Permissions.Sweep.Retention,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("failed to configure permission sweeper: %w", err)
		}
		sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	inspector := security.NewInspector(security.InspectorConfig{}, logger)
	perms := permissions.NewSystem(permStore, inspector, permissions.SystemConfig{
		Judge: permissions.JudgeConfig{
			Mode:                 models.PermissionMode(cfg.Permissions.Mode),
			AutoApproveReadWrite: cfg.Permissions.AutoApproveReadWrite,
		},
		Logger:    logger,
		Telemetry: telemetry,
		Tracer:    tracer,
	})

	registry, err := buildToolRegistry(cfg, logger)
	if err != nil {
		return err
	}
	if cfg.Tools.Modules.Dir != "" {
		if cfg.Tools.Modules.Watch {
			watcher, err := loader.NewWatcher(loader.WatcherConfig{
				Dir:      cfg.Tools.Modules.Dir,
				Registry: registry,
				Logger:   logger,
				Debounce: cfg.Tools.Modules.Debounce,
			})
			if err != nil {
				return fmt.Errorf("failed to watch tool modules: %w", err)
			}
			if err := watcher.Start(ctx); err != nil {
				return fmt.Errorf("failed to watch tool modules: %w", err)
			}
			defer watcher.Close()
		} else if err := loadToolModules(ctx, registry, cfg, logger); err != nil {
			return err
		}
	}

	provider, model, err := buildProvider(cfg, opts.provider, opts.model)
	if err != nil {
		return err
	}

	sessionStore, err := openSessionStore(cfg)
	if err != nil {
		return err
	}
	defer sessionStore.Close()

	messages, err := sessionStore.Load(ctx, opts.sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session %q: %w", opts.sessionID, err)
	}
	convo := &models.ConversationContext{
		SessionID:        opts.sessionID,
		WorkingDirectory: cfg.Tools.Workspace,
		Messages:         messages,
		Model:            model,
		System:           cfg.Agent.SystemPrompt,
		MaxTokens:        cfg.Agent.MaxTokens,
	}

	rt := agent.NewRuntime(provider, registry, perms, &agent.RuntimeOptions{
		MaxIterations: cfg.Agent.MaxIterations,
		ToolTimeout:   cfg.Agent.ToolTimeout,
		Prompt:        permissions.NewTerminalPrompt(os.Stdin, cmd.ErrOrStderr()),
		Logger:        logger,
		Telemetry:     telemetry,
		Tracer:        tracer,
	})

	if opts.message != "" {
		if err := processTurn(ctx, cmd.OutOrStdout(), rt, convo, opts.message, opts.plain); err != nil {
			return err
		}
		if err := sessionStore.Save(ctx, convo.SessionID, convo.Messages); err != nil {
			return fmt.Errorf("failed to save session %q: %w", convo.SessionID, err)
		}
		return nil
	}

	return chatLoop(ctx, cmd, rt, convo, sessionStore, logger, opts.plain)
}

func chatLoop(ctx context.Context, cmd *cobra.Command, rt *agent.Runtime, convo *models.ConversationContext, store sessions.Store, logger *observability.Logger, plain bool) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "warden %s (session %q) - type exit or Ctrl-D to quit\n", version, convo.SessionID)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		if err := processTurn(ctx, out, rt, convo, line, plain); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			continue
		}
		if err := store.Save(ctx, convo.SessionID, convo.Messages); err != nil {
			logger.Warn(ctx, "failed to save transcript", "session_id", convo.SessionID, "error", err)
		}
	}
}

// processTurn sends one user message and renders the response. In streaming
// mode text deltas print as they arrive and tool executions show as one-line
// markers; --plain waits for the complete response instead.
func processTurn(ctx context.Context, out io.Writer, rt *agent.Runtime, convo *models.ConversationContext, text string, plain bool) error {
	if plain {
		resp, err := rt.ProcessMessage(ctx, convo, text)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, strings.TrimSpace(resp.Content))
		return nil
	}

	events, err := rt.ProcessMessageStream(ctx, convo, text)
	if err != nil {
		return err
	}
	var failure error
	for event := range events {
		switch {
		case event.Err != nil:
			failure = event.Err
		case event.ToolResult != nil:
			printToolResult(out, event.ToolResult)
		case event.Final != nil:
			fmt.Fprintln(out)
		default:
			fmt.Fprint(out, event.Text)
		}
	}
	return failure
}

func printToolResult(out io.Writer, result *models.ToolResult) {
	elapsed := result.Duration.Round(time.Millisecond)
	if result.Success {
		fmt.Fprintf(out, "\n[tool ok in %s]\n", elapsed)
		return
	}
	fmt.Fprintf(out, "\n[tool failed in %s: %s]\n", elapsed, result.Error)
}

func buildProvider(cfg *config.Config, name, model string) (agent.LLMProvider, string, error) {
	if name == "" {
		name = cfg.LLM.DefaultProvider
	}
	pcfg := cfg.Provider(name)
	apiKey := pcfg.APIKey
	if apiKey == "" {
		apiKey = apiKeyFromEnv(name)
	}
	provider, err := providers.New(name, providers.Config{
		APIKey:       apiKey,
		BaseURL:      pcfg.BaseURL,
		MaxRetries:   pcfg.MaxRetries,
		RetryDelay:   pcfg.RetryDelay,
		DefaultModel: pcfg.DefaultModel,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to build provider: %w", err)
	}
	if model == "" {
		model = pcfg.DefaultModel
	}
	return provider, model, nil
}

func openSessionStore(cfg *config.Config) (sessions.Store, error) {
	switch cfg.Sessions.Backend {
	case "sqlite":
		store, err := sessions.NewSQLiteStore(sessions.SQLiteConfig{Path: cfg.Sessions.Path})
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		return store, nil
	default:
		return sessions.NewMemoryStore(), nil
	}
}
