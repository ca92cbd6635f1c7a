package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/warden/internal/agent"
	"github.com/haasonsaas/warden/internal/config"
	"github.com/haasonsaas/warden/internal/observability"
	"github.com/haasonsaas/warden/internal/tools"
	"github.com/haasonsaas/warden/internal/tools/loader"
)

func buildToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the tool registry",
	}
	cmd.AddCommand(buildToolsListCmd(), buildToolsValidateCmd(), buildToolsManifestCmd())
	return cmd
}

func buildToolsListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tools and their risk tiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToolsList(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "path to the config file")
	return cmd
}

func runToolsList(cmd *cobra.Command, configPath string) error {
	registry, err := openToolRegistry(cmd.Context(), configPath)
	if err != nil {
		return err
	}

	all := registry.GetAll()
	if len(all) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no tools registered")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tRISK\tDESCRIPTION")
	for _, tool := range all {
		description := tool.Description()
		if len(description) > 80 {
			description = description[:77] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", tool.Name(), tool.RiskLevel(), description)
	}
	return w.Flush()
}

func buildToolsValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate [tool]",
		Short: "Validate tool parameter schemas",
		Long: `Validate checks that registered tools declare well-formed JSON Schemas.
With no argument every registered tool is checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToolsValidate(cmd, configPath, args)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "path to the config file")
	return cmd
}

func runToolsValidate(cmd *cobra.Command, configPath string, args []string) error {
	registry, err := openToolRegistry(cmd.Context(), configPath)
	if err != nil {
		return err
	}

	var names []string
	if len(args) == 1 {
		names = args
	} else {
		for _, tool := range registry.GetAll() {
			names = append(names, tool.Name())
		}
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, name := range names {
		result := registry.ValidateTool(name)
		if result.Valid {
			fmt.Fprintf(out, "%s: ok\n", name)
			continue
		}
		failed++
		fmt.Fprintf(out, "%s:\n", name)
		for _, problem := range result.Errors {
			fmt.Fprintf(out, "  - %s\n", problem)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tools failed validation", failed, len(names))
	}
	return nil
}

func buildToolsManifestCmd() *cobra.Command {
	var (
		configPath string
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Export a JSON manifest of registered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToolsManifest(cmd, configPath, outputPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "path to the config file")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the manifest to a file instead of stdout")
	return cmd
}

func runToolsManifest(cmd *cobra.Command, configPath, outputPath string) error {
	registry, err := openToolRegistry(cmd.Context(), configPath)
	if err != nil {
		return err
	}

	manifest := registry.CreateManifest()
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("failed to write manifest: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Manifest written: %s (%d tools)\n", outputPath, len(manifest.Tools))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// openToolRegistry builds the registry the way chat does, for inspection
// commands that never execute a tool.
func openToolRegistry(ctx context.Context, configPath string) (*agent.Registry, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)
	registry, err := buildToolRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := loadToolModules(ctx, registry, cfg, logger); err != nil {
		return nil, err
	}
	return registry, nil
}

// buildToolRegistry registers the built-in tools and wires the module loader.
// Module loading is left to the caller: chat may hand it to a watcher while
// inspection commands load once.
func buildToolRegistry(cfg *config.Config, logger *observability.Logger) (*agent.Registry, error) {
	registry := agent.NewRegistry(agent.RegistryConfig{
		Logger: logger,
		Loader: loader.New(),
	})

	toolCfg := tools.Config{
		Workspace:      cfg.Tools.Workspace,
		MaxReadBytes:   cfg.Tools.MaxReadBytes,
		MaxOutputBytes: cfg.Tools.MaxOutputBytes,
	}
	builtin := []agent.Tool{
		tools.NewReadFileTool(toolCfg),
		tools.NewListDirTool(toolCfg),
		tools.NewWriteFileTool(toolCfg),
		tools.NewShellTool(toolCfg),
	}
	for _, tool := range builtin {
		if err := registry.Register(tool); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", tool.Name(), err)
		}
	}
	return registry, nil
}

func loadToolModules(ctx context.Context, registry *agent.Registry, cfg *config.Config, logger *observability.Logger) error {
	if cfg.Tools.Modules.Dir == "" {
		return nil
	}
	count, err := registry.LoadFromDirectory(cfg.Tools.Modules.Dir)
	if err != nil {
		return fmt.Errorf("failed to load tool modules: %w", err)
	}
	if count > 0 {
		logger.Info(ctx, "tool modules loaded", "dir", cfg.Tools.Modules.Dir, "count", count)
	}
	return nil
}
