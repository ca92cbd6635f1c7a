package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/warden/internal/config"
	"github.com/haasonsaas/warden/internal/permissions"
)

func buildPermissionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Manage remembered permission decisions",
	}
	cmd.AddCommand(buildPermissionsListCmd(), buildPermissionsRevokeCmd(), buildPermissionsClearCmd())
	return cmd
}

func buildPermissionsListCmd() *cobra.Command {
	var (
		configPath string
		sessionID  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List remembered decisions for a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPermissionsList(cmd, configPath, sessionID)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "path to the config file")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "default", "session ID")
	return cmd
}

func runPermissionsList(cmd *cobra.Command, configPath, sessionID string) error {
	store, cfg, err := openPermissionStoreFromConfig(cmd, configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	decisions, err := store.GetAll(cmd.Context(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to list decisions: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(decisions) == 0 {
		fmt.Fprintf(out, "No remembered decisions for session %q (mode: %s)\n", sessionID, cfg.Permissions.Mode)
		return nil
	}

	names := make([]string, 0, len(decisions))
	for name := range decisions {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tDECISION")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%s\n", name, decisions[name])
	}
	return w.Flush()
}

func buildPermissionsRevokeCmd() *cobra.Command {
	var (
		configPath string
		sessionID  string
	)

	cmd := &cobra.Command{
		Use:   "revoke <tool>",
		Short: "Forget the remembered decision for one tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPermissionsRevoke(cmd, configPath, sessionID, args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "path to the config file")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "default", "session ID")
	return cmd
}

func runPermissionsRevoke(cmd *cobra.Command, configPath, sessionID, toolName string) error {
	store, _, err := openPermissionStoreFromConfig(cmd, configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Revoke(cmd.Context(), sessionID, toolName); err != nil {
		return fmt.Errorf("failed to revoke decision: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Revoked %q for session %q\n", toolName, sessionID)
	return nil
}

func buildPermissionsClearCmd() *cobra.Command {
	var (
		configPath string
		sessionID  string
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget every remembered decision for a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPermissionsClear(cmd, configPath, sessionID)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "path to the config file")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "default", "session ID")
	return cmd
}

func runPermissionsClear(cmd *cobra.Command, configPath, sessionID string) error {
	store, _, err := openPermissionStoreFromConfig(cmd, configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Clear(cmd.Context(), sessionID); err != nil {
		return fmt.Errorf("failed to clear decisions: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared remembered decisions for session %q\n", sessionID)
	return nil
}

// openPermissionStoreFromConfig loads the config and opens its permission
// store, warning when the backend cannot outlive the current process.
func openPermissionStoreFromConfig(cmd *cobra.Command, configPath string) (permissions.Store, *config.Config, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Permissions.Store.Backend != "sqlite" {
		fmt.Fprintln(cmd.ErrOrStderr(), "note: the memory backend does not persist decisions between runs")
	}
	store, err := openPermissionStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func openPermissionStore(cfg *config.Config) (permissions.Store, error) {
	switch cfg.Permissions.Store.Backend {
	case "sqlite":
		store, err := permissions.NewSQLiteStore(permissions.SQLiteConfig{Path: cfg.Permissions.Store.Path})
		if err != nil {
			return nil, fmt.Errorf("failed to open permission store: %w", err)
		}
		return store, nil
	default:
		return permissions.NewMemoryStore(), nil
	}
}
