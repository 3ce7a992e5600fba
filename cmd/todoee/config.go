package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/todoee/todoee/internal/config"
	"github.com/todoee/todoee/internal/ui"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		GroupID: "sync",
		Short:   "Inspect or create the configuration file",
	}
	cmd.AddCommand(newConfigInitCmd(a), newConfigShowCmd(a), newConfigPathCmd(a))
	return cmd
}

func newConfigInitCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write config.toml with the default settings",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipStore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.WriteDefault(a.cfg.Dir, force)
			if errors.Is(err, config.ErrExists) {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.Success("Wrote"), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "show",
		Short:       "Print the effective settings as TOML",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipStore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.cfg.TOML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigPathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print where configuration and data live",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipStore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config   %s\n", a.cfg.Path())
			fmt.Fprintf(out, "database %s\n", a.cfg.LocalDBPath())
			fmt.Fprintf(out, "log      %s\n", a.cfg.LogPath())
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: "sync",
		Short:   "Show store counts and sync configuration",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			stats, err := a.db.GetStats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(out, ui.Stats(stats))

			remote := ui.Muted("not configured")
			if a.cfg.RemoteURL() != "" {
				remote = ui.Success("configured")
			}
			fmt.Fprintf(out, "\nstore  %s\nremote %s (via $%s)\n", a.db.Path(), remote, a.cfg.Database.URLEnv)
			return nil
		},
	}
}
