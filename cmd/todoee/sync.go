package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	todosync "github.com/todoee/todoee/internal/sync"
	"github.com/todoee/todoee/internal/ui"
)

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "sync",
		GroupID: "sync",
		Short:   "Push local changes to the remote and pull remote changes",
		Long: `Sync uploads pending categories and todos, downloads changes made on
other devices, and pushes local deletions. The newer edit wins; when both
sides changed at the same instant the local copy is kept.

The remote connection string is read from the environment variable named
by database.url_env (TODOEE_DATABASE_URL by default). Without it sync does
nothing. When the remote cannot be reached, local changes stay pending and
the next sync retries them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Sync.Timeout)
			defer cancel()

			r := todosync.NewDialing(a.db, a.cfg.RemoteURL(), a.log)
			defer r.Close()

			res, err := r.Sync(ctx)
			return reportSync(out, a, res, err)
		},
	}
}

// reportSync prints the outcome of a sync. Not being configured and being
// offline are statuses, not failures.
func reportSync(out io.Writer, a *app, res *todosync.Result, err error) error {
	switch {
	case errors.Is(err, todosync.ErrNotConfigured):
		fmt.Fprintf(out, "Sync is not configured; set $%s to enable it\n", a.cfg.Database.URLEnv)
		return nil
	case errors.Is(err, todosync.ErrOffline):
		a.log.WithError(err).Debug("sync offline")
		if res != nil && res.Writes() > 0 {
			fmt.Fprintf(out, "Partially synced: %s\n", res)
		}
		fmt.Fprintf(out, "%s remote unreachable; local changes stay pending\n", ui.Warn("Offline:"))
		return nil
	case err != nil:
		return fmt.Errorf("sync failed: %w", err)
	}
	fmt.Fprintf(out, "%s %s\n", ui.Success("Synced:"), res)
	return nil
}
