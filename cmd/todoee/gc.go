package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/todoee/todoee/internal/ui"
)

func newGCCmd(a *app) *cobra.Command {
	var (
		days   int
		dryRun bool
		yes    bool
	)
	cmd := &cobra.Command{
		Use:     "gc",
		GroupID: "sync",
		Short:   "Drop old history, old completed todos and stale deletions",
		Long: `gc removes, all older than --days (default history.retention_days):

  operation log entries, which can no longer be undone afterwards
  completed todos, each logged as a delete so it can still be undone

It also drops local deletions the remote never confirmed once they are
older than sync.tombstone_ttl_days.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			retention := a.cfg.Retention()
			if cmd.Flags().Changed("days") {
				if days <= 0 {
					return fmt.Errorf("--days must be positive")
				}
				retention = time.Duration(days) * 24 * time.Hour
			}
			now := a.now()
			cutoff := now.Add(-retention)
			ttlCutoff := now.Add(-a.cfg.TombstoneTTL())

			ops, err := a.history.Sweep(ctx, cutoff, true)
			if err != nil {
				return err
			}
			completed, err := a.tasks.PurgeCompleted(ctx, cutoff, true)
			if err != nil {
				return err
			}
			tombstones, err := a.db.CountTombstonesBefore(ctx, ttlCutoff)
			if err != nil {
				return err
			}

			summary := fmt.Sprintf("%d history entries, %d completed todos, %d stale deletions", ops, len(completed), tombstones)
			if dryRun {
				fmt.Fprintf(out, "Would remove %s\n", summary)
				return nil
			}
			if ops == 0 && len(completed) == 0 && tombstones == 0 {
				fmt.Fprintln(out, "Nothing to clean up")
				return nil
			}
			ok, err := confirm(yes, "Remove "+summary+"?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "Aborted")
				return nil
			}

			// Purge first so the deletes it logs are newer than the cutoff.
			purged, err := a.tasks.PurgeCompleted(ctx, cutoff, false)
			if err != nil {
				return err
			}
			swept, err := a.history.Sweep(ctx, cutoff, false)
			if err != nil {
				return err
			}
			dropped, err := a.db.SweepTombstonesBefore(ctx, ttlCutoff)
			if err != nil {
				return err
			}
			a.log.WithField("operations", swept).WithField("todos", len(purged)).WithField("tombstones", dropped).Debug("gc finished")
			fmt.Fprintf(out, "%s %d history entries, %d completed todos, %d stale deletions\n", ui.Success("Removed"), swept, len(purged), dropped)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "age threshold in days (default history.retention_days)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be removed")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
