package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/todoee/todoee/internal/history"
	"github.com/todoee/todoee/internal/ids"
	"github.com/todoee/todoee/internal/schema"
	"github.com/todoee/todoee/internal/ui"
)

func newUndoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "undo",
		GroupID: "history",
		Short:   "Revert the most recent change",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := a.history.Undo(cmd.Context())
			if errors.Is(err, history.ErrNothingToUndo) {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to undo")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s %q\n", ui.Success("Undid"), op.Type, op.EntityType, op.Label())
			return nil
		},
	}
}

func newRedoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "redo",
		GroupID: "history",
		Short:   "Re-apply the most recently undone change",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := a.history.Redo(cmd.Context())
			if errors.Is(err, history.ErrNothingToRedo) {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to redo")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s %q\n", ui.Success("Redid"), op.Type, op.EntityType, op.Label())
			return nil
		},
	}
}

func newLogCmd(a *app) *cobra.Command {
	var (
		limit   int
		oneline bool
	)
	cmd := &cobra.Command{
		Use:     "log",
		GroupID: "history",
		Short:   "Show the operation history, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ops, err := a.history.Log(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(ops) == 0 {
				fmt.Fprintln(out, "No operations recorded yet.")
				return nil
			}
			now := a.now()
			for _, op := range ops {
				if oneline {
					fmt.Fprintln(out, ui.Operation(op, now))
					continue
				}
				writeOperation(out, op)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of entries to show")
	cmd.Flags().BoolVar(&oneline, "oneline", false, "one line per entry")
	return cmd
}

func writeOperation(w io.Writer, op *schema.Operation) {
	header := "op " + op.ID
	if op.Undone {
		header += " (undone)"
	}
	fmt.Fprintln(w, ui.Warn(header))
	fmt.Fprintf(w, "Date:   %s\n", op.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Action: %s %s\n", op.Type, op.EntityType)
	fmt.Fprintf(w, "Entity: %s\n", op.EntityID)
	fmt.Fprintf(w, "Title:  %s\n", op.Label())
	if op.Note != "" {
		fmt.Fprintf(w, "Note:   %s\n", op.Note)
	}
	for _, change := range ui.Changes(op.PreviousState, op.NewState) {
		fmt.Fprintf(w, "    %s\n", change)
	}
	fmt.Fprintln(w)
}

// diffMark prefixes each change in diff output.
func diffMark(t schema.OperationType) string {
	switch t {
	case schema.OpCreate:
		return ui.Success("+")
	case schema.OpDelete:
		return ui.Error("-")
	case schema.OpUpdate:
		return ui.Warn("~")
	case schema.OpComplete:
		return ui.Success("✓")
	case schema.OpUncomplete:
		return ui.Warn("○")
	}
	return ui.Muted("s")
}

func newDiffCmd(a *app) *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:     "diff",
		GroupID: "history",
		Short:   "Summarize changes made recently",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if hours <= 0 {
				return fmt.Errorf("--hours must be positive")
			}
			out := cmd.OutOrStdout()
			ops, err := a.history.Since(cmd.Context(), a.now().Add(-time.Duration(hours)*time.Hour))
			if err != nil {
				return err
			}
			if len(ops) == 0 {
				fmt.Fprintf(out, "No changes in the last %d hours.\n", hours)
				return nil
			}

			fmt.Fprintf(out, "Changes in the last %d hours:\n\n", hours)
			counts := map[schema.OperationType]int{}
			for _, op := range ops {
				counts[op.Type]++
				line := fmt.Sprintf("%s %s %s %s", diffMark(op.Type), op.CreatedAt.Local().Format("15:04"), ids.Short(op.EntityID), op.Label())
				if op.Undone {
					line += " " + ui.Muted("(undone)")
				}
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "\n%d created, %d updated, %d completed, %d deleted\n",
				counts[schema.OpCreate], counts[schema.OpUpdate], counts[schema.OpComplete], counts[schema.OpDelete])
			return nil
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "look back this many hours")
	return cmd
}
