package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/todoee/todoee/internal/db"
	"github.com/todoee/todoee/internal/stash"
	"github.com/todoee/todoee/internal/ui"
)

func newStashCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "stash",
		GroupID: "history",
		Short:   "Park todos out of the way and bring them back later",
		Long: `Stash moves a todo or category out of the store onto a stack.
pop restores the most recently stashed entry. Push and pop are recorded in
the history and can be undone; clear is permanent and is not.`,
	}
	cmd.AddCommand(newStashPushCmd(a), newStashPopCmd(a), newStashListCmd(a), newStashClearCmd(a))
	return cmd
}

func newStashPushCmd(a *app) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "push <id>",
		Short: "Stash a todo or category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := a.stash.Resolve(ctx, args[0])
			if errors.Is(err, db.ErrNotFound) {
				// Let Push report an entry that is already stashed.
				id, err = a.db.ResolveStashedID(ctx, args[0])
			}
			if err != nil {
				return explainID(args[0], err)
			}
			entry, err := a.stash.Push(ctx, id, message)
			if err != nil {
				return err
			}
			line := fmt.Sprintf("%s %s", ui.Success("Stashed"), entry.Snapshot.Label())
			if entry.Message != "" {
				line += ui.Muted(": " + entry.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "why the entry is stashed")
	return cmd
}

func newStashPopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pop",
		Short: "Restore the most recently stashed entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := a.stash.Pop(cmd.Context())
			if errors.Is(err, stash.ErrStashEmpty) {
				fmt.Fprintln(cmd.OutOrStdout(), "Stash is empty")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.Success("Restored"), entry.Snapshot.Label())
			return nil
		},
	}
}

func newStashListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stashed entries, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			entries, err := a.stash.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "Stash is empty")
				return nil
			}
			now := a.now()
			for i, e := range entries {
				ref := fmt.Sprintf("stash@{%d}", i)
				if e.Message != "" {
					ref += ": " + e.Message
				}
				fmt.Fprintf(out, "%s %s\n", ui.Warn(ref), ui.Muted(ui.FormatAgo(e.StashedAt, now)))
				fmt.Fprintf(out, "  %s %s %s\n", ui.ID(e.EntityID), e.Snapshot.Kind(), e.Snapshot.Label())
			}
			return nil
		},
	}
}

func newStashClearCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every stashed entry permanently",
		Long:  "Drop every stashed entry permanently. The next sync deletes the dropped entities from the remote as well.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			entries, err := a.stash.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "Stash is empty")
				return nil
			}
			ok, err := confirm(yes, fmt.Sprintf("Permanently drop %d stashed entries?", len(entries)))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "Aborted")
				return nil
			}
			n, err := a.stash.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Cleared %d stashed entries\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// confirm asks a yes/no question on an interactive terminal. Without a
// terminal, or with yes set, it answers yes.
func confirm(yes bool, question string) (bool, error) {
	if yes || !ui.IsInteractive() {
		return true, nil
	}
	var ok bool
	err := huh.NewConfirm().
		Title(question).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}
