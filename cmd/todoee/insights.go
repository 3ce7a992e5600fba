package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/todoee/todoee/internal/db"
	"github.com/todoee/todoee/internal/insights"
	"github.com/todoee/todoee/internal/ui"
)

func newInsightsCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:     "insights",
		GroupID: "history",
		Short:   "Summarize recent activity from the history",
		Long: `Summarize todos created and completed over the last --days days, with a
completion heatmap of the last four weeks. Undone entries do not count,
and neither does history already removed by gc.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}
			now := a.now()
			ops, err := a.history.Since(ctx, now.Add(-time.Duration(days)*24*time.Hour))
			if err != nil {
				return err
			}
			todos, err := a.db.ListTodos(ctx, db.TodoFilter{IncludeCompleted: true})
			if err != nil {
				return err
			}
			report := insights.Build(ops, todos, days, now, time.Local)
			fmt.Fprint(cmd.OutOrStdout(), ui.Insights(report))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "length of the window in days")
	return cmd
}
