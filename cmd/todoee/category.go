package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/todoee/todoee/internal/db"
	"github.com/todoee/todoee/internal/schema"
	"github.com/todoee/todoee/internal/ui"
)

func newCategoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "category",
		Aliases: []string{"cat"},
		GroupID: "todos",
		Short:   "Manage categories",
	}
	cmd.AddCommand(
		newCategoryAddCmd(a),
		newCategoryListCmd(a),
		newCategoryRenameCmd(a),
		newCategoryDeleteCmd(a),
	)
	return cmd
}

func newCategoryAddCmd(a *app) *cobra.Command {
	var color string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.tasks.AddCategory(cmd.Context(), &schema.Category{Name: args[0], Color: color})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", ui.Success("Added"), ui.ID(c.ID), c.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&color, "color", "", `display color, e.g. "#ff8800"`)
	return cmd
}

func newCategoryListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List categories with their open todo counts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			categories, err := a.db.ListCategories(ctx)
			if err != nil {
				return err
			}
			if len(categories) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No categories.")
				return nil
			}
			todos, err := a.db.ListTodos(ctx, db.TodoFilter{})
			if err != nil {
				return err
			}
			counts := map[string]int{}
			for _, t := range todos {
				counts[t.CategoryID]++
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.CategoryTable(categories, counts))
			return nil
		},
	}
}

func newCategoryRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <name|id> <new-name>",
		Short: "Rename a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.resolveCategory(ctx, args[0])
			if err != nil {
				return err
			}
			renamed, err := a.tasks.RenameCategory(ctx, c.ID, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s\n", ui.Success("Renamed"), c.Name, renamed.Name)
			return nil
		},
	}
}

func newCategoryDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name|id>",
		Aliases: []string{"rm"},
		Short:   "Delete an unused category",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.resolveCategory(ctx, args[0])
			if err != nil {
				return err
			}
			if _, err := a.tasks.DeleteCategory(ctx, c.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.Success("Deleted"), c.Name)
			return nil
		},
	}
}
