package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/todoee/todoee/internal/transfer"
	"github.com/todoee/todoee/internal/ui"
)

func newExportCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:     "export [file]",
		GroupID: "sync",
		Short:   "Write every category and todo to JSON or YAML",
		Long: `Export writes the store to file, or to stdout when no file is given.
The format follows --format, else the file extension, else JSON.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := transfer.Build(cmd.Context(), a.db)
			if err != nil {
				return err
			}

			var f transfer.Format
			switch {
			case format != "":
				if f, err = transfer.ParseFormat(format); err != nil {
					return err
				}
			case len(args) == 1:
				f = transfer.FormatForPath(args[0])
			default:
				f = transfer.FormatJSON
			}

			if len(args) == 0 {
				return transfer.Encode(cmd.OutOrStdout(), doc, f)
			}
			if err := transfer.WriteFile(args[0], doc, f); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d categories and %d todos to %s\n",
				ui.Success("Exported"), len(doc.Categories), len(doc.Todos), args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "json or yaml")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "import <file>",
		GroupID: "sync",
		Short:   "Add the categories and todos of an export that are missing here",
		Long: `Import reads a JSON or YAML export. Entries whose id already exists are
skipped; a category whose name already exists is merged into it. Every
created entry is recorded in the history, so an import can be undone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open import file: %w", err)
			}
			defer f.Close()

			doc, err := transfer.Decode(f)
			if err != nil {
				return err
			}
			res, err := transfer.Import(cmd.Context(), a.db, a.tasks, doc)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %d categories and %d todos\n", ui.Success("Imported"), res.CategoriesCreated, res.TodosCreated)
			if res.CategoriesMerged > 0 {
				fmt.Fprintf(out, "  %d categories merged by name\n", res.CategoriesMerged)
			}
			if res.Skipped > 0 {
				fmt.Fprintf(out, "  %d entries already present\n", res.Skipped)
			}
			if res.Detached > 0 {
				fmt.Fprintf(out, "  %d todos imported without their missing category\n", res.Detached)
			}
			return nil
		},
	}
}
