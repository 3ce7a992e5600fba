package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/todoee/todoee/internal/ai"
	"github.com/todoee/todoee/internal/dates"
	"github.com/todoee/todoee/internal/db"
	"github.com/todoee/todoee/internal/ids"
	"github.com/todoee/todoee/internal/schema"
	"github.com/todoee/todoee/internal/ui"
)

// todoFlags are the field flags shared by add and edit.
type todoFlags struct {
	description string
	due         string
	remind      string
	priority    string
	category    string
}

func (f *todoFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.description, "description", "d", "", "longer description")
	cmd.Flags().StringVar(&f.due, "due", "", `due date, e.g. "2026-05-04", "tomorrow 5pm" ("none" clears)`)
	cmd.Flags().StringVar(&f.remind, "remind", "", `reminder time, same forms as --due ("none" clears)`)
	cmd.Flags().StringVarP(&f.priority, "priority", "p", "", "low, medium or high")
	cmd.Flags().StringVarP(&f.category, "category", "c", "", `category name or id ("none" clears)`)
}

// apply copies every flag the user set onto t.
func (f *todoFlags) apply(cmd *cobra.Command, a *app, t *schema.Todo) error {
	ctx := cmd.Context()
	changed := cmd.Flags().Changed

	if changed("description") {
		t.Description = strings.TrimSpace(f.description)
	}
	if changed("priority") {
		p, err := schema.ParsePriority(f.priority)
		if err != nil {
			return err
		}
		t.Priority = p
	}
	for _, field := range []struct {
		flag  string
		value string
		dest  **time.Time
	}{
		{"due", f.due, &t.DueDate},
		{"remind", f.remind, &t.ReminderAt},
	} {
		if !changed(field.flag) {
			continue
		}
		if isNone(field.value) {
			*field.dest = nil
			continue
		}
		ts, err := a.dates.Parse(field.value, a.now())
		if err != nil {
			return fmt.Errorf("--%s: %w", field.flag, err)
		}
		*field.dest = &ts
	}
	if changed("category") {
		if isNone(f.category) {
			t.CategoryID = ""
			return nil
		}
		c, err := a.resolveCategory(ctx, f.category)
		if err != nil {
			return err
		}
		t.CategoryID = c.ID
	}
	return nil
}

func isNone(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	return s == "" || s == "none"
}

func newAddCmd(a *app) *cobra.Command {
	var (
		flags  todoFlags
		useAI  bool
		create bool
	)
	cmd := &cobra.Command{
		Use:     "add <title>...",
		GroupID: "todos",
		Short:   "Add a todo",
		Long: `Add a todo. The title is every argument joined by spaces.

With --ai the text is sent to the language model, which suggests a title,
due date, reminder, priority and category. Explicit flags win over the
suggestions.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			text := strings.Join(args, " ")

			todo := &schema.Todo{Title: text}
			var suggested string
			if useAI {
				client, err := a.aiClient()
				if err != nil {
					return err
				}
				parsed, err := client.ParseTask(ctx, text)
				if err != nil {
					return err
				}
				todo = parsed.Todo()
				suggested = parsed.CategoryName()
			}

			if suggested != "" && !cmd.Flags().Changed("category") {
				c, created, err := a.tasks.EnsureCategory(ctx, suggested, true)
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(out, "%s category %s\n", ui.Success("Created"), c.Name)
				}
				todo.CategoryID = c.ID
			}
			if create && cmd.Flags().Changed("category") && !isNone(flags.category) {
				if _, _, err := a.tasks.EnsureCategory(ctx, flags.category, false); err != nil {
					return err
				}
			}
			if err := flags.apply(cmd, a, todo); err != nil {
				return err
			}

			added, err := a.tasks.AddTodo(ctx, todo)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s %s\n", ui.Success("Added"), ui.ID(added.ID), added.Title)
			if added.DueDate != nil {
				fmt.Fprintf(out, "  due %s\n", added.DueDate.Local().Format(a.cfg.Display.DateFormat+" 15:04"))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&useAI, "ai", false, "parse the text with the language model")
	cmd.Flags().BoolVar(&create, "create-category", false, "create the --category if it does not exist")
	return cmd
}

func (a *app) aiClient() (*ai.Client, error) {
	if a.ai != nil {
		return a.ai, nil
	}
	client, err := ai.New(a.cfg.APIKey(), a.cfg.AI.Model, a.cfg.Sync.Timeout)
	if err != nil {
		if errors.Is(err, ai.ErrNoAPIKey) {
			return nil, fmt.Errorf("%w: set $%s", err, a.cfg.AI.APIKeyEnv)
		}
		return nil, err
	}
	a.ai = client
	return client, nil
}

func newListCmd(a *app) *cobra.Command {
	var (
		all      bool
		done     bool
		category string
		today    bool
		overdue  bool
		upcoming int
		search   string
		head     int
		tail     int
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		GroupID: "todos",
		Short:   "List todos",
		Long: `List open todos, most urgent first.

--head N and --tail N show the N oldest or newest todos by creation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			filter := db.TodoFilter{IncludeCompleted: all, OnlyCompleted: done, Search: search}
			if category != "" {
				c, err := a.resolveCategory(ctx, category)
				if err != nil {
					return err
				}
				filter.CategoryID = c.ID
			}

			start := dates.StartOfDay(a.now(), time.Local)
			switch {
			case today:
				end := start.AddDate(0, 0, 1)
				filter.DueBefore = &end
			case overdue:
				now := a.now()
				filter.DueBefore = &now
			case upcoming > 0:
				from := a.now()
				end := start.AddDate(0, 0, upcoming+1)
				filter.DueFrom, filter.DueBefore = &from, &end
			}

			switch {
			case head > 0:
				filter.ByCreation, filter.Limit = true, head
			case tail > 0:
				filter.ByCreation, filter.Newest, filter.Limit = true, true, tail
			}

			todos, err := a.db.ListTodos(ctx, filter)
			if err != nil {
				return err
			}
			if len(todos) == 0 {
				fmt.Fprintln(out, "No todos.")
				return nil
			}
			names, err := a.categoryNames(ctx)
			if err != nil {
				return err
			}
			fmt.Fprint(out, ui.TodoTable(todos, names, a.cfg.Display.DateFormat))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include completed todos")
	cmd.Flags().BoolVar(&done, "done", false, "only completed todos")
	cmd.Flags().StringVarP(&category, "category", "c", "", "only todos in this category")
	cmd.Flags().BoolVar(&today, "today", false, "due today or earlier")
	cmd.Flags().BoolVar(&overdue, "overdue", false, "past their due date")
	cmd.Flags().IntVar(&upcoming, "upcoming", 0, "due within the next N days")
	cmd.Flags().StringVarP(&search, "search", "s", "", "match title or description")
	cmd.Flags().IntVar(&head, "head", 0, "the N oldest todos")
	cmd.Flags().IntVar(&tail, "tail", 0, "the N newest todos")
	cmd.MarkFlagsMutuallyExclusive("today", "overdue", "upcoming")
	cmd.MarkFlagsMutuallyExclusive("head", "tail")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "show <id>",
		GroupID: "todos",
		Short:   "Show every field of a todo",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := a.resolveTodo(ctx, args[0])
			if err != nil {
				return err
			}
			t, err := a.db.GetTodo(ctx, id)
			if err != nil {
				return err
			}
			var category string
			if t.CategoryID != "" {
				if c, err := a.db.GetCategory(ctx, t.CategoryID); err == nil {
					category = c.Name
				}
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.TodoDetail(t, category, a.cfg.Display.DateFormat))
			return nil
		},
	}
}

// forEachTodo resolves every argument up front, then applies fn in order.
func forEachTodo(cmd *cobra.Command, a *app, args []string, verb string, fn func(id string) (*schema.Todo, error)) error {
	var resolved []string
	for _, arg := range args {
		id, err := a.resolveTodo(cmd.Context(), arg)
		if err != nil {
			return err
		}
		resolved = append(resolved, id)
	}
	for _, id := range resolved {
		t, err := fn(id)
		if err != nil {
			return fmt.Errorf("%s: %w", ids.Short(id), err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", ui.Success(verb), ui.ID(t.ID), t.Title)
	}
	return nil
}

func newDoneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "done <id>...",
		GroupID: "todos",
		Short:   "Mark todos completed",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return forEachTodo(cmd, a, args, "Completed", func(id string) (*schema.Todo, error) {
				return a.tasks.CompleteTodo(cmd.Context(), id)
			})
		},
	}
}

func newUndoneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "undone <id>...",
		GroupID: "todos",
		Short:   "Mark completed todos open again",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return forEachTodo(cmd, a, args, "Reopened", func(id string) (*schema.Todo, error) {
				return a.tasks.UncompleteTodo(cmd.Context(), id)
			})
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		GroupID: "todos",
		Short:   "Delete todos (undo brings them back)",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return forEachTodo(cmd, a, args, "Deleted", func(id string) (*schema.Todo, error) {
				return a.tasks.DeleteTodo(cmd.Context(), id)
			})
		},
	}
}

func newEditCmd(a *app) *cobra.Command {
	var (
		flags todoFlags
		title string
	)
	cmd := &cobra.Command{
		Use:     "edit <id>",
		GroupID: "todos",
		Short:   "Change fields of an open todo",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !anyChanged(cmd, "title", "description", "due", "remind", "priority", "category") {
				return fmt.Errorf("nothing to change; pass at least one field flag")
			}
			id, err := a.resolveTodo(ctx, args[0])
			if err != nil {
				return err
			}
			t, err := a.db.GetTodo(ctx, id)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("title") {
				t.Title = title
			}
			if err := flags.apply(cmd, a, t); err != nil {
				return err
			}
			edited, err := a.tasks.EditTodo(ctx, t)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", ui.Success("Updated"), ui.ID(edited.ID), edited.Title)
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	flags.register(cmd)
	return cmd
}

func newPriorityCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "priority <low|medium|high> <id>...",
		GroupID: "todos",
		Short:   "Set the priority of several todos at once",
		Long: `Set the priority of every listed todo. The level is low, medium or high,
or 1 to 3. Each change is logged separately, so undo reverts one todo at
a time.`,
		Example: "  todoee priority high 3f2a 9c1b",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := schema.ParsePriority(args[0])
			if err != nil {
				return err
			}
			return forEachTodo(cmd, a, args[1:], "Reprioritized", func(id string) (*schema.Todo, error) {
				t, err := a.db.GetTodo(cmd.Context(), id)
				if err != nil {
					return nil, err
				}
				t.Priority = p
				return a.tasks.EditTodo(cmd.Context(), t)
			})
		},
	}
}

func anyChanged(cmd *cobra.Command, names ...string) bool {
	for _, name := range names {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}
