package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/todoee/todoee/internal/ai"
	"github.com/todoee/todoee/internal/config"
	"github.com/todoee/todoee/internal/dates"
	"github.com/todoee/todoee/internal/db"
	"github.com/todoee/todoee/internal/history"
	"github.com/todoee/todoee/internal/logging"
	"github.com/todoee/todoee/internal/schema"
	"github.com/todoee/todoee/internal/stash"
	"github.com/todoee/todoee/internal/tasks"
	"github.com/todoee/todoee/internal/ui"
)

// Command annotations.
const (
	// skipStore marks commands that must not open the local store.
	skipStore = "todoee/skip-store"
)

// app carries the state shared by every command of one invocation.
type app struct {
	configDir string
	verbose   bool

	cfg *config.Config
	log *logrus.Logger

	db      *db.DB
	tasks   *tasks.Service
	history *history.Engine
	stash   *stash.Manager
	dates   *dates.Parser
	ai      *ai.Client

	now func() time.Time
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "todoee",
		Short: "Local-first todos with undo, stash and sync",
		Long: `todoee keeps todos in a local SQLite store.

Every change is recorded in an operation log, so it can be undone and
redone. Todos can be stashed out of the way and popped back later, and
the store syncs with a remote database when one is configured.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "configuration directory (default: $"+config.DirEnv+" or the user config dir)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddGroup(
		&cobra.Group{ID: "todos", Title: "Todos:"},
		&cobra.Group{ID: "history", Title: "History:"},
		&cobra.Group{ID: "sync", Title: "Sync and maintenance:"},
	)

	root.AddCommand(
		newAddCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newDoneCmd(a),
		newUndoneCmd(a),
		newDeleteCmd(a),
		newEditCmd(a),
		newPriorityCmd(a),
		newInsightsCmd(a),
		newCategoryCmd(a),
		newUndoCmd(a),
		newRedoCmd(a),
		newLogCmd(a),
		newDiffCmd(a),
		newStashCmd(a),
		newSyncCmd(a),
		newGCCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newDaemonCmd(a),
		newConfigCmd(a),
		newStatusCmd(a),
	)
	return root
}

// setup loads configuration and, unless the command opts out, opens the
// local store.
func (a *app) setup(cmd *cobra.Command) error {
	if a.now == nil {
		a.now = time.Now
	}
	ui.Init(os.Stdout)

	cfg, err := config.Load(a.configDir)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Verbose: a.verbose,
		Out:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	a.log = logger
	a.dates = dates.NewParser(time.Local)

	if cmd.Annotations[skipStore] != "" {
		return nil
	}

	database, err := db.OpenContext(cmd.Context(), cfg.LocalDBPath())
	if err != nil {
		return err
	}
	database.SetClock(a.now)
	a.db = database
	a.tasks = tasks.New(database)
	a.history = history.New(database)
	a.stash = stash.New(database)

	a.log.WithField("db", cfg.LocalDBPath()).Debug("opened local store")
	return nil
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil && a.log != nil {
			a.log.WithError(err).Warn("failed to close local store")
		}
		a.db = nil
	}
}

// resolveTodo expands an id prefix to a full todo id.
func (a *app) resolveTodo(ctx context.Context, prefix string) (string, error) {
	id, err := a.db.ResolveTodoID(ctx, prefix)
	if err != nil {
		return "", explainID(prefix, err)
	}
	return id, nil
}

// resolveCategory accepts a category name or id prefix.
func (a *app) resolveCategory(ctx context.Context, ref string) (*schema.Category, error) {
	c, err := a.db.GetCategoryByName(ctx, ref)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	id, err := a.db.ResolveCategoryID(ctx, ref)
	if err != nil {
		return nil, explainID(ref, err)
	}
	return a.db.GetCategory(ctx, id)
}

// categoryNames maps category ids to names for rendering.
func (a *app) categoryNames(ctx context.Context) (map[string]string, error) {
	categories, err := a.db.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	return names, nil
}

func explainID(prefix string, err error) error {
	var ambiguous *db.AmbiguousIDError
	if errors.As(err, &ambiguous) {
		return fmt.Errorf("id %q matches %d entries, use more characters: %w", prefix, len(ambiguous.Matches), db.ErrAmbiguousID)
	}
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("no entry matches %q: %w", prefix, db.ErrNotFound)
	}
	return err
}
