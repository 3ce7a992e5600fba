package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todoee/todoee/internal/db"
	"github.com/todoee/todoee/internal/schema"
	stashpkg "github.com/todoee/todoee/internal/stash"
	"github.com/todoee/todoee/internal/tasks"
)

var base = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db     *db.DB
	engine *Engine
	tasks  *tasks.Service
	stash  *stashpkg.Manager
}

// setup opens a store whose clock advances one second per reading.
func setup(t *testing.T) *fixture {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	now := base
	database.SetClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	})
	return &fixture{
		db:     database,
		engine: New(database),
		tasks:  tasks.New(database),
		stash:  stashpkg.New(database),
	}
}

type state struct {
	Todos      []*schema.Todo
	Categories []*schema.Category
	Stashed    []string
}

func (f *fixture) state(t *testing.T) state {
	t.Helper()
	ctx := context.Background()
	todos, err := f.db.ListTodos(ctx, db.TodoFilter{IncludeCompleted: true, ByCreation: true})
	require.NoError(t, err)
	categories, err := f.db.ListCategories(ctx)
	require.NoError(t, err)
	entries, err := f.db.ListStashEntries(ctx)
	require.NoError(t, err)

	s := state{Todos: todos, Categories: categories}
	for _, e := range entries {
		s.Stashed = append(s.Stashed, e.EntityID+":"+e.Message)
	}
	return s
}

// ignoreSync drops the fields restore rewrites.
var ignoreSync = cmp.Options{
	cmpopts.IgnoreFields(schema.Todo{}, "SyncStatus", "UpdatedAt"),
	cmpopts.IgnoreFields(schema.Category{}, "SyncStatus", "UpdatedAt"),
	cmpopts.EquateEmpty(),
}

func TestUndoRedo_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	steps := []func() error{}
	var work *schema.Category
	var a, b, c *schema.Todo
	steps = append(steps,
		func() (err error) { work, err = f.tasks.AddCategory(ctx, &schema.Category{Name: "Work"}); return },
		func() (err error) {
			a, err = f.tasks.AddTodo(ctx, &schema.Todo{Title: "Report", CategoryID: work.ID})
			return
		},
		func() (err error) { b, err = f.tasks.AddTodo(ctx, &schema.Todo{Title: "Buy milk"}); return },
		func() error {
			edit := a.Clone()
			edit.Title = "Quarterly report"
			edit.Priority = schema.PriorityHigh
			_, err := f.tasks.EditTodo(ctx, edit)
			return err
		},
		func() error { _, err := f.tasks.CompleteTodo(ctx, b.ID); return err },
		func() error { _, err := f.stash.Push(ctx, a.ID, "WIP"); return err },
		func() (err error) { c, err = f.tasks.AddTodo(ctx, &schema.Todo{Title: "Temp"}); return },
		func() error { _, err := f.tasks.DeleteTodo(ctx, c.ID); return err },
		func() error { _, err := f.stash.Pop(ctx); return err },
		func() error { _, err := f.tasks.UncompleteTodo(ctx, b.ID); return err },
		func() error { _, err := f.stash.Push(ctx, b.ID, "later"); return err },
	)
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
	}
	final := f.state(t)
	require.Len(t, final.Todos, 1)
	require.Len(t, final.Stashed, 1)

	for i := range steps {
		_, err := f.engine.Undo(ctx)
		require.NoError(t, err, "undo %d", i)
	}
	empty := f.state(t)
	assert.Empty(t, empty.Todos)
	assert.Empty(t, empty.Categories)
	assert.Empty(t, empty.Stashed)

	_, err := f.engine.Undo(ctx)
	require.ErrorIs(t, err, ErrNothingToUndo)

	for i := range steps {
		_, err := f.engine.Redo(ctx)
		require.NoError(t, err, "redo %d", i)
	}
	if diff := cmp.Diff(final, f.state(t), ignoreSync); diff != "" {
		t.Errorf("state after redo mismatch (-want +got):\n%s", diff)
	}

	_, err = f.engine.Redo(ctx)
	require.ErrorIs(t, err, ErrNothingToRedo)
}

func TestUndoRedo_CreateScenario(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	created, err := f.tasks.AddTodo(ctx, &schema.Todo{Title: "Buy milk"})
	require.NoError(t, err)

	op, err := f.engine.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.OpCreate, op.Type)
	assert.True(t, op.Undone)
	assert.Empty(t, f.state(t).Todos)

	_, err = f.engine.Redo(ctx)
	require.NoError(t, err)
	got, err := f.db.GetTodo(ctx, created.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(created, got, ignoreSync); diff != "" {
		t.Errorf("redone todo mismatch (-want +got):\n%s", diff)
	}
}

func TestUndo_CompleteRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	todo, err := f.tasks.AddTodo(ctx, &schema.Todo{Title: "Walk dog"})
	require.NoError(t, err)
	completed, err := f.tasks.CompleteTodo(ctx, todo.ID)
	require.NoError(t, err)

	_, err = f.engine.Undo(ctx)
	require.NoError(t, err)

	got, err := f.db.GetTodo(ctx, todo.ID)
	require.NoError(t, err)
	assert.False(t, got.IsCompleted)
	assert.Nil(t, got.CompletedAt)
	assert.Equal(t, schema.SyncPending, got.SyncStatus)
	if diff := cmp.Diff(todo, got, ignoreSync); diff != "" {
		t.Errorf("restored todo mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, got.UpdatedAt.After(completed.UpdatedAt), "restored row must outrank the completed revision")
}

func TestUndo_DeleteRestampsRestoredRow(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	todo, err := f.tasks.AddTodo(ctx, &schema.Todo{Title: "Keep me"})
	require.NoError(t, err)
	_, err = f.tasks.DeleteTodo(ctx, todo.ID)
	require.NoError(t, err)

	_, err = f.engine.Undo(ctx)
	require.NoError(t, err)

	got, err := f.db.GetTodo(ctx, todo.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.After(todo.UpdatedAt))
	assert.Equal(t, "Keep me", got.Title)

	tombstones, err := f.db.ListTombstones(ctx, schema.EntityTodo, false)
	require.NoError(t, err)
	assert.Empty(t, tombstones)

	// The restamped row still satisfies the redo check.
	_, err = f.engine.Redo(ctx)
	require.NoError(t, err)
	exists, err := f.db.TodoExists(ctx, todo.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUndo_EntityChangedOutsideLog(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	todo, err := f.tasks.AddTodo(ctx, &schema.Todo{Title: "Original"})
	require.NoError(t, err)
	_, err = f.tasks.CompleteTodo(ctx, todo.ID)
	require.NoError(t, err)
	latest, err := f.db.LatestActiveOperation(ctx)
	require.NoError(t, err)

	// An untracked write bypasses the log.
	changed, err := f.db.GetTodo(ctx, todo.ID)
	require.NoError(t, err)
	changed.Title = "Changed elsewhere"
	require.NoError(t, f.db.UpdateTodo(ctx, changed))

	_, err = f.engine.Undo(ctx)
	require.ErrorIs(t, err, ErrEntityUnavailable)

	still, err := f.db.LatestActiveOperation(ctx)
	require.NoError(t, err)
	assert.Equal(t, latest.ID, still.ID)
	assert.False(t, still.Undone)

	got, err := f.db.GetTodo(ctx, todo.ID)
	require.NoError(t, err)
	assert.Equal(t, "Changed elsewhere", got.Title)
	assert.True(t, got.IsCompleted)
}

func TestUndo_EntityDeletedOutsideLog(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	todo, err := f.tasks.AddTodo(ctx, &schema.Todo{Title: "Gone"})
	require.NoError(t, err)
	require.NoError(t, f.db.EvictTodo(ctx, todo.ID))

	_, err = f.engine.Undo(ctx)
	require.ErrorIs(t, err, ErrEntityUnavailable)

	op, err := f.db.LatestActiveOperation(ctx)
	require.NoError(t, err)
	assert.False(t, op.Undone)
}

func TestRedo_EntityReappearedOutsideLog(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	todo, err := f.tasks.AddTodo(ctx, &schema.Todo{Title: "Twice"})
	require.NoError(t, err)
	undone, err := f.engine.Undo(ctx)
	require.NoError(t, err)

	require.NoError(t, f.db.InsertTodo(ctx, todo.Clone()))

	_, err = f.engine.Redo(ctx)
	require.ErrorIs(t, err, ErrEntityUnavailable)

	op, err := f.db.GetOperation(ctx, undone.ID)
	require.NoError(t, err)
	assert.True(t, op.Undone)
}

func TestUndo_CancelledContextChangesNothing(t *testing.T) {
	f := setup(t)
	todo, err := f.tasks.AddTodo(context.Background(), &schema.Todo{Title: "Keep"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.engine.Undo(ctx)
	require.ErrorIs(t, err, context.Canceled)

	exists, err := f.db.TodoExists(context.Background(), todo.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRedo_ChainBrokenByNewMutation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.tasks.AddTodo(ctx, &schema.Todo{Title: "First"})
	require.NoError(t, err)
	_, err = f.engine.Undo(ctx)
	require.NoError(t, err)

	_, err = f.tasks.AddTodo(ctx, &schema.Todo{Title: "Second"})
	require.NoError(t, err)

	_, err = f.engine.Redo(ctx)
	assert.ErrorIs(t, err, ErrNothingToRedo)
}

func TestUndo_StashAfterClearIsUnavailable(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	todo, err := f.tasks.AddTodo(ctx, &schema.Todo{Title: "Parked"})
	require.NoError(t, err)
	_, err = f.stash.Push(ctx, todo.ID, "")
	require.NoError(t, err)
	_, err = f.stash.Clear(ctx)
	require.NoError(t, err)

	_, err = f.engine.Undo(ctx)
	assert.ErrorIs(t, err, ErrEntityUnavailable)
}

func TestLogSinceSweep(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	for _, title := range []string{"a", "b", "c"} {
		_, err := f.tasks.AddTodo(ctx, &schema.Todo{Title: title})
		require.NoError(t, err)
	}

	ops, err := f.engine.Log(ctx, 2)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "c", ops[0].Label())

	since, err := f.engine.Since(ctx, base)
	require.NoError(t, err)
	require.Len(t, since, 3)
	assert.Equal(t, "a", since[0].Label())

	cutoff := since[2].CreatedAt
	n, err := f.engine.Sweep(ctx, cutoff, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	all, err := f.engine.Log(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	n, err = f.engine.Sweep(ctx, cutoff, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	all, err = f.engine.Log(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
