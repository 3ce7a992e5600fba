package tasks

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todoee/todoee/internal/db"
	"github.com/todoee/todoee/internal/schema"
)

var base = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Service, *db.DB) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	database.SetClock(func() time.Time { return base })
	return New(database), database
}

func countOps(t *testing.T, database *db.DB) int {
	t.Helper()
	n, err := database.CountOperations(context.Background())
	require.NoError(t, err)
	return n
}

func TestAddTodo_LogsCreate(t *testing.T) {
	ctx := context.Background()
	svc, database := setup(t)

	todo, err := svc.AddTodo(ctx, &schema.Todo{Title: "  Buy milk "})
	require.NoError(t, err)
	assert.NotEmpty(t, todo.ID)
	assert.Equal(t, "Buy milk", todo.Title)
	assert.Equal(t, schema.PriorityMedium, todo.Priority)
	assert.Equal(t, schema.SyncPending, todo.SyncStatus)

	op, err := database.LatestActiveOperation(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.OpCreate, op.Type)
	assert.Equal(t, todo.ID, op.EntityID)
	assert.Nil(t, op.PreviousState)
	require.NotNil(t, op.NewState)
	assert.True(t, op.NewState.Todo.SameContent(todo))
}

func TestAddTodo_UnknownCategoryWritesNothing(t *testing.T) {
	ctx := context.Background()
	svc, database := setup(t)

	_, err := svc.AddTodo(ctx, &schema.Todo{Title: "Orphan", CategoryID: "missing"})
	assert.ErrorIs(t, err, ErrUnknownCategory)
	assert.Equal(t, 0, countOps(t, database))

	todos, err := database.ListTodos(ctx, db.TodoFilter{IncludeCompleted: true})
	require.NoError(t, err)
	assert.Empty(t, todos)
}

func TestEditTodo(t *testing.T) {
	ctx := context.Background()
	svc, database := setup(t)

	todo, err := svc.AddTodo(ctx, &schema.Todo{Title: "Draft"})
	require.NoError(t, err)

	database.SetClock(func() time.Time { return base.Add(time.Minute) })
	edit := todo.Clone()
	edit.Title = "Final"
	edit.Priority = schema.PriorityHigh
	got, err := svc.EditTodo(ctx, edit)
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Minute), got.UpdatedAt)
	assert.Equal(t, todo.CreatedAt, got.CreatedAt)

	op, err := database.LatestActiveOperation(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.OpUpdate, op.Type)
	assert.Equal(t, "Draft", op.PreviousState.Todo.Title)
	assert.Equal(t, "Final", op.NewState.Todo.Title)
}

func TestEditTodo_Rejections(t *testing.T) {
	ctx := context.Background()
	svc, database := setup(t)

	done, err := svc.AddTodo(ctx, &schema.Todo{Title: "Done"})
	require.NoError(t, err)
	_, err = svc.CompleteTodo(ctx, done.ID)
	require.NoError(t, err)

	open, err := svc.AddTodo(ctx, &schema.Todo{Title: "Open"})
	require.NoError(t, err)
	before := countOps(t, database)

	edit := done.Clone()
	edit.Title = "changed"
	_, err = svc.EditTodo(ctx, edit)
	assert.ErrorIs(t, err, ErrCompleted)

	sneaky := open.Clone()
	sneaky.MarkComplete(base)
	_, err = svc.EditTodo(ctx, sneaky)
	assert.Error(t, err)

	_, err = svc.EditTodo(ctx, &schema.Todo{ID: "nope", Title: "x", Priority: schema.PriorityLow})
	assert.ErrorIs(t, err, db.ErrNotFound)

	assert.Equal(t, before, countOps(t, database))
}

func TestCompleteAndUncomplete(t *testing.T) {
	ctx := context.Background()
	svc, database := setup(t)

	todo, err := svc.AddTodo(ctx, &schema.Todo{Title: "Walk dog"})
	require.NoError(t, err)

	done, err := svc.CompleteTodo(ctx, todo.ID)
	require.NoError(t, err)
	assert.True(t, done.IsCompleted)
	require.NotNil(t, done.CompletedAt)

	_, err = svc.CompleteTodo(ctx, todo.ID)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)

	reopened, err := svc.UncompleteTodo(ctx, todo.ID)
	require.NoError(t, err)
	assert.False(t, reopened.IsCompleted)
	assert.Nil(t, reopened.CompletedAt)

	_, err = svc.UncompleteTodo(ctx, todo.ID)
	assert.ErrorIs(t, err, ErrNotCompleted)

	ops, err := database.ListOperations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, schema.OpUncomplete, ops[0].Type)
	assert.Equal(t, schema.OpComplete, ops[1].Type)
	assert.Equal(t, schema.OpCreate, ops[2].Type)
}

func TestDeleteTodo_LeavesTombstone(t *testing.T) {
	ctx := context.Background()
	svc, database := setup(t)

	todo, err := svc.AddTodo(ctx, &schema.Todo{Title: "Temp"})
	require.NoError(t, err)

	deleted, err := svc.DeleteTodo(ctx, todo.ID)
	require.NoError(t, err)
	assert.Equal(t, todo.ID, deleted.ID)

	_, err = database.GetTodo(ctx, todo.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)

	has, err := database.HasTombstone(ctx, todo.ID)
	require.NoError(t, err)
	assert.True(t, has)

	op, err := database.LatestActiveOperation(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.OpDelete, op.Type)
	assert.Nil(t, op.NewState)
	assert.Equal(t, "Temp", op.PreviousState.Todo.Title)
}

func TestPurgeCompleted(t *testing.T) {
	ctx := context.Background()
	svc, database := setup(t)

	old, err := svc.AddTodo(ctx, &schema.Todo{Title: "Old"})
	require.NoError(t, err)
	_, err = svc.CompleteTodo(ctx, old.ID)
	require.NoError(t, err)

	database.SetClock(func() time.Time { return base.Add(72 * time.Hour) })
	recent, err := svc.AddTodo(ctx, &schema.Todo{Title: "Recent"})
	require.NoError(t, err)
	_, err = svc.CompleteTodo(ctx, recent.ID)
	require.NoError(t, err)

	cutoff := base.Add(24 * time.Hour)
	preview, err := svc.PurgeCompleted(ctx, cutoff, true)
	require.NoError(t, err)
	require.Len(t, preview, 1)
	assert.Equal(t, old.ID, preview[0].ID)

	exists, err := database.TodoExists(ctx, old.ID)
	require.NoError(t, err)
	assert.True(t, exists, "dry run must not delete")

	purged, err := svc.PurgeCompleted(ctx, cutoff, false)
	require.NoError(t, err)
	require.Len(t, purged, 1)

	exists, err = database.TodoExists(ctx, old.ID)
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = database.TodoExists(ctx, recent.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCategories(t *testing.T) {
	ctx := context.Background()
	svc, database := setup(t)

	work, err := svc.AddCategory(ctx, &schema.Category{Name: "Work"})
	require.NoError(t, err)

	_, err = svc.AddCategory(ctx, &schema.Category{Name: "work"})
	assert.ErrorIs(t, err, ErrCategoryExists)

	same, created, err := svc.EnsureCategory(ctx, "WORK", false)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, work.ID, same.ID)

	home, created, err := svc.EnsureCategory(ctx, "Home", true)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, home.IsAIGenerated)

	rename := home.Clone()
	rename.Name = "Work"
	_, err = svc.UpdateCategory(ctx, rename)
	assert.ErrorIs(t, err, ErrCategoryExists)

	renamed, err := svc.RenameCategory(ctx, home.ID, " House ")
	require.NoError(t, err)
	assert.Equal(t, "House", renamed.Name)

	_, err = svc.AddTodo(ctx, &schema.Todo{Title: "Report", CategoryID: work.ID})
	require.NoError(t, err)

	before := countOps(t, database)
	_, err = svc.DeleteCategory(ctx, work.ID)
	assert.ErrorIs(t, err, ErrCategoryInUse)
	assert.Equal(t, before, countOps(t, database))

	_, err = svc.DeleteCategory(ctx, home.ID)
	require.NoError(t, err)
	_, err = database.GetCategory(ctx, home.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)
}
