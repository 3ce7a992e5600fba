package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/todoee/todoee/internal/ids"
	"github.com/todoee/todoee/internal/schema"
)

// ErrAmbiguousID is matched by AmbiguousIDError.
var ErrAmbiguousID = errors.New("ambiguous id prefix")

// AmbiguousIDError lists the ids a short prefix matched.
type AmbiguousIDError struct {
	Kind    string
	Prefix  string
	Matches []string
}

func (e *AmbiguousIDError) Error() string {
	return fmt.Sprintf("prefix %q matches %d %s rows", e.Prefix, len(e.Matches), e.Kind)
}

// Is makes errors.Is(err, ErrAmbiguousID) true.
func (e *AmbiguousIDError) Is(target error) bool {
	return target == ErrAmbiguousID
}

const todoColumns = `id, category_id, title, description, due_date, reminder_at,
	priority, is_completed, completed_at, ai_metadata,
	created_at, updated_at, sync_status`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanTodo reads one todo row selected with todoColumns.
func scanTodo(row rowScanner) (*schema.Todo, error) {
	var t schema.Todo
	var categoryID, description, aiMetadata sql.NullString
	var dueDate, reminderAt, completedAt sql.NullString
	var createdAt, updatedAt string
	var completed int

	err := row.Scan(
		&t.ID,
		&categoryID,
		&t.Title,
		&description,
		&dueDate,
		&reminderAt,
		&t.Priority,
		&completed,
		&completedAt,
		&aiMetadata,
		&createdAt,
		&updatedAt,
		&t.SyncStatus,
	)
	if err != nil {
		return nil, err
	}

	t.CategoryID = categoryID.String
	t.Description = description.String
	t.AIMetadata = aiMetadata.String
	t.IsCompleted = completed != 0

	if t.DueDate, err = nullStringToTime(dueDate); err != nil {
		return nil, fmt.Errorf("failed to parse due_date: %w", err)
	}
	if t.ReminderAt, err = nullStringToTime(reminderAt); err != nil {
		return nil, fmt.Errorf("failed to parse reminder_at: %w", err)
	}
	if t.CompletedAt, err = nullStringToTime(completedAt); err != nil {
		return nil, fmt.Errorf("failed to parse completed_at: %w", err)
	}
	if t.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if t.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &t, nil
}

// scanTodos is a helper function to scan multiple todos from query results.
func scanTodos(rows *sql.Rows) ([]*schema.Todo, error) {
	var todos []*schema.Todo
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating todos: %w", err)
	}
	return todos, nil
}

func todoArgs(t *schema.Todo) []any {
	return []any{
		t.ID,
		stringToNull(t.CategoryID),
		t.Title,
		stringToNull(t.Description),
		timeToNullString(t.DueDate),
		timeToNullString(t.ReminderAt),
		int(t.Priority),
		boolToInt(t.IsCompleted),
		timeToNullString(t.CompletedAt),
		stringToNull(t.AIMetadata),
		FormatTime(t.CreatedAt),
		FormatTime(t.UpdatedAt),
		string(t.SyncStatus),
	}
}

const upsertTodoSQL = `
	INSERT INTO todos (` + todoColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		category_id = excluded.category_id,
		title = excluded.title,
		description = excluded.description,
		due_date = excluded.due_date,
		reminder_at = excluded.reminder_at,
		priority = excluded.priority,
		is_completed = excluded.is_completed,
		completed_at = excluded.completed_at,
		ai_metadata = excluded.ai_metadata,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		sync_status = excluded.sync_status
	`

// InsertTodo creates a new todo row. The row is stored Pending and any
// tombstone left for the id is cleared.
func (q *Queries) InsertTodo(ctx context.Context, t *schema.Todo) error {
	t.SyncStatus = schema.SyncPending
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid todo: %w", err)
	}

	query := `INSERT INTO todos (` + todoColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := q.q.ExecContext(ctx, query, todoArgs(t)...); err != nil {
		return fmt.Errorf("failed to insert todo %s: %w", t.ID, err)
	}
	return q.DeleteTombstone(ctx, t.ID)
}

// UpdateTodo replaces a todo with the full value t.
//
// UpdatedAt is advanced to the store clock, and strictly past the stored
// value, and the row becomes Pending. t is modified in place so the caller
// holds the exact stored shape. Returns ErrNotFound if the row is missing.
func (q *Queries) UpdateTodo(ctx context.Context, t *schema.Todo) error {
	current, err := q.GetTodo(ctx, t.ID)
	if err != nil {
		return err
	}

	t.UpdatedAt = q.advance(current.UpdatedAt)
	t.SyncStatus = schema.SyncPending
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid todo: %w", err)
	}

	if _, err := q.q.ExecContext(ctx, upsertTodoSQL, todoArgs(t)...); err != nil {
		return fmt.Errorf("failed to update todo %s: %w", t.ID, err)
	}
	return nil
}

// PutTodo writes a snapshot back verbatim, creating the row if needed.
//
// Every field including UpdatedAt is taken from t, except SyncStatus which
// is forced to Pending because the write is a local change. Any tombstone
// for the id is cleared. t is not modified.
func (q *Queries) PutTodo(ctx context.Context, t *schema.Todo) error {
	row := t.Clone()
	row.SyncStatus = schema.SyncPending
	if err := row.Validate(); err != nil {
		return fmt.Errorf("invalid todo: %w", err)
	}

	if _, err := q.q.ExecContext(ctx, upsertTodoSQL, todoArgs(row)...); err != nil {
		return fmt.Errorf("failed to restore todo %s: %w", t.ID, err)
	}
	return q.DeleteTombstone(ctx, t.ID)
}

// SaveSyncedTodo stores a row received from the remote, marked Synced.
// It does not touch tombstones.
func (q *Queries) SaveSyncedTodo(ctx context.Context, t *schema.Todo) error {
	row := t.Clone()
	row.SyncStatus = schema.SyncSynced
	if err := row.Validate(); err != nil {
		return fmt.Errorf("invalid remote todo: %w", err)
	}

	if _, err := q.q.ExecContext(ctx, upsertTodoSQL, todoArgs(row)...); err != nil {
		return fmt.Errorf("failed to save remote todo %s: %w", t.ID, err)
	}
	return nil
}

// DeleteTodo hard-deletes a todo and records a tombstone so that a later
// sync does not download it again. Returns ErrNotFound if the row is missing.
func (q *Queries) DeleteTodo(ctx context.Context, id string) error {
	if err := q.EvictTodo(ctx, id); err != nil {
		return err
	}
	return q.PutTombstone(ctx, schema.EntityTodo, id)
}

// EvictTodo removes a todo without leaving a tombstone. Used when the row
// moves to the stash or when the remote already deleted it.
func (q *Queries) EvictTodo(ctx context.Context, id string) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete todo %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete todo %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("todo %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetTodo retrieves a single todo by full id.
// Returns ErrNotFound if the todo does not exist.
func (q *Queries) GetTodo(ctx context.Context, id string) (*schema.Todo, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+todoColumns+` FROM todos WHERE id = ?`, id)
	t, err := scanTodo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("todo %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get todo %s: %w", id, err)
	}
	return t, nil
}

// TodoExists reports whether a row exists for id.
func (q *Queries) TodoExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM todos WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check todo %s: %w", id, err)
	}
	return n > 0, nil
}

// TodoFilter configures ListTodos.
type TodoFilter struct {
	// IncludeCompleted also returns completed todos.
	IncludeCompleted bool
	// OnlyCompleted returns completed todos only.
	OnlyCompleted bool
	// CategoryID restricts to one category (empty = all)
	CategoryID string
	// DueFrom and DueBefore bound due_date as [DueFrom, DueBefore).
	DueFrom   *time.Time
	DueBefore *time.Time
	// Search matches a case-insensitive substring of title or description.
	Search string
	// Limit restricts the number of results (0 = no limit)
	Limit int
	// ByCreation orders oldest first by created_at instead of by urgency.
	ByCreation bool
	// Newest reverses ByCreation ordering.
	Newest bool
}

// ListTodos retrieves todos matching the given filters.
// By default results are ordered by priority DESC, due date (undated last),
// then created_at ASC.
func (q *Queries) ListTodos(ctx context.Context, filter TodoFilter) ([]*schema.Todo, error) {
	var conditions []string
	var args []any

	switch {
	case filter.OnlyCompleted:
		conditions = append(conditions, "is_completed = 1")
	case !filter.IncludeCompleted:
		conditions = append(conditions, "is_completed = 0")
	}
	if filter.CategoryID != "" {
		conditions = append(conditions, "category_id = ?")
		args = append(args, filter.CategoryID)
	}
	if filter.DueFrom != nil {
		conditions = append(conditions, "due_date >= ?")
		args = append(args, FormatTime(*filter.DueFrom))
	}
	if filter.DueBefore != nil {
		conditions = append(conditions, "due_date < ?")
		args = append(args, FormatTime(*filter.DueBefore))
	}
	if filter.Search != "" {
		conditions = append(conditions, "(instr(lower(title), ?) > 0 OR instr(lower(coalesce(description, '')), ?) > 0)")
		needle := strings.ToLower(filter.Search)
		args = append(args, needle, needle)
	}

	query := `SELECT ` + todoColumns + ` FROM todos`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	switch {
	case filter.ByCreation && filter.Newest:
		query += " ORDER BY created_at DESC, id DESC"
	case filter.ByCreation:
		query += " ORDER BY created_at ASC, id ASC"
	default:
		query += " ORDER BY priority DESC, due_date IS NULL, due_date ASC, created_at ASC"
	}

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	return scanTodos(rows)
}

// ListTodosNeedingUpload returns Pending and Conflict todos, oldest revision first.
func (q *Queries) ListTodosNeedingUpload(ctx context.Context) ([]*schema.Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todos
		WHERE sync_status IN ('pending', 'conflict')
		ORDER BY updated_at ASC, id ASC`
	rows, err := q.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending todos: %w", err)
	}
	defer rows.Close()

	return scanTodos(rows)
}

// ListTodosWithReminders returns open todos whose reminder falls in [from, to).
func (q *Queries) ListTodosWithReminders(ctx context.Context, from, to time.Time) ([]*schema.Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todos
		WHERE is_completed = 0 AND reminder_at >= ? AND reminder_at < ?
		ORDER BY reminder_at ASC`
	rows, err := q.q.QueryContext(ctx, query, FormatTime(from), FormatTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()

	return scanTodos(rows)
}

// ListCompletedBefore returns completed todos whose completed_at is older than cutoff.
func (q *Queries) ListCompletedBefore(ctx context.Context, cutoff time.Time) ([]*schema.Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todos
		WHERE is_completed = 1 AND completed_at < ?
		ORDER BY completed_at ASC`
	rows, err := q.q.QueryContext(ctx, query, FormatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to list completed todos: %w", err)
	}
	defer rows.Close()

	return scanTodos(rows)
}

// MarkTodoSynced flips a todo to Synced if it still carries updatedAt.
// An edit that landed after the upload keeps the row Pending.
func (q *Queries) MarkTodoSynced(ctx context.Context, id string, updatedAt time.Time) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		`UPDATE todos SET sync_status = 'synced' WHERE id = ? AND updated_at = ? AND sync_status != 'synced'`,
		id, FormatTime(updatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to mark todo %s synced: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark todo %s synced: %w", id, err)
	}
	return n > 0, nil
}

// MarkTodoConflict flags a todo whose tied remote copy differs.
func (q *Queries) MarkTodoConflict(ctx context.Context, id string) error {
	if _, err := q.q.ExecContext(ctx, `UPDATE todos SET sync_status = 'conflict' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to mark todo %s conflicted: %w", id, err)
	}
	return nil
}

// CountTodosInCategory returns how many todos reference categoryID.
func (q *Queries) CountTodosInCategory(ctx context.Context, categoryID string) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM todos WHERE category_id = ?`, categoryID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count todos in category %s: %w", categoryID, err)
	}
	return n, nil
}

// ResolveTodoID expands a case-insensitive id prefix to a full todo id.
//
// An exact match wins. Otherwise the prefix must match exactly one row:
// no match returns ErrNotFound, several return *AmbiguousIDError.
func (q *Queries) ResolveTodoID(ctx context.Context, prefix string) (string, error) {
	return q.resolveID(ctx, "todos", "todo", prefix)
}

func (q *Queries) resolveID(ctx context.Context, table, kind, prefix string) (string, error) {
	prefix = ids.Normalize(prefix)
	if prefix == "" {
		return "", fmt.Errorf("%s id is required", kind)
	}

	query := `SELECT id FROM ` + table + ` WHERE lower(substr(id, 1, ?)) = ? ORDER BY id LIMIT 10`
	rows, err := q.q.QueryContext(ctx, query, len(prefix), prefix)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s id %q: %w", kind, prefix, err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("failed to scan %s id: %w", kind, err)
		}
		if strings.ToLower(id) == prefix {
			return id, nil
		}
		matches = append(matches, id)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("error iterating %s ids: %w", kind, err)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no %s matching %q: %w", kind, prefix, ErrNotFound)
	case 1:
		return matches[0], nil
	}
	return "", &AmbiguousIDError{Kind: kind, Prefix: prefix, Matches: matches}
}

// advance returns the store clock, bumped past prev if the clock has not moved.
func (q *Queries) advance(prev time.Time) time.Time {
	next := q.now()
	if !next.After(prev) {
		next = prev.Add(time.Nanosecond)
	}
	return next
}
