package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/todoee/todoee/internal/db"
	"github.com/todoee/todoee/internal/schema"
)

// SQLStore is a Store backed by database/sql.
type SQLStore struct {
	conn    *sql.DB
	dialect dialect
}

var _ Store = (*SQLStore)(nil)

// Open connects to the remote named by rawURL and creates its tables.
//
// The caller MUST call Close() when done.
func Open(ctx context.Context, rawURL string) (*SQLStore, error) {
	d, dsn, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s remote: %w", d.name, err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to reach %s remote: %w", d.name, err)
	}

	s := &SQLStore{conn: conn, dialect: d}
	if err := s.Init(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Dialect names the backend: sqlite, libsql or mysql.
func (s *SQLStore) Dialect() string {
	return s.dialect.name
}

// Init implements Store.Init.
func (s *SQLStore) Init(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create remote schema: %w", err)
		}
	}
	return nil
}

// Close implements Store.Close.
func (s *SQLStore) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close remote: %w", err)
	}
	return nil
}

var (
	categoryColumns = []string{"id", "name", "color", "is_ai_generated", "created_at", "updated_at"}
	todoColumns     = []string{"id", "category_id", "title", "description", "due_date", "reminder_at",
		"priority", "is_completed", "completed_at", "ai_metadata", "created_at", "updated_at"}
)

// upsertSQL builds an insert of cols that clears deleted_at and stamps
// synced_at from the remote clock. An existing row is only overwritten by
// a strictly newer updated_at.
func (s *SQLStore) upsertSQL(table string, cols []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	updated := make([]string, 0, len(cols)+1)
	for _, c := range cols[1:] {
		if c != "updated_at" {
			updated = append(updated, c)
		}
	}
	updated = append(updated, "deleted_at", "synced_at", "updated_at")
	return `INSERT INTO ` + table + ` (` + strings.Join(cols, ", ") + `, deleted_at, synced_at)
		VALUES (` + placeholders + `, NULL, ` + s.dialect.now + `)` + s.dialect.upsertTail(table, updated)
}

func (s *SQLStore) upsert(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpsertCategory implements Store.UpsertCategory.
func (s *SQLStore) UpsertCategory(ctx context.Context, c *schema.Category) (bool, error) {
	applied, err := s.upsert(ctx, s.upsertSQL("categories", categoryColumns),
		c.ID,
		c.Name,
		nullString(c.Color),
		boolToInt(c.IsAIGenerated),
		db.FormatTime(c.CreatedAt),
		db.FormatTime(c.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upload category %s: %w", c.ID, err)
	}
	return applied, nil
}

// UpsertTodo implements Store.UpsertTodo.
func (s *SQLStore) UpsertTodo(ctx context.Context, t *schema.Todo) (bool, error) {
	applied, err := s.upsert(ctx, s.upsertSQL("todos", todoColumns),
		t.ID,
		nullString(t.CategoryID),
		t.Title,
		nullString(t.Description),
		nullTime(t.DueDate),
		nullTime(t.ReminderAt),
		int(t.Priority),
		boolToInt(t.IsCompleted),
		nullTime(t.CompletedAt),
		nullString(t.AIMetadata),
		db.FormatTime(t.CreatedAt),
		db.FormatTime(t.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upload todo %s: %w", t.ID, err)
	}
	return applied, nil
}

func selectSQL(table string, cols []string) string {
	return `SELECT ` + strings.Join(cols, ", ") + `, deleted_at, synced_at FROM ` + table
}

func (s *SQLStore) since(ctx context.Context, table string, cols []string, checkpoint string) (*sql.Rows, error) {
	query := selectSQL(table, cols) + ` WHERE synced_at >= ? ORDER BY synced_at, id`
	rows, err := s.conn.QueryContext(ctx, query, checkpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", table, err)
	}
	return rows, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCategory(sc scanner) (Row[*schema.Category], error) {
	var c schema.Category
	var color, deletedAt sql.NullString
	var createdAt, updatedAt string
	var aiGenerated int
	row := Row[*schema.Category]{Entity: &c}

	if err := sc.Scan(&c.ID, &c.Name, &color, &aiGenerated, &createdAt, &updatedAt, &deletedAt, &row.SyncedAt); err != nil {
		return row, err
	}
	c.Color = color.String
	c.IsAIGenerated = aiGenerated != 0

	var err error
	if c.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return row, fmt.Errorf("remote category %s: %w", c.ID, err)
	}
	if c.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return row, fmt.Errorf("remote category %s: %w", c.ID, err)
	}
	c.SyncStatus = schema.SyncSynced
	row.Deleted = deletedAt.Valid
	return row, nil
}

func scanTodo(sc scanner) (Row[*schema.Todo], error) {
	var t schema.Todo
	var categoryID, description, aiMetadata, deletedAt sql.NullString
	var dueDate, reminderAt, completedAt sql.NullString
	var createdAt, updatedAt string
	var completed int
	row := Row[*schema.Todo]{Entity: &t}

	err := sc.Scan(&t.ID, &categoryID, &t.Title, &description, &dueDate, &reminderAt,
		&t.Priority, &completed, &completedAt, &aiMetadata, &createdAt, &updatedAt,
		&deletedAt, &row.SyncedAt)
	if err != nil {
		return row, err
	}
	t.CategoryID = categoryID.String
	t.Description = description.String
	t.AIMetadata = aiMetadata.String
	t.IsCompleted = completed != 0

	if t.DueDate, err = parseNullTime(dueDate); err != nil {
		return row, fmt.Errorf("remote todo %s: %w", t.ID, err)
	}
	if t.ReminderAt, err = parseNullTime(reminderAt); err != nil {
		return row, fmt.Errorf("remote todo %s: %w", t.ID, err)
	}
	if t.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return row, fmt.Errorf("remote todo %s: %w", t.ID, err)
	}
	if t.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return row, fmt.Errorf("remote todo %s: %w", t.ID, err)
	}
	if t.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return row, fmt.Errorf("remote todo %s: %w", t.ID, err)
	}
	t.SyncStatus = schema.SyncSynced
	row.Deleted = deletedAt.Valid
	return row, nil
}

// CategoriesSince implements Store.CategoriesSince.
func (s *SQLStore) CategoriesSince(ctx context.Context, checkpoint string) ([]Row[*schema.Category], error) {
	rows, err := s.since(ctx, "categories", categoryColumns, checkpoint)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row[*schema.Category]
	for rows.Next() {
		row, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan remote category: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating remote categories: %w", err)
	}
	return out, nil
}

// TodosSince implements Store.TodosSince.
func (s *SQLStore) TodosSince(ctx context.Context, checkpoint string) ([]Row[*schema.Todo], error) {
	rows, err := s.since(ctx, "todos", todoColumns, checkpoint)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row[*schema.Todo]
	for rows.Next() {
		row, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan remote todo: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating remote todos: %w", err)
	}
	return out, nil
}

// Category implements Store.Category.
func (s *SQLStore) Category(ctx context.Context, id string) (Row[*schema.Category], error) {
	row, err := scanCategory(s.conn.QueryRowContext(ctx, selectSQL("categories", categoryColumns)+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return row, fmt.Errorf("%w: category %s", ErrNotFound, id)
	}
	if err != nil {
		return row, fmt.Errorf("failed to fetch remote category %s: %w", id, err)
	}
	return row, nil
}

// Todo implements Store.Todo.
func (s *SQLStore) Todo(ctx context.Context, id string) (Row[*schema.Todo], error) {
	row, err := scanTodo(s.conn.QueryRowContext(ctx, selectSQL("todos", todoColumns)+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return row, fmt.Errorf("%w: todo %s", ErrNotFound, id)
	}
	if err != nil {
		return row, fmt.Errorf("failed to fetch remote todo %s: %w", id, err)
	}
	return row, nil
}

func (s *SQLStore) softDelete(ctx context.Context, table, id string, deletedAt time.Time) error {
	query := `UPDATE ` + table + ` SET deleted_at = ?, synced_at = ` + s.dialect.now + `
		WHERE id = ? AND deleted_at IS NULL`
	if _, err := s.conn.ExecContext(ctx, query, db.FormatTime(deletedAt), id); err != nil {
		return fmt.Errorf("failed to delete remote %s %s: %w", table, id, err)
	}
	return nil
}

// DeleteCategory implements Store.DeleteCategory.
func (s *SQLStore) DeleteCategory(ctx context.Context, id string, deletedAt time.Time) error {
	return s.softDelete(ctx, "categories", id, deletedAt)
}

// DeleteTodo implements Store.DeleteTodo.
func (s *SQLStore) DeleteTodo(ctx context.Context, id string, deletedAt time.Time) error {
	return s.softDelete(ctx, "todos", id, deletedAt)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: db.FormatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := db.ParseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
