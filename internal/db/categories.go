package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/todoee/todoee/internal/schema"
)

const categoryColumns = `id, name, color, is_ai_generated, created_at, updated_at, sync_status`

func scanCategory(row rowScanner) (*schema.Category, error) {
	var c schema.Category
	var color sql.NullString
	var aiGenerated int
	var createdAt, updatedAt string

	if err := row.Scan(&c.ID, &c.Name, &color, &aiGenerated, &createdAt, &updatedAt, &c.SyncStatus); err != nil {
		return nil, err
	}

	c.Color = color.String
	c.IsAIGenerated = aiGenerated != 0

	var err error
	if c.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if c.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &c, nil
}

func scanCategories(rows *sql.Rows) ([]*schema.Category, error) {
	var categories []*schema.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return categories, nil
}

func categoryArgs(c *schema.Category) []any {
	return []any{
		c.ID,
		c.Name,
		stringToNull(c.Color),
		boolToInt(c.IsAIGenerated),
		FormatTime(c.CreatedAt),
		FormatTime(c.UpdatedAt),
		string(c.SyncStatus),
	}
}

const upsertCategorySQL = `
	INSERT INTO categories (` + categoryColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		color = excluded.color,
		is_ai_generated = excluded.is_ai_generated,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		sync_status = excluded.sync_status
	`

// InsertCategory creates a new category row, stored Pending.
func (q *Queries) InsertCategory(ctx context.Context, c *schema.Category) error {
	c.SyncStatus = schema.SyncPending
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid category: %w", err)
	}

	query := `INSERT INTO categories (` + categoryColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := q.q.ExecContext(ctx, query, categoryArgs(c)...); err != nil {
		return fmt.Errorf("failed to insert category %s: %w", c.ID, err)
	}
	return q.DeleteTombstone(ctx, c.ID)
}

// UpdateCategory replaces a category with c, advancing UpdatedAt and
// setting Pending. c is modified in place.
func (q *Queries) UpdateCategory(ctx context.Context, c *schema.Category) error {
	current, err := q.GetCategory(ctx, c.ID)
	if err != nil {
		return err
	}

	c.UpdatedAt = q.advance(current.UpdatedAt)
	c.SyncStatus = schema.SyncPending
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid category: %w", err)
	}

	if _, err := q.q.ExecContext(ctx, upsertCategorySQL, categoryArgs(c)...); err != nil {
		return fmt.Errorf("failed to update category %s: %w", c.ID, err)
	}
	return nil
}

// PutCategory writes a snapshot back verbatim with SyncStatus forced to
// Pending, clearing any tombstone. c is not modified.
func (q *Queries) PutCategory(ctx context.Context, c *schema.Category) error {
	row := c.Clone()
	row.SyncStatus = schema.SyncPending
	if err := row.Validate(); err != nil {
		return fmt.Errorf("invalid category: %w", err)
	}

	if _, err := q.q.ExecContext(ctx, upsertCategorySQL, categoryArgs(row)...); err != nil {
		return fmt.Errorf("failed to restore category %s: %w", c.ID, err)
	}
	return q.DeleteTombstone(ctx, c.ID)
}

// SaveSyncedCategory stores a row received from the remote, marked Synced.
func (q *Queries) SaveSyncedCategory(ctx context.Context, c *schema.Category) error {
	row := c.Clone()
	row.SyncStatus = schema.SyncSynced
	if err := row.Validate(); err != nil {
		return fmt.Errorf("invalid remote category: %w", err)
	}

	if _, err := q.q.ExecContext(ctx, upsertCategorySQL, categoryArgs(row)...); err != nil {
		return fmt.Errorf("failed to save remote category %s: %w", c.ID, err)
	}
	return nil
}

// DeleteCategory hard-deletes a category and records a tombstone.
func (q *Queries) DeleteCategory(ctx context.Context, id string) error {
	if err := q.EvictCategory(ctx, id); err != nil {
		return err
	}
	return q.PutTombstone(ctx, schema.EntityCategory, id)
}

// EvictCategory removes a category without leaving a tombstone.
func (q *Queries) EvictCategory(ctx context.Context, id string) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete category %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetCategory retrieves a category by full id.
func (q *Queries) GetCategory(ctx context.Context, id string) (*schema.Category, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category %s: %w", id, err)
	}
	return c, nil
}

// GetCategoryByName finds a category by case-insensitive name.
func (q *Queries) GetCategoryByName(ctx context.Context, name string) (*schema.Category, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE lower(name) = lower(?) ORDER BY created_at LIMIT 1`, name)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category %q: %w", name, err)
	}
	return c, nil
}

// ListCategories returns all categories ordered by name.
func (q *Queries) ListCategories(ctx context.Context) ([]*schema.Category, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY lower(name), id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	return scanCategories(rows)
}

// ListCategoriesNeedingUpload returns Pending and Conflict categories.
func (q *Queries) ListCategoriesNeedingUpload(ctx context.Context) ([]*schema.Category, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories
		WHERE sync_status IN ('pending', 'conflict')
		ORDER BY updated_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending categories: %w", err)
	}
	defer rows.Close()

	return scanCategories(rows)
}

// MarkCategorySynced flips a category to Synced if it still carries updatedAt.
func (q *Queries) MarkCategorySynced(ctx context.Context, id string, updatedAt time.Time) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		`UPDATE categories SET sync_status = 'synced' WHERE id = ? AND updated_at = ? AND sync_status != 'synced'`,
		id, FormatTime(updatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to mark category %s synced: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark category %s synced: %w", id, err)
	}
	return n > 0, nil
}

// MarkCategoryConflict flags a category whose tied remote copy differs.
func (q *Queries) MarkCategoryConflict(ctx context.Context, id string) error {
	if _, err := q.q.ExecContext(ctx, `UPDATE categories SET sync_status = 'conflict' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to mark category %s conflicted: %w", id, err)
	}
	return nil
}

// ResolveCategoryID expands an id prefix to a full category id.
func (q *Queries) ResolveCategoryID(ctx context.Context, prefix string) (string, error) {
	return q.resolveID(ctx, "categories", "category", prefix)
}
