package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/todoee/todoee/internal/schema"
)

// Tombstone records a local hard delete that the remote has not yet
// acknowledged. While it exists, downloads skip the id.
type Tombstone struct {
	EntityID    string
	EntityType  schema.EntityType
	DeletedAt   time.Time
	ConfirmedAt *time.Time
}

// PutTombstone records that id was deleted now. An existing tombstone is
// refreshed and its confirmation cleared.
func (q *Queries) PutTombstone(ctx context.Context, entityType schema.EntityType, id string) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO tombstones (entity_id, entity_type, deleted_at, confirmed_at)
		VALUES (?, ?, ?, NULL)
		ON CONFLICT(entity_id) DO UPDATE SET
			entity_type = excluded.entity_type,
			deleted_at = excluded.deleted_at,
			confirmed_at = NULL`,
		id, string(entityType), FormatTime(q.now()))
	if err != nil {
		return fmt.Errorf("failed to record tombstone for %s: %w", id, err)
	}
	return nil
}

// DeleteTombstone drops the tombstone for id, if any.
func (q *Queries) DeleteTombstone(ctx context.Context, id string) error {
	if _, err := q.q.ExecContext(ctx, `DELETE FROM tombstones WHERE entity_id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove tombstone for %s: %w", id, err)
	}
	return nil
}

// HasTombstone reports whether id was deleted locally and not yet swept.
func (q *Queries) HasTombstone(ctx context.Context, id string) (bool, error) {
	var n int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tombstones WHERE entity_id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check tombstone for %s: %w", id, err)
	}
	return n > 0, nil
}

// ListTombstones returns tombstones of one entity type, oldest first.
// With onlyUnconfirmed set, acknowledged tombstones are skipped.
func (q *Queries) ListTombstones(ctx context.Context, entityType schema.EntityType, onlyUnconfirmed bool) ([]*Tombstone, error) {
	query := `SELECT entity_id, entity_type, deleted_at, confirmed_at FROM tombstones WHERE entity_type = ?`
	if onlyUnconfirmed {
		query += ` AND confirmed_at IS NULL`
	}
	query += ` ORDER BY deleted_at ASC, entity_id ASC`

	rows, err := q.q.QueryContext(ctx, query, string(entityType))
	if err != nil {
		return nil, fmt.Errorf("failed to list tombstones: %w", err)
	}
	defer rows.Close()

	var tombstones []*Tombstone
	for rows.Next() {
		var t Tombstone
		var deletedAt string
		var confirmedAt sql.NullString
		if err := rows.Scan(&t.EntityID, &t.EntityType, &deletedAt, &confirmedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tombstone: %w", err)
		}
		if t.DeletedAt, err = ParseTime(deletedAt); err != nil {
			return nil, fmt.Errorf("failed to parse deleted_at: %w", err)
		}
		if t.ConfirmedAt, err = nullStringToTime(confirmedAt); err != nil {
			return nil, fmt.Errorf("failed to parse confirmed_at: %w", err)
		}
		tombstones = append(tombstones, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tombstones: %w", err)
	}
	return tombstones, nil
}

// ConfirmTombstone marks the remote deletion of id as acknowledged, as long
// as the tombstone is still the one recorded at deletedAt.
func (q *Queries) ConfirmTombstone(ctx context.Context, id string, deletedAt time.Time) error {
	_, err := q.q.ExecContext(ctx,
		`UPDATE tombstones SET confirmed_at = ? WHERE entity_id = ? AND deleted_at = ?`,
		FormatTime(q.now()), id, FormatTime(deletedAt))
	if err != nil {
		return fmt.Errorf("failed to confirm tombstone for %s: %w", id, err)
	}
	return nil
}

// SweepConfirmedTombstones drops every acknowledged tombstone.
func (q *Queries) SweepConfirmedTombstones(ctx context.Context) (int64, error) {
	res, err := q.q.ExecContext(ctx, `DELETE FROM tombstones WHERE confirmed_at IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep tombstones: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to sweep tombstones: %w", err)
	}
	return n, nil
}

// SweepTombstonesBefore drops tombstones, confirmed or not, recorded before
// cutoff. After this a remote copy of the id may be downloaded again.
func (q *Queries) SweepTombstonesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := q.q.ExecContext(ctx, `DELETE FROM tombstones WHERE deleted_at < ?`, FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to expire tombstones: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to expire tombstones: %w", err)
	}
	return n, nil
}

// CountTombstonesBefore returns how many tombstones were recorded before cutoff.
func (q *Queries) CountTombstonesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tombstones WHERE deleted_at < ?`, FormatTime(cutoff)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count tombstones: %w", err)
	}
	return n, nil
}

// Checkpoint returns the stored value for key, or "" if unset.
func (q *Queries) Checkpoint(ctx context.Context, key string) (string, error) {
	var value string
	err := q.q.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read checkpoint %s: %w", key, err)
	}
	return value, nil
}

// SetCheckpoint stores value under key.
func (q *Queries) SetCheckpoint(ctx context.Context, key, value string) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write checkpoint %s: %w", key, err)
	}
	return nil
}
