package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/todoee/todoee/internal/schema"
)

// StashEntry is an entity parked outside the current-state tables.
type StashEntry struct {
	Seq       int64
	EntityID  string
	Snapshot  *schema.Snapshot
	Message   string
	StashedAt time.Time
}

const stashColumns = `seq, entity_id, snapshot, message, stashed_at`

func scanStashEntry(row rowScanner) (*StashEntry, error) {
	var e StashEntry
	var snapshot string
	var message sql.NullString
	var stashedAt string

	if err := row.Scan(&e.Seq, &e.EntityID, &snapshot, &message, &stashedAt); err != nil {
		return nil, err
	}

	var s schema.Snapshot
	if err := json.Unmarshal([]byte(snapshot), &s); err != nil {
		return nil, fmt.Errorf("stash entry %s: %w", e.EntityID, err)
	}
	e.Snapshot = &s
	e.Message = message.String

	var err error
	if e.StashedAt, err = ParseTime(stashedAt); err != nil {
		return nil, fmt.Errorf("failed to parse stashed_at: %w", err)
	}
	return &e, nil
}

// InsertStashEntry parks a snapshot. Returns ErrAlreadyStashed if an entry
// for the same entity id exists; the existing entry is left untouched.
func (q *Queries) InsertStashEntry(ctx context.Context, e *StashEntry) error {
	if e.Snapshot == nil {
		return fmt.Errorf("stash entry requires a snapshot")
	}
	if err := e.Snapshot.Validate(); err != nil {
		return fmt.Errorf("invalid stash snapshot: %w", err)
	}
	e.EntityID = e.Snapshot.EntityID()
	if e.StashedAt.IsZero() {
		e.StashedAt = q.now()
	}

	data, err := json.Marshal(e.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode stash snapshot: %w", err)
	}

	res, err := q.q.ExecContext(ctx, `
		INSERT INTO stash (entity_id, entity_type, snapshot, message, stashed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO NOTHING`,
		e.EntityID,
		string(e.Snapshot.Kind()),
		string(data),
		stringToNull(e.Message),
		FormatTime(e.StashedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to stash %s: %w", e.EntityID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to stash %s: %w", e.EntityID, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", e.Snapshot.Kind(), e.EntityID, ErrAlreadyStashed)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read stash sequence: %w", err)
	}
	e.Seq = seq
	return nil
}

// GetStashEntry returns the entry for entityID, or ErrNotFound.
func (q *Queries) GetStashEntry(ctx context.Context, entityID string) (*StashEntry, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+stashColumns+` FROM stash WHERE entity_id = ?`, entityID)
	e, err := scanStashEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stash entry %s: %w", entityID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stash entry %s: %w", entityID, err)
	}
	return e, nil
}

// LatestStashEntry returns the most recently stashed entry, or ErrNotFound.
func (q *Queries) LatestStashEntry(ctx context.Context) (*StashEntry, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+stashColumns+` FROM stash ORDER BY seq DESC LIMIT 1`)
	e, err := scanStashEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stash: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stash: %w", err)
	}
	return e, nil
}

// ListStashEntries returns all entries newest first.
func (q *Queries) ListStashEntries(ctx context.Context) ([]*StashEntry, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+stashColumns+` FROM stash ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stash: %w", err)
	}
	defer rows.Close()

	var entries []*StashEntry
	for rows.Next() {
		e, err := scanStashEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stash entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stash: %w", err)
	}
	return entries, nil
}

// DeleteStashEntry removes the entry for entityID, or returns ErrNotFound.
func (q *Queries) DeleteStashEntry(ctx context.Context, entityID string) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM stash WHERE entity_id = ?`, entityID)
	if err != nil {
		return fmt.Errorf("failed to remove stash entry %s: %w", entityID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to remove stash entry %s: %w", entityID, err)
	}
	if n == 0 {
		return fmt.Errorf("stash entry %s: %w", entityID, ErrNotFound)
	}
	return nil
}

// ClearStash removes every entry and returns how many were dropped. Each
// cleared id gets a tombstone so sync deletes its remote copy and never
// downloads it again. Run it inside Atomic.
func (q *Queries) ClearStash(ctx context.Context) (int64, error) {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO tombstones (entity_id, entity_type, deleted_at, confirmed_at)
		SELECT entity_id, entity_type, ?, NULL FROM stash WHERE true
		ON CONFLICT(entity_id) DO UPDATE SET
			entity_type = excluded.entity_type,
			deleted_at = excluded.deleted_at,
			confirmed_at = NULL`,
		FormatTime(q.now()))
	if err != nil {
		return 0, fmt.Errorf("failed to record tombstones for stash: %w", err)
	}

	res, err := q.q.ExecContext(ctx, `DELETE FROM stash`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear stash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to clear stash: %w", err)
	}
	return n, nil
}

// StashedIDs returns the set of entity ids currently stashed.
func (q *Queries) StashedIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT entity_id FROM stash`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stashed ids: %w", err)
	}
	defer rows.Close()

	stashed := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan stashed id: %w", err)
		}
		stashed[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stashed ids: %w", err)
	}
	return stashed, nil
}

// ResolveStashedID expands a prefix against stashed entity ids.
func (q *Queries) ResolveStashedID(ctx context.Context, prefix string) (string, error) {
	return q.resolveID(ctx, "(SELECT entity_id AS id FROM stash)", "stashed", prefix)
}
