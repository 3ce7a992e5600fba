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

const operationColumns = `seq, id, operation_type, entity_type, entity_id,
	previous_state, new_state, note, created_at, undone`

func scanOperation(row rowScanner) (*schema.Operation, error) {
	var op schema.Operation
	var previous, next, note sql.NullString
	var createdAt string
	var undone int

	err := row.Scan(
		&op.Seq,
		&op.ID,
		&op.Type,
		&op.EntityType,
		&op.EntityID,
		&previous,
		&next,
		&note,
		&createdAt,
		&undone,
	)
	if err != nil {
		return nil, err
	}

	op.Note = note.String
	op.Undone = undone != 0

	if op.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if op.PreviousState, err = decodeSnapshot(previous); err != nil {
		return nil, fmt.Errorf("operation %s previous_state: %w", op.ID, err)
	}
	if op.NewState, err = decodeSnapshot(next); err != nil {
		return nil, fmt.Errorf("operation %s new_state: %w", op.ID, err)
	}
	return &op, nil
}

func scanOperations(rows *sql.Rows) ([]*schema.Operation, error) {
	var ops []*schema.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}
	return ops, nil
}

func encodeSnapshot(s *schema.Snapshot) (sql.NullString, error) {
	if s == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeSnapshot(ns sql.NullString) (*schema.Snapshot, error) {
	if !ns.Valid {
		return nil, nil
	}
	var s schema.Snapshot
	if err := json.Unmarshal([]byte(ns.String), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// AppendOperation writes a new history entry and fills in op.Seq.
//
// CreatedAt defaults to the store clock and is never allowed to fall
// behind the newest existing entry, so (created_at, seq) order matches
// insertion order even if the wall clock steps backwards.
func (q *Queries) AppendOperation(ctx context.Context, op *schema.Operation) error {
	if op.CreatedAt.IsZero() {
		op.CreatedAt = q.now()
	}

	var latest sql.NullString
	if err := q.q.QueryRowContext(ctx, `SELECT MAX(created_at) FROM operations`).Scan(&latest); err != nil {
		return fmt.Errorf("failed to read latest operation time: %w", err)
	}
	if latest.Valid {
		newest, err := ParseTime(latest.String)
		if err != nil {
			return fmt.Errorf("failed to parse latest operation time: %w", err)
		}
		if op.CreatedAt.Before(newest) {
			op.CreatedAt = newest
		}
	}

	if err := op.Validate(); err != nil {
		return fmt.Errorf("invalid operation: %w", err)
	}

	previous, err := encodeSnapshot(op.PreviousState)
	if err != nil {
		return err
	}
	next, err := encodeSnapshot(op.NewState)
	if err != nil {
		return err
	}

	res, err := q.q.ExecContext(ctx, `
		INSERT INTO operations (id, operation_type, entity_type, entity_id,
			previous_state, new_state, note, created_at, undone)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID,
		string(op.Type),
		string(op.EntityType),
		op.EntityID,
		previous,
		next,
		stringToNull(op.Note),
		FormatTime(op.CreatedAt),
		boolToInt(op.Undone),
	)
	if err != nil {
		return fmt.Errorf("failed to append operation: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read operation sequence: %w", err)
	}
	op.Seq = seq
	return nil
}

// GetOperation retrieves a history entry by id.
func (q *Queries) GetOperation(ctx context.Context, id string) (*schema.Operation, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+operationColumns+` FROM operations WHERE id = ?`, id)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("operation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation %s: %w", id, err)
	}
	return op, nil
}

// LatestActiveOperation returns the newest entry that has not been undone.
// Returns ErrNotFound when there is none.
func (q *Queries) LatestActiveOperation(ctx context.Context) (*schema.Operation, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+operationColumns+` FROM operations
		WHERE undone = 0
		ORDER BY created_at DESC, seq DESC
		LIMIT 1`)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active operation: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest active operation: %w", err)
	}
	return op, nil
}

// NextRedoOperation returns the undone entry that redo should re-apply.
//
// Undone entries newer than the latest active entry form the redo chain.
// They were inverted newest-first, so the oldest of them is the one that
// was inverted last. Undone entries older than an active entry are no
// longer redoable. Returns ErrNotFound when the chain is empty.
func (q *Queries) NextRedoOperation(ctx context.Context) (*schema.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations
		WHERE undone = 1`
	var args []any

	active, err := q.LatestActiveOperation(ctx)
	switch {
	case err == nil:
		query += ` AND (created_at > ? OR (created_at = ? AND seq > ?))`
		ts := FormatTime(active.CreatedAt)
		args = append(args, ts, ts, active.Seq)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	query += ` ORDER BY created_at ASC, seq ASC LIMIT 1`

	op, err := scanOperation(q.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("redoable operation: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query redoable operation: %w", err)
	}
	return op, nil
}

// SetOperationUndone flips the undone flag, the only mutable column.
func (q *Queries) SetOperationUndone(ctx context.Context, id string, undone bool) error {
	res, err := q.q.ExecContext(ctx, `UPDATE operations SET undone = ? WHERE id = ?`, boolToInt(undone), id)
	if err != nil {
		return fmt.Errorf("failed to update operation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update operation %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("operation %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListOperations returns up to limit entries, newest first (0 = no limit).
func (q *Queries) ListOperations(ctx context.Context, limit int) ([]*schema.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations ORDER BY created_at DESC, seq DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	return scanOperations(rows)
}

// ListOperationsSince returns entries created at or after since, oldest first.
func (q *Queries) ListOperationsSince(ctx context.Context, since time.Time) ([]*schema.Operation, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+operationColumns+` FROM operations
		WHERE created_at >= ?
		ORDER BY created_at ASC, seq ASC`, FormatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	return scanOperations(rows)
}

// CountOperations returns the number of history entries.
func (q *Queries) CountOperations(ctx context.Context) (int, error) {
	var n int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM operations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count operations: %w", err)
	}
	return n, nil
}

// CountOperationsBefore returns how many entries are older than cutoff.
func (q *Queries) CountOperationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM operations WHERE created_at < ?`, FormatTime(cutoff)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count operations: %w", err)
	}
	return n, nil
}

// DeleteOperationsBefore removes entries older than cutoff. Swept entries
// can no longer be undone or redone.
func (q *Queries) DeleteOperationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := q.q.ExecContext(ctx, `DELETE FROM operations WHERE created_at < ?`, FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep operations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to sweep operations: %w", err)
	}
	return n, nil
}
