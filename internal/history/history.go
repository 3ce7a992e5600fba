// Package history inverts and re-applies entries of the operation log.
//
// The log is the undo stack: the newest entry that is not undone is the
// next undo target, and the redo chain is the run of undone entries newer
// than it. Each Undo or Redo runs in one transaction that writes the
// entity and flips the entry's undone flag together.
//
// Before touching an entity the engine checks that the store still holds
// exactly the shape the entry expects (matched on updated_at, or on
// absence). If something outside the log changed it, the call returns
// ErrEntityUnavailable and nothing is written.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/todoee/todoee/internal/db"
	"github.com/todoee/todoee/internal/ids"
	"github.com/todoee/todoee/internal/schema"
)

var (
	ErrNothingToUndo     = errors.New("nothing to undo")
	ErrNothingToRedo     = errors.New("nothing to redo")
	ErrEntityUnavailable = errors.New("entity no longer available")
)

// Engine runs undo and redo against one store.
type Engine struct {
	db *db.DB
}

// New creates an Engine bound to database.
func New(database *db.DB) *Engine {
	return &Engine{db: database}
}

// Undo inverts the newest active entry and returns it with Undone set.
// Returns ErrNothingToUndo when every entry is already undone.
func (e *Engine) Undo(ctx context.Context) (*schema.Operation, error) {
	var applied *schema.Operation
	err := e.db.Atomic(ctx, func(ctx context.Context, q *db.Queries) error {
		op, err := q.LatestActiveOperation(ctx)
		if errors.Is(err, db.ErrNotFound) {
			return ErrNothingToUndo
		}
		if err != nil {
			return err
		}

		if err := invert(ctx, q, op); err != nil {
			return err
		}
		if err := q.SetOperationUndone(ctx, op.ID, true); err != nil {
			return err
		}
		op.Undone = true
		applied = op
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// Redo re-applies the next entry of the redo chain and returns it with
// Undone cleared. Returns ErrNothingToRedo when the chain is empty.
func (e *Engine) Redo(ctx context.Context) (*schema.Operation, error) {
	var applied *schema.Operation
	err := e.db.Atomic(ctx, func(ctx context.Context, q *db.Queries) error {
		op, err := q.NextRedoOperation(ctx)
		if errors.Is(err, db.ErrNotFound) {
			return ErrNothingToRedo
		}
		if err != nil {
			return err
		}

		if err := reapply(ctx, q, op); err != nil {
			return err
		}
		if err := q.SetOperationUndone(ctx, op.ID, false); err != nil {
			return err
		}
		op.Undone = false
		applied = op
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// Log returns up to limit entries, newest first. A limit of 0 returns all.
func (e *Engine) Log(ctx context.Context, limit int) ([]*schema.Operation, error) {
	return e.db.ListOperations(ctx, limit)
}

// Since returns the entries created at or after t, oldest first.
func (e *Engine) Since(ctx context.Context, t time.Time) ([]*schema.Operation, error) {
	return e.db.ListOperationsSince(ctx, t)
}

// Sweep deletes entries created before cutoff. Swept entries can no longer
// be undone. With dryRun set it only counts them.
func (e *Engine) Sweep(ctx context.Context, cutoff time.Time, dryRun bool) (int64, error) {
	if dryRun {
		return e.db.CountOperationsBefore(ctx, cutoff)
	}
	return e.db.DeleteOperationsBefore(ctx, cutoff)
}

func unavailable(op *schema.Operation, reason string) error {
	return fmt.Errorf("%s %s (%s): %w", op.EntityType, ids.Short(op.EntityID), reason, ErrEntityUnavailable)
}

// expectRow checks that the stored row matches want: absent when want is
// nil, otherwise present with the same fields. The revision timestamp is
// not compared because restore restamps rows.
func expectRow(ctx context.Context, q *db.Queries, op *schema.Operation, want *schema.Snapshot) error {
	current, err := q.GetSnapshot(ctx, op.EntityType, op.EntityID)
	if err != nil {
		return err
	}
	switch {
	case want == nil && current != nil:
		return unavailable(op, "already exists")
	case want == nil:
		return nil
	case current == nil:
		return unavailable(op, "missing")
	case !current.SameFields(want):
		return unavailable(op, "changed since this entry")
	}
	return nil
}

// expect is expectRow that also treats a stashed entity as present.
func expect(ctx context.Context, q *db.Queries, op *schema.Operation, want *schema.Snapshot) error {
	if err := expectRow(ctx, q, op, want); err != nil {
		return err
	}
	if want != nil {
		return nil
	}
	return expectNotStashed(ctx, q, op)
}

func expectNotStashed(ctx context.Context, q *db.Queries, op *schema.Operation) error {
	_, err := q.GetStashEntry(ctx, op.EntityID)
	if err == nil {
		return unavailable(op, "stashed")
	}
	if !errors.Is(err, db.ErrNotFound) {
		return err
	}
	return nil
}

// expectStashed checks that the stash holds want for the entity.
func expectStashed(ctx context.Context, q *db.Queries, op *schema.Operation, want *schema.Snapshot) error {
	entry, err := q.GetStashEntry(ctx, op.EntityID)
	if errors.Is(err, db.ErrNotFound) {
		return unavailable(op, "not in stash")
	}
	if err != nil {
		return err
	}
	if !entry.Snapshot.UpdatedAt().Equal(want.UpdatedAt()) {
		return unavailable(op, "stash entry replaced")
	}
	return nil
}

// restore writes s back after checking its category still exists. The row
// gets a fresh updated_at so the write outranks every copy already synced,
// including a remote soft delete.
func restore(ctx context.Context, q *db.Queries, op *schema.Operation, s *schema.Snapshot) error {
	now := q.Now()
	switch {
	case s.Todo != nil:
		ok, err := q.CategoryAvailable(ctx, s.Todo.CategoryID)
		if err != nil {
			return err
		}
		if !ok {
			return unavailable(op, "its category is gone")
		}
		t := s.Todo.Clone()
		t.UpdatedAt = now
		return q.PutTodo(ctx, t)
	case s.Category != nil:
		c := s.Category.Clone()
		c.UpdatedAt = now
		return q.PutCategory(ctx, c)
	}
	return q.PutSnapshot(ctx, s)
}

// remove deletes the entity, refusing while todos still reference it.
func remove(ctx context.Context, q *db.Queries, op *schema.Operation, tombstone bool) error {
	used, err := q.Referenced(ctx, op.EntityType, op.EntityID)
	if err != nil {
		return err
	}
	if used {
		return unavailable(op, "still referenced by todos")
	}
	if tombstone {
		return q.DeleteEntity(ctx, op.EntityType, op.EntityID)
	}
	return q.EvictEntity(ctx, op.EntityType, op.EntityID)
}

func stash(ctx context.Context, q *db.Queries, op *schema.Operation, s *schema.Snapshot) error {
	if err := remove(ctx, q, op, false); err != nil {
		return err
	}
	entry := &db.StashEntry{Snapshot: s, Message: op.Note}
	if err := q.InsertStashEntry(ctx, entry); err != nil {
		if errors.Is(err, db.ErrAlreadyStashed) {
			return unavailable(op, "stashed")
		}
		return err
	}
	return nil
}

func unstash(ctx context.Context, q *db.Queries, op *schema.Operation, s *schema.Snapshot) error {
	if err := q.DeleteStashEntry(ctx, op.EntityID); err != nil {
		return err
	}
	return restore(ctx, q, op, s)
}

func invert(ctx context.Context, q *db.Queries, op *schema.Operation) error {
	switch op.Type {
	case schema.OpCreate:
		if err := expect(ctx, q, op, op.NewState); err != nil {
			return err
		}
		return remove(ctx, q, op, true)

	case schema.OpDelete:
		if err := expect(ctx, q, op, nil); err != nil {
			return err
		}
		return restore(ctx, q, op, op.PreviousState)

	case schema.OpUpdate, schema.OpComplete, schema.OpUncomplete:
		if err := expect(ctx, q, op, op.NewState); err != nil {
			return err
		}
		return restore(ctx, q, op, op.PreviousState)

	case schema.OpStash:
		if err := expectRow(ctx, q, op, nil); err != nil {
			return err
		}
		if err := expectStashed(ctx, q, op, op.PreviousState); err != nil {
			return err
		}
		return unstash(ctx, q, op, op.PreviousState)

	case schema.OpUnstash:
		if err := expect(ctx, q, op, op.NewState); err != nil {
			return err
		}
		return stash(ctx, q, op, op.NewState)
	}
	return fmt.Errorf("cannot undo %s operation", op.Type)
}

func reapply(ctx context.Context, q *db.Queries, op *schema.Operation) error {
	switch op.Type {
	case schema.OpCreate:
		if err := expect(ctx, q, op, nil); err != nil {
			return err
		}
		return restore(ctx, q, op, op.NewState)

	case schema.OpDelete:
		if err := expect(ctx, q, op, op.PreviousState); err != nil {
			return err
		}
		return remove(ctx, q, op, true)

	case schema.OpUpdate, schema.OpComplete, schema.OpUncomplete:
		if err := expect(ctx, q, op, op.PreviousState); err != nil {
			return err
		}
		return restore(ctx, q, op, op.NewState)

	case schema.OpStash:
		if err := expect(ctx, q, op, op.PreviousState); err != nil {
			return err
		}
		return stash(ctx, q, op, op.PreviousState)

	case schema.OpUnstash:
		if err := expectRow(ctx, q, op, nil); err != nil {
			return err
		}
		if err := expectStashed(ctx, q, op, op.NewState); err != nil {
			return err
		}
		return unstash(ctx, q, op, op.NewState)
	}
	return fmt.Errorf("cannot redo %s operation", op.Type)
}
