// Package stash parks entities outside the store and brings them back.
//
// Push and Pop are logged like any other mutation, so both can be undone.
// Clear is a bulk removal and is not logged.
package stash

import (
	"context"
	"errors"
	"fmt"

	"github.com/todoee/todoee/internal/db"
	"github.com/todoee/todoee/internal/ids"
	"github.com/todoee/todoee/internal/schema"
)

var (
	ErrStashEmpty = errors.New("stash is empty")

	// ErrAlreadyStashed is db.ErrAlreadyStashed, re-exported for callers
	// that only import this package.
	ErrAlreadyStashed = db.ErrAlreadyStashed

	ErrInUse = errors.New("category is still used by todos")
)

// Entry is a stashed entity.
type Entry = db.StashEntry

// Manager runs stash commands against one store.
type Manager struct {
	db *db.DB
}

// New creates a Manager bound to database.
func New(database *db.DB) *Manager {
	return &Manager{db: database}
}

// Push moves the todo or category with the given full id into the stash
// and logs a Stash entry carrying message.
//
// An id that is already stashed is rejected with ErrAlreadyStashed before
// the store is read, leaving the existing entry untouched.
func (m *Manager) Push(ctx context.Context, id, message string) (*Entry, error) {
	var entry *Entry
	err := m.db.Atomic(ctx, func(ctx context.Context, q *db.Queries) error {
		_, err := q.GetStashEntry(ctx, id)
		if err == nil {
			return fmt.Errorf("%s: %w", ids.Short(id), ErrAlreadyStashed)
		}
		if !errors.Is(err, db.ErrNotFound) {
			return err
		}

		current, err := find(ctx, q, id)
		if err != nil {
			return err
		}
		used, err := q.Referenced(ctx, current.Kind(), id)
		if err != nil {
			return err
		}
		if used {
			return fmt.Errorf("category %s: %w", current.Label(), ErrInUse)
		}

		if err := q.EvictEntity(ctx, current.Kind(), id); err != nil {
			return err
		}
		entry = &Entry{Snapshot: current, Message: message}
		if err := q.InsertStashEntry(ctx, entry); err != nil {
			return err
		}

		op := schema.NewOperation(schema.OpStash, current, nil)
		op.Note = message
		if err := q.AppendOperation(ctx, op); err != nil {
			return fmt.Errorf("failed to log stash: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Pop restores the most recently stashed entity, removes its entry and
// logs an Unstash. Returns ErrStashEmpty when nothing is stashed.
func (m *Manager) Pop(ctx context.Context) (*Entry, error) {
	var entry *Entry
	err := m.db.Atomic(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		entry, err = q.LatestStashEntry(ctx)
		if errors.Is(err, db.ErrNotFound) {
			return ErrStashEmpty
		}
		if err != nil {
			return err
		}

		s := entry.Snapshot
		existing, err := q.GetSnapshot(ctx, s.Kind(), s.EntityID())
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%s %s is already in the store", s.Kind(), ids.Short(s.EntityID()))
		}
		if s.Todo != nil {
			ok, err := q.CategoryAvailable(ctx, s.Todo.CategoryID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("todo %s: category %s no longer exists", ids.Short(s.EntityID()), ids.Short(s.Todo.CategoryID))
			}
		}

		if err := q.DeleteStashEntry(ctx, s.EntityID()); err != nil {
			return err
		}
		if err := q.PutSnapshot(ctx, s); err != nil {
			return err
		}
		restored, err := q.GetSnapshot(ctx, s.Kind(), s.EntityID())
		if err != nil {
			return err
		}

		op := schema.NewOperation(schema.OpUnstash, nil, restored)
		op.Note = entry.Message
		if err := q.AppendOperation(ctx, op); err != nil {
			return fmt.Errorf("failed to log unstash: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// List returns stashed entries, newest first.
func (m *Manager) List(ctx context.Context) ([]*Entry, error) {
	return m.db.ListStashEntries(ctx)
}

// Clear drops every stashed entry and returns how many were removed.
// Cleared entities are gone for good, on the remote too.
func (m *Manager) Clear(ctx context.Context) (int64, error) {
	var n int64
	err := m.db.Atomic(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		n, err = q.ClearStash(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Resolve expands an id prefix against the store, todos first, then
// categories.
func (m *Manager) Resolve(ctx context.Context, prefix string) (string, error) {
	id, err := m.db.ResolveTodoID(ctx, prefix)
	if err == nil || !errors.Is(err, db.ErrNotFound) {
		return id, err
	}
	return m.db.ResolveCategoryID(ctx, prefix)
}

func find(ctx context.Context, q *db.Queries, id string) (*schema.Snapshot, error) {
	for _, kind := range []schema.EntityType{schema.EntityTodo, schema.EntityCategory} {
		s, err := q.GetSnapshot(ctx, kind, id)
		if err != nil {
			return nil, err
		}
		if s != nil {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", ids.Short(id), db.ErrNotFound)
}
