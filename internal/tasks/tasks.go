// Package tasks applies user commands to the local store.
//
// Each command writes the entity and appends exactly one history entry in
// the same transaction. Preconditions are checked before anything is
// written, so a rejected command leaves both the store and the history
// untouched.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/todoee/todoee/internal/db"
	"github.com/todoee/todoee/internal/ids"
	"github.com/todoee/todoee/internal/schema"
)

var (
	ErrAlreadyCompleted = errors.New("todo is already completed")
	ErrNotCompleted     = errors.New("todo is not completed")
	ErrCompleted        = errors.New("completed todos cannot be edited; uncomplete it first")
	ErrCategoryInUse    = errors.New("category is still used by todos")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrCategoryExists   = errors.New("a category with that name already exists")
)

// Service runs mutating commands against one store.
type Service struct {
	db *db.DB
}

// New creates a Service bound to database.
func New(database *db.DB) *Service {
	return &Service{db: database}
}

func record(ctx context.Context, q *db.Queries, typ schema.OperationType, previous, next *schema.Snapshot) error {
	op := schema.NewOperation(typ, previous, next)
	if err := q.AppendOperation(ctx, op); err != nil {
		return fmt.Errorf("failed to log %s: %w", typ, err)
	}
	return nil
}

// AddTodo creates a todo and logs a Create.
//
// ID, timestamps and priority are defaulted when zero, so an import can
// keep the original values. The referenced category must exist.
func (s *Service) AddTodo(ctx context.Context, t *schema.Todo) (*schema.Todo, error) {
	todo := t.Clone()
	if todo.ID == "" {
		todo.ID = ids.New()
	}
	todo.Title = strings.TrimSpace(todo.Title)

	err := s.db.Atomic(ctx, func(ctx context.Context, q *db.Queries) error {
		if err := checkCategory(ctx, q, todo.CategoryID); err != nil {
			return err
		}
		todo.SetDefaults(q.Now())
		if err := q.InsertTodo(ctx, todo); err != nil {
			return err
		}
		return record(ctx, q, schema.OpCreate, nil, schema.TodoSnapshot(todo))
	})
	if err != nil {
		return nil, err
	}
	return todo, nil
}

// EditTodo replaces a todo with the full value t and logs an Update.
// Completion state cannot change here; use CompleteTodo or UncompleteTodo.
func (s *Service) EditTodo(ctx context.Context, t *schema.Todo) (*schema.Todo, error) {
	todo := t.Clone()
	todo.Title = strings.TrimSpace(todo.Title)

	err := s.db.Atomic(ctx, func(ctx context.Context, q *db.Queries) error {
		current, err := q.GetTodo(ctx, todo.ID)
		if err != nil {
			return err
		}
		if current.IsCompleted {
			return fmt.Errorf("todo %s: %w", ids.Short(todo.ID), ErrCompleted)
		}
		if todo.IsCompleted {
			return fmt.Errorf("todo %s: use complete to finish a todo", ids.Short(todo.ID))
		}
		if err := checkCategory(ctx, q, todo.CategoryID); err != nil {
			return err
		}
		todo.CreatedAt = current.CreatedAt
		if err := q.UpdateTodo(ctx, todo); err != nil {
			return err
		}
		return record(ctx, q, schema.OpUpdate, schema.TodoSnapshot(current), schema.TodoSnapshot(todo))
	})
	if err != nil {
		return nil, err
	}
	return todo, nil
}

// CompleteTodo marks a todo done and logs a Complete.
func (s *Service) CompleteTodo(ctx context.Context, id string) (*schema.Todo, error) {
	var todo *schema.Todo
	err := s.db.Atomic(ctx, func(ctx context.Context, q *db.Queries) error {
		current, err := q.GetTodo(ctx, id)
		if err != nil {
			return err
		}
		if current.IsCompleted {
			return fmt.Errorf("todo %s: %w", ids.Short(id), ErrAlreadyCompleted)
		}
		todo = current.Clone()
		todo.MarkComplete(q.Now())
		if err := q.UpdateTodo(ctx, todo); err != nil {
			return err
		}
		return record(ctx, q, schema.OpComplete, schema.TodoSnapshot(current), schema.TodoSnapshot(todo))
	})
	if err != nil {
		return nil, err
	}
	return todo, nil
}

// UncompleteTodo reopens a completed todo and logs an Uncomplete.
func (s *Service) UncompleteTodo(ctx context.Context, id string) (*schema.Todo, error) {
	var todo *schema.Todo
	err := s.db.Atomic(ctx, func(ctx context.Context, q *db.Queries) error {
		current, err := q.GetTodo(ctx, id)
		if err != nil {
			return err
		}
		if !current.IsCompleted {
			return fmt.Errorf("todo %s: %w", ids.Short(id), ErrNotCompleted)
		}
		todo = current.Clone()
		todo.MarkIncomplete()
		if err := q.UpdateTodo(ctx, todo); err != nil {
			return err
		}
		return record(ctx, q, schema.OpUncomplete, schema.TodoSnapshot(current), schema.TodoSnapshot(todo))
	})
	if err != nil {
		return nil, err
	}
	return todo, nil
}

// DeleteTodo hard-deletes a todo and logs a Delete holding its last shape.
func (s *Service) DeleteTodo(ctx context.Context, id string) (*schema.Todo, error) {
	var deleted *schema.Todo
	err := s.db.Atomic(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		deleted, err = deleteTodo(ctx, q, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func deleteTodo(ctx context.Context, q *db.Queries, id string) (*schema.Todo, error) {
	current, err := q.GetTodo(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := q.DeleteTodo(ctx, id); err != nil {
		return nil, err
	}
	if err := record(ctx, q, schema.OpDelete, schema.TodoSnapshot(current), nil); err != nil {
		return nil, err
	}
	return current, nil
}

// PurgeCompleted deletes todos completed before cutoff, logging each as a
// Delete so the purge stays undoable until the history is swept. With
// dryRun set only the matching todos are returned.
func (s *Service) PurgeCompleted(ctx context.Context, cutoff time.Time, dryRun bool) ([]*schema.Todo, error) {
	candidates, err := s.db.ListCompletedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	if dryRun || len(candidates) == 0 {
		return candidates, nil
	}

	var purged []*schema.Todo
	err = s.db.Atomic(ctx, func(ctx context.Context, q *db.Queries) error {
		for _, t := range candidates {
			deleted, err := deleteTodo(ctx, q, t.ID)
			if err != nil {
				return err
			}
			purged = append(purged, deleted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return purged, nil
}

func checkCategory(ctx context.Context, q *db.Queries, id string) error {
	if id == "" {
		return nil
	}
	if _, err := q.GetCategory(ctx, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownCategory, id)
		}
		return err
	}
	return nil
}
