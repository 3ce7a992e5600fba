package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/todoee/todoee/internal/schema"
)

// GetSnapshot loads the current row for an entity of either kind as a
// snapshot. A missing row returns (nil, nil).
func (q *Queries) GetSnapshot(ctx context.Context, kind schema.EntityType, id string) (*schema.Snapshot, error) {
	switch kind {
	case schema.EntityTodo:
		t, err := q.GetTodo(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &schema.Snapshot{Todo: t}, nil
	case schema.EntityCategory:
		c, err := q.GetCategory(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &schema.Snapshot{Category: c}, nil
	}
	return nil, fmt.Errorf("unknown entity type %q", kind)
}

// PutSnapshot writes s back verbatim through PutTodo or PutCategory.
func (q *Queries) PutSnapshot(ctx context.Context, s *schema.Snapshot) error {
	switch s.Kind() {
	case schema.EntityTodo:
		return q.PutTodo(ctx, s.Todo)
	case schema.EntityCategory:
		return q.PutCategory(ctx, s.Category)
	}
	return fmt.Errorf("snapshot has no payload")
}

// DeleteEntity hard-deletes a row and leaves a tombstone.
func (q *Queries) DeleteEntity(ctx context.Context, kind schema.EntityType, id string) error {
	switch kind {
	case schema.EntityTodo:
		return q.DeleteTodo(ctx, id)
	case schema.EntityCategory:
		return q.DeleteCategory(ctx, id)
	}
	return fmt.Errorf("unknown entity type %q", kind)
}

// EvictEntity removes a row without a tombstone.
func (q *Queries) EvictEntity(ctx context.Context, kind schema.EntityType, id string) error {
	switch kind {
	case schema.EntityTodo:
		return q.EvictTodo(ctx, id)
	case schema.EntityCategory:
		return q.EvictCategory(ctx, id)
	}
	return fmt.Errorf("unknown entity type %q", kind)
}

// Referenced reports whether any todo points at the entity. Only
// categories can be referenced.
func (q *Queries) Referenced(ctx context.Context, kind schema.EntityType, id string) (bool, error) {
	if kind != schema.EntityCategory {
		return false, nil
	}
	n, err := q.CountTodosInCategory(ctx, id)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CategoryAvailable reports whether a todo referencing categoryID could be
// written now. An empty id is always available.
func (q *Queries) CategoryAvailable(ctx context.Context, categoryID string) (bool, error) {
	if categoryID == "" {
		return true, nil
	}
	_, err := q.GetCategory(ctx, categoryID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
