package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/todoee/todoee/internal/db"
	"github.com/todoee/todoee/internal/ids"
	"github.com/todoee/todoee/internal/schema"
)

// AddCategory creates a category and logs a Create. Names are unique
// ignoring case.
func (s *Service) AddCategory(ctx context.Context, c *schema.Category) (*schema.Category, error) {
	category := c.Clone()
	if category.ID == "" {
		category.ID = ids.New()
	}
	category.Name = strings.TrimSpace(category.Name)

	err := s.db.Atomic(ctx, func(ctx context.Context, q *db.Queries) error {
		return addCategory(ctx, q, category)
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

func addCategory(ctx context.Context, q *db.Queries, category *schema.Category) error {
	_, err := q.GetCategoryByName(ctx, category.Name)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrCategoryExists, category.Name)
	case !errors.Is(err, db.ErrNotFound):
		return err
	}

	category.SetDefaults(q.Now())
	if err := q.InsertCategory(ctx, category); err != nil {
		return err
	}
	return record(ctx, q, schema.OpCreate, nil, schema.CategorySnapshot(category))
}

// EnsureCategory returns the category called name, creating it when it
// does not exist. created reports whether a new row was written.
func (s *Service) EnsureCategory(ctx context.Context, name string, aiGenerated bool) (category *schema.Category, created bool, err error) {
	name = strings.TrimSpace(name)
	err = s.db.Atomic(ctx, func(ctx context.Context, q *db.Queries) error {
		existing, err := q.GetCategoryByName(ctx, name)
		if err == nil {
			category = existing
			return nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return err
		}
		category = &schema.Category{ID: ids.New(), Name: name, IsAIGenerated: aiGenerated}
		created = true
		return addCategory(ctx, q, category)
	})
	if err != nil {
		return nil, false, err
	}
	return category, created, nil
}

// UpdateCategory replaces a category with c and logs an Update.
func (s *Service) UpdateCategory(ctx context.Context, c *schema.Category) (*schema.Category, error) {
	category := c.Clone()
	category.Name = strings.TrimSpace(category.Name)

	err := s.db.Atomic(ctx, func(ctx context.Context, q *db.Queries) error {
		current, err := q.GetCategory(ctx, category.ID)
		if err != nil {
			return err
		}
		clash, err := q.GetCategoryByName(ctx, category.Name)
		switch {
		case err == nil && clash.ID != category.ID:
			return fmt.Errorf("%w: %s", ErrCategoryExists, category.Name)
		case err != nil && !errors.Is(err, db.ErrNotFound):
			return err
		}

		category.CreatedAt = current.CreatedAt
		if err := q.UpdateCategory(ctx, category); err != nil {
			return err
		}
		return record(ctx, q, schema.OpUpdate, schema.CategorySnapshot(current), schema.CategorySnapshot(category))
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

// DeleteCategory deletes an unused category and logs a Delete.
func (s *Service) DeleteCategory(ctx context.Context, id string) (*schema.Category, error) {
	var deleted *schema.Category
	err := s.db.Atomic(ctx, func(ctx context.Context, q *db.Queries) error {
		current, err := q.GetCategory(ctx, id)
		if err != nil {
			return err
		}
		n, err := q.CountTodosInCategory(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("category %s has %d todos: %w", current.Name, n, ErrCategoryInUse)
		}
		if err := q.DeleteCategory(ctx, id); err != nil {
			return err
		}
		deleted = current
		return record(ctx, q, schema.OpDelete, schema.CategorySnapshot(current), nil)
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// RenameCategory changes a category's display name.
func (s *Service) RenameCategory(ctx context.Context, id, name string) (*schema.Category, error) {
	current, err := s.db.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	current.Name = name
	return s.UpdateCategory(ctx, current)
}
