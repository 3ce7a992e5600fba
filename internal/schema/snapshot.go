package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntityType discriminates the two entity kinds.
type EntityType string

const (
	EntityTodo     EntityType = "todo"
	EntityCategory EntityType = "category"
)

// Valid reports whether e is a known entity type.
func (e EntityType) Valid() bool {
	return e == EntityTodo || e == EntityCategory
}

// Snapshot is a full copy of one entity. Exactly one of Todo and Category is set.
type Snapshot struct {
	Todo     *Todo
	Category *Category
}

// TodoSnapshot wraps a copy of t.
func TodoSnapshot(t *Todo) *Snapshot {
	return &Snapshot{Todo: t.Clone()}
}

// CategorySnapshot wraps a copy of c.
func CategorySnapshot(c *Category) *Snapshot {
	return &Snapshot{Category: c.Clone()}
}

// Kind returns the entity type held by the snapshot.
func (s *Snapshot) Kind() EntityType {
	switch {
	case s.Todo != nil:
		return EntityTodo
	case s.Category != nil:
		return EntityCategory
	}
	return ""
}

// EntityID returns the id of the wrapped entity.
func (s *Snapshot) EntityID() string {
	switch {
	case s.Todo != nil:
		return s.Todo.ID
	case s.Category != nil:
		return s.Category.ID
	}
	return ""
}

// UpdatedAt returns the revision timestamp of the wrapped entity.
func (s *Snapshot) UpdatedAt() time.Time {
	switch {
	case s.Todo != nil:
		return s.Todo.UpdatedAt
	case s.Category != nil:
		return s.Category.UpdatedAt
	}
	return time.Time{}
}

// SameFields reports whether s and o hold the same entity state, ignoring
// the revision timestamp and sync status.
func (s *Snapshot) SameFields(o *Snapshot) bool {
	switch {
	case s.Todo != nil && o.Todo != nil:
		return s.Todo.SameFields(o.Todo)
	case s.Category != nil && o.Category != nil:
		return s.Category.SameFields(o.Category)
	}
	return false
}

// Label returns a short human description (todo title or category name).
func (s *Snapshot) Label() string {
	switch {
	case s.Todo != nil:
		return s.Todo.Title
	case s.Category != nil:
		return s.Category.Name
	}
	return ""
}

// Validate checks that exactly one payload is present and that it is valid.
func (s *Snapshot) Validate() error {
	if (s.Todo == nil) == (s.Category == nil) {
		return fmt.Errorf("snapshot must hold exactly one entity")
	}
	if s.Todo != nil {
		return s.Todo.Validate()
	}
	return s.Category.Validate()
}

type snapshotEnvelope struct {
	Kind     EntityType      `json:"kind"`
	Todo     json.RawMessage `json:"todo,omitempty"`
	Category json.RawMessage `json:"category,omitempty"`
}

// MarshalJSON writes the tagged envelope.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	env := struct {
		Kind     EntityType `json:"kind"`
		Todo     *Todo      `json:"todo,omitempty"`
		Category *Category  `json:"category,omitempty"`
	}{Kind: s.Kind(), Todo: s.Todo, Category: s.Category}
	if env.Kind == "" {
		return nil, fmt.Errorf("cannot marshal empty snapshot")
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes the tagged envelope, rejecting a payload that does
// not match its kind.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var env snapshotEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	*s = Snapshot{}
	switch env.Kind {
	case EntityTodo:
		if len(env.Todo) == 0 || len(env.Category) != 0 {
			return fmt.Errorf("snapshot of kind %q must carry only a todo payload", env.Kind)
		}
		var t Todo
		if err := json.Unmarshal(env.Todo, &t); err != nil {
			return fmt.Errorf("failed to decode todo snapshot: %w", err)
		}
		s.Todo = &t
	case EntityCategory:
		if len(env.Category) == 0 || len(env.Todo) != 0 {
			return fmt.Errorf("snapshot of kind %q must carry only a category payload", env.Kind)
		}
		var c Category
		if err := json.Unmarshal(env.Category, &c); err != nil {
			return fmt.Errorf("failed to decode category snapshot: %w", err)
		}
		s.Category = &c
	default:
		return fmt.Errorf("unknown snapshot kind %q", env.Kind)
	}
	return nil
}
