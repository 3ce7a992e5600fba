package schema

import (
	"fmt"
	"strings"
	"time"
)

// MaxCategoryNameLength bounds category names.
const MaxCategoryNameLength = 100

// Category groups todos under a display name.
type Category struct {
	ID            string     `json:"id" yaml:"id"`
	Name          string     `json:"name" yaml:"name"`
	Color         string     `json:"color,omitempty" yaml:"color,omitempty"`
	IsAIGenerated bool       `json:"is_ai_generated" yaml:"is_ai_generated"`
	CreatedAt     time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" yaml:"updated_at"`
	SyncStatus    SyncStatus `json:"sync_status" yaml:"sync_status"`
}

// Validate checks if the Category has valid field values.
func (c *Category) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(c.Name) > MaxCategoryNameLength {
		return fmt.Errorf("name must be %d characters or less (got %d)", MaxCategoryNameLength, len(c.Name))
	}
	if c.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if c.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	if !c.SyncStatus.Valid() {
		return fmt.Errorf("invalid sync_status %q", c.SyncStatus)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (c *Category) SetDefaults(now time.Time) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	if c.SyncStatus == "" {
		c.SyncStatus = SyncPending
	}
}

// SameContent compares every field except SyncStatus.
func (c *Category) SameContent(o *Category) bool {
	return c.SameFields(o) && c.UpdatedAt.Equal(o.UpdatedAt)
}

// SameFields is SameContent without the revision timestamp.
func (c *Category) SameFields(o *Category) bool {
	return c.ID == o.ID &&
		c.Name == o.Name &&
		c.Color == o.Color &&
		c.IsAIGenerated == o.IsAIGenerated &&
		c.CreatedAt.Equal(o.CreatedAt)
}

// Clone returns a copy.
func (c *Category) Clone() *Category {
	v := *c
	return &v
}
