package schema

import (
	"fmt"
	"strings"
	"time"
)

// MaxTitleLength bounds todo titles.
const MaxTitleLength = 500

// SyncStatus marks whether a row still has to be pushed to the remote.
type SyncStatus string

const (
	SyncPending  SyncStatus = "pending"
	SyncSynced   SyncStatus = "synced"
	SyncConflict SyncStatus = "conflict"
)

// Valid reports whether s is a known sync status.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncPending, SyncSynced, SyncConflict:
		return true
	}
	return false
}

// NeedsUpload reports whether a row in this state must be sent on the next sync.
func (s SyncStatus) NeedsUpload() bool {
	return s == SyncPending || s == SyncConflict
}

// Priority orders todos. Higher values are more urgent.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3
)

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ParsePriority accepts a name (low, medium, high, with l/m/h shorthands)
// or a number from 1 to 3.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "l", "low":
		return PriorityLow, nil
	case "2", "m", "med", "medium":
		return PriorityMedium, nil
	case "3", "h", "high":
		return PriorityHigh, nil
	}
	return 0, fmt.Errorf("invalid priority %q (want low, medium or high)", s)
}

// Todo is a single task.
type Todo struct {
	ID          string     `json:"id" yaml:"id"`
	CategoryID  string     `json:"category_id,omitempty" yaml:"category_id,omitempty"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	ReminderAt  *time.Time `json:"reminder_at,omitempty" yaml:"reminder_at,omitempty"`
	Priority    Priority   `json:"priority" yaml:"priority"`
	IsCompleted bool       `json:"is_completed" yaml:"is_completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`

	// AIMetadata holds the raw JSON returned by the text parser, if any.
	AIMetadata string `json:"ai_metadata,omitempty" yaml:"ai_metadata,omitempty"`

	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" yaml:"updated_at"`
	SyncStatus SyncStatus `json:"sync_status" yaml:"sync_status"`
}

// Validate checks if the Todo has valid field values.
func (t *Todo) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, len(t.Title))
	}
	if t.Priority < PriorityLow || t.Priority > PriorityHigh {
		return fmt.Errorf("priority must be between 1 and 3 (got %d)", t.Priority)
	}
	if t.IsCompleted != (t.CompletedAt != nil) {
		return fmt.Errorf("completed_at must be set exactly when the todo is completed")
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if t.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	if !t.SyncStatus.Valid() {
		return fmt.Errorf("invalid sync_status %q", t.SyncStatus)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (t *Todo) SetDefaults(now time.Time) {
	if t.Priority == 0 {
		t.Priority = PriorityMedium
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if t.SyncStatus == "" {
		t.SyncStatus = SyncPending
	}
}

// MarkComplete flags the todo done at now.
func (t *Todo) MarkComplete(now time.Time) {
	t.IsCompleted = true
	t.CompletedAt = &now
}

// MarkIncomplete clears the completion state.
func (t *Todo) MarkIncomplete() {
	t.IsCompleted = false
	t.CompletedAt = nil
}

// IsOverdue reports whether the todo is open and past its due date.
func (t *Todo) IsOverdue(now time.Time) bool {
	return !t.IsCompleted && t.DueDate != nil && t.DueDate.Before(now)
}

// SameContent compares every field except SyncStatus.
func (t *Todo) SameContent(o *Todo) bool {
	return t.SameFields(o) && t.UpdatedAt.Equal(o.UpdatedAt)
}

// SameFields is SameContent without the revision timestamp.
func (t *Todo) SameFields(o *Todo) bool {
	return t.ID == o.ID &&
		t.CategoryID == o.CategoryID &&
		t.Title == o.Title &&
		t.Description == o.Description &&
		timePtrEqual(t.DueDate, o.DueDate) &&
		timePtrEqual(t.ReminderAt, o.ReminderAt) &&
		t.Priority == o.Priority &&
		t.IsCompleted == o.IsCompleted &&
		timePtrEqual(t.CompletedAt, o.CompletedAt) &&
		t.AIMetadata == o.AIMetadata &&
		t.CreatedAt.Equal(o.CreatedAt)
}

// Clone returns a deep copy.
func (t *Todo) Clone() *Todo {
	c := *t
	c.DueDate = cloneTime(t.DueDate)
	c.ReminderAt = cloneTime(t.ReminderAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	return &c
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
