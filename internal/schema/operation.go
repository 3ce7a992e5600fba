package schema

import (
	"fmt"
	"time"

	"github.com/todoee/todoee/internal/ids"
)

// OperationType names the transition an Operation records.
type OperationType string

const (
	OpCreate     OperationType = "create"
	OpUpdate     OperationType = "update"
	OpDelete     OperationType = "delete"
	OpComplete   OperationType = "complete"
	OpUncomplete OperationType = "uncomplete"
	OpStash      OperationType = "stash"
	OpUnstash    OperationType = "unstash"
)

// Valid reports whether t is a known operation type.
func (t OperationType) Valid() bool {
	switch t {
	case OpCreate, OpUpdate, OpDelete, OpComplete, OpUncomplete, OpStash, OpUnstash:
		return true
	}
	return false
}

// hasPrevious and hasNew report which snapshots the type requires.
func (t OperationType) hasPrevious() bool {
	return t != OpCreate && t != OpUnstash
}

func (t OperationType) hasNew() bool {
	return t != OpDelete && t != OpStash
}

// Operation is one history entry.
type Operation struct {
	// Seq is assigned by the store and breaks ties between equal CreatedAt values.
	Seq int64 `json:"seq"`

	ID            string        `json:"id"`
	Type          OperationType `json:"operation_type"`
	EntityType    EntityType    `json:"entity_type"`
	EntityID      string        `json:"entity_id"`
	PreviousState *Snapshot     `json:"previous_state"`
	NewState      *Snapshot     `json:"new_state"`

	// Note carries the stash label for stash and unstash entries.
	Note string `json:"note,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	Undone    bool      `json:"undone"`
}

// Validate enforces the snapshot nullability rules for the operation type
// and checks that every snapshot describes EntityID.
func (o *Operation) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !o.Type.Valid() {
		return fmt.Errorf("invalid operation_type %q", o.Type)
	}
	if !o.EntityType.Valid() {
		return fmt.Errorf("invalid entity_type %q", o.EntityType)
	}
	if o.EntityID == "" {
		return fmt.Errorf("entity_id is required")
	}
	if o.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if o.Type.hasPrevious() != (o.PreviousState != nil) {
		return fmt.Errorf("%s operation: previous_state presence mismatch", o.Type)
	}
	if o.Type.hasNew() != (o.NewState != nil) {
		return fmt.Errorf("%s operation: new_state presence mismatch", o.Type)
	}
	for _, s := range []*Snapshot{o.PreviousState, o.NewState} {
		if s == nil {
			continue
		}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%s operation: invalid snapshot: %w", o.Type, err)
		}
		if s.Kind() != o.EntityType || s.EntityID() != o.EntityID {
			return fmt.Errorf("%s operation: snapshot does not describe %s %s", o.Type, o.EntityType, o.EntityID)
		}
	}
	return nil
}

// Label returns the title or name of the entity the entry describes,
// preferring the post-mutation shape.
func (o *Operation) Label() string {
	if o.NewState != nil {
		return o.NewState.Label()
	}
	if o.PreviousState != nil {
		return o.PreviousState.Label()
	}
	return ""
}

// NewOperation builds an entry for a transition of the entity described by
// whichever snapshot is present. CreatedAt is left for the store to stamp.
func NewOperation(typ OperationType, previous, next *Snapshot) *Operation {
	op := &Operation{
		ID:            ids.New(),
		Type:          typ,
		PreviousState: previous,
		NewState:      next,
	}
	subject := next
	if subject == nil {
		subject = previous
	}
	if subject != nil {
		op.EntityType = subject.Kind()
		op.EntityID = subject.EntityID()
	}
	return op
}
