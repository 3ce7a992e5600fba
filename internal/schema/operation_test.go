package schema

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestSnapshot_JSONEnvelope(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	td := validTodo(now)

	data, err := json.Marshal(TodoSnapshot(&td))
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	if !strings.Contains(string(data), `"kind":"todo"`) {
		t.Errorf("envelope %s is missing the kind discriminant", data)
	}

	var got Snapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if got.Kind() != EntityTodo || got.Category != nil {
		t.Fatalf("decoded kind = %q, want todo only", got.Kind())
	}
	if !got.Todo.SameContent(&td) {
		t.Errorf("decoded todo = %+v, want %+v", got.Todo, td)
	}
}

func TestSnapshot_RejectsMismatchedPayload(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown kind", `{"kind":"project","todo":{"id":"a"}}`},
		{"todo kind with category payload", `{"kind":"todo","category":{"id":"a","name":"x"}}`},
		{"category kind with both payloads", `{"kind":"category","todo":{"id":"a"},"category":{"id":"a"}}`},
		{"missing payload", `{"kind":"category"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Snapshot
			if err := json.Unmarshal([]byte(tt.raw), &s); err == nil {
				t.Errorf("Unmarshal(%s) succeeded, want error", tt.raw)
			}
		})
	}
}

func TestOperation_Validate(t *testing.T) {
	now := time.Now().UTC()
	td := validTodo(now)
	snap := TodoSnapshot(&td)

	other := validTodo(now)
	other.ID = "someone-else"

	tests := []struct {
		name     string
		typ      OperationType
		previous *Snapshot
		next     *Snapshot
		wantErr  bool
	}{
		{"create", OpCreate, nil, snap, false},
		{"create with previous", OpCreate, snap, snap, true},
		{"delete", OpDelete, snap, nil, false},
		{"delete with new", OpDelete, snap, snap, true},
		{"update", OpUpdate, snap, snap, false},
		{"update missing previous", OpUpdate, nil, snap, true},
		{"complete", OpComplete, snap, snap, false},
		{"uncomplete missing new", OpUncomplete, snap, nil, true},
		{"stash", OpStash, snap, nil, false},
		{"stash with new", OpStash, snap, snap, true},
		{"unstash", OpUnstash, nil, snap, false},
		{"unstash with previous", OpUnstash, snap, snap, true},
		{"snapshot of another entity", OpUpdate, snap, TodoSnapshot(&other), true},
		{"unknown type", "rename", snap, snap, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := Operation{
				ID:            "op-1",
				Type:          tt.typ,
				EntityType:    EntityTodo,
				EntityID:      td.ID,
				PreviousState: tt.previous,
				NewState:      tt.next,
				CreatedAt:     now,
			}
			err := op.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOperation_Label(t *testing.T) {
	now := time.Now().UTC()
	before := validTodo(now)
	after := before
	after.Title = "Buy oat milk"

	op := Operation{PreviousState: TodoSnapshot(&before), NewState: TodoSnapshot(&after)}
	if got := op.Label(); got != "Buy oat milk" {
		t.Errorf("Label() = %q, want new title", got)
	}

	op.NewState = nil
	if got := op.Label(); got != "Buy milk" {
		t.Errorf("Label() = %q, want previous title", got)
	}
}
