package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/todoee/todoee/internal/schema"
)

func appendCreate(t *testing.T, db *DB, n int) *schema.Operation {
	t.Helper()
	td := newTodo(fmt.Sprintf("t%d", n), fmt.Sprintf("todo %d", n), base)
	op := &schema.Operation{
		ID:         fmt.Sprintf("op%d", n),
		Type:       schema.OpCreate,
		EntityType: schema.EntityTodo,
		EntityID:   td.ID,
		NewState:   schema.TodoSnapshot(td),
	}
	op.NewState.Todo.SyncStatus = schema.SyncPending
	if err := db.AppendOperation(context.Background(), op); err != nil {
		t.Fatalf("AppendOperation() failed: %v", err)
	}
	return op
}

func TestAppendOperation_RejectsInvalid(t *testing.T) {
	db := openTestDB(t, base)
	op := &schema.Operation{
		ID:         "op1",
		Type:       schema.OpDelete,
		EntityType: schema.EntityTodo,
		EntityID:   "t1",
	}
	if err := db.AppendOperation(context.Background(), op); err == nil {
		t.Error("AppendOperation() accepted a delete without previous_state")
	}
}

func TestAppendOperation_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, base)
	op := appendCreate(t, db, 1)

	got, err := db.GetOperation(ctx, op.ID)
	if err != nil {
		t.Fatalf("GetOperation() failed: %v", err)
	}
	if got.Seq != op.Seq || got.Type != schema.OpCreate || got.PreviousState != nil {
		t.Errorf("GetOperation() = %+v", got)
	}
	if got.NewState == nil || got.NewState.Kind() != schema.EntityTodo || got.NewState.Todo.Title != "todo 1" {
		t.Errorf("NewState = %+v", got.NewState)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
	}
}

func TestAppendOperation_NeverGoesBackInTime(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, base)
	appendCreate(t, db, 1)

	db.SetClock(func() time.Time { return base.Add(-time.Hour) })
	op := appendCreate(t, db, 2)
	if op.CreatedAt.Before(base) {
		t.Errorf("CreatedAt = %v, want clamped to %v", op.CreatedAt, base)
	}

	latest, err := db.LatestActiveOperation(ctx)
	if err != nil {
		t.Fatalf("LatestActiveOperation() failed: %v", err)
	}
	if latest.ID != "op2" {
		t.Errorf("LatestActiveOperation() = %s, want op2", latest.ID)
	}
}

// Every entry shares one timestamp, so ordering relies on the sequence.
func TestUndoRedoSelection_TieBreaksOnSequence(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, base)
	for i := 1; i <= 3; i++ {
		appendCreate(t, db, i)
	}

	if _, err := db.NextRedoOperation(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("NextRedoOperation() error = %v, want ErrNotFound", err)
	}

	// Invert op3 then op2.
	for _, want := range []string{"op3", "op2"} {
		op, err := db.LatestActiveOperation(ctx)
		if err != nil {
			t.Fatalf("LatestActiveOperation() failed: %v", err)
		}
		if op.ID != want {
			t.Fatalf("LatestActiveOperation() = %s, want %s", op.ID, want)
		}
		if err := db.SetOperationUndone(ctx, op.ID, true); err != nil {
			t.Fatalf("SetOperationUndone() failed: %v", err)
		}
	}

	// Redo replays in forward order.
	for _, want := range []string{"op2", "op3"} {
		op, err := db.NextRedoOperation(ctx)
		if err != nil {
			t.Fatalf("NextRedoOperation() failed: %v", err)
		}
		if op.ID != want {
			t.Fatalf("NextRedoOperation() = %s, want %s", op.ID, want)
		}
		if err := db.SetOperationUndone(ctx, op.ID, false); err != nil {
			t.Fatalf("SetOperationUndone() failed: %v", err)
		}
	}
}

func TestNextRedoOperation_ChainBrokenByNewEntry(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, base)
	appendCreate(t, db, 1)
	op2 := appendCreate(t, db, 2)

	if err := db.SetOperationUndone(ctx, op2.ID, true); err != nil {
		t.Fatalf("SetOperationUndone() failed: %v", err)
	}
	appendCreate(t, db, 3)

	if _, err := db.NextRedoOperation(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("NextRedoOperation() error = %v, want ErrNotFound", err)
	}
}

func TestNextRedoOperation_AllUndone(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, base)
	for i := 1; i <= 2; i++ {
		op := appendCreate(t, db, i)
		if err := db.SetOperationUndone(ctx, op.ID, true); err != nil {
			t.Fatalf("SetOperationUndone() failed: %v", err)
		}
	}

	if _, err := db.LatestActiveOperation(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestActiveOperation() error = %v, want ErrNotFound", err)
	}
	op, err := db.NextRedoOperation(ctx)
	if err != nil {
		t.Fatalf("NextRedoOperation() failed: %v", err)
	}
	if op.ID != "op1" {
		t.Errorf("NextRedoOperation() = %s, want op1", op.ID)
	}
}

func TestListAndSweepOperations(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, base)
	appendCreate(t, db, 1)
	db.SetClock(func() time.Time { return base.Add(48 * time.Hour) })
	appendCreate(t, db, 2)
	appendCreate(t, db, 3)

	ops, err := db.ListOperations(ctx, 2)
	if err != nil {
		t.Fatalf("ListOperations() failed: %v", err)
	}
	if len(ops) != 2 || ops[0].ID != "op3" || ops[1].ID != "op2" {
		t.Fatalf("ListOperations(2) = %v", ops)
	}

	since, err := db.ListOperationsSince(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("ListOperationsSince() failed: %v", err)
	}
	if len(since) != 2 || since[0].ID != "op2" {
		t.Fatalf("ListOperationsSince() = %v", since)
	}

	cutoff := base.Add(24 * time.Hour)
	n, err := db.CountOperationsBefore(ctx, cutoff)
	if err != nil || n != 1 {
		t.Fatalf("CountOperationsBefore() = %d, %v; want 1", n, err)
	}
	swept, err := db.DeleteOperationsBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("DeleteOperationsBefore() failed: %v", err)
	}
	if swept != 1 {
		t.Errorf("DeleteOperationsBefore() = %d, want 1", swept)
	}
	if _, err := db.GetOperation(ctx, "op1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("swept op1 still present: %v", err)
	}
}
