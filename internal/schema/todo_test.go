package schema

import (
	"strings"
	"testing"
	"time"
)

func validTodo(now time.Time) Todo {
	return Todo{
		ID:         "0b7f6d2e-2f7b-4c6e-9b1a-3d1f7c9e2a11",
		Title:      "Buy milk",
		Priority:   PriorityMedium,
		CreatedAt:  now,
		UpdatedAt:  now,
		SyncStatus: SyncPending,
	}
}

func TestTodo_Validate(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name    string
		mutate  func(*Todo)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid todo",
			mutate: func(*Todo) {},
		},
		{
			name:    "missing id",
			mutate:  func(td *Todo) { td.ID = "" },
			wantErr: true,
			errMsg:  "id is required",
		},
		{
			name:    "blank title",
			mutate:  func(td *Todo) { td.Title = "   " },
			wantErr: true,
			errMsg:  "title is required",
		},
		{
			name:    "title too long",
			mutate:  func(td *Todo) { td.Title = strings.Repeat("x", MaxTitleLength+1) },
			wantErr: true,
			errMsg:  "title must be 500 characters or less",
		},
		{
			name:    "priority out of range",
			mutate:  func(td *Todo) { td.Priority = 4 },
			wantErr: true,
			errMsg:  "priority must be between 1 and 3",
		},
		{
			name:    "completed without timestamp",
			mutate:  func(td *Todo) { td.IsCompleted = true },
			wantErr: true,
			errMsg:  "completed_at must be set",
		},
		{
			name:    "unknown sync status",
			mutate:  func(td *Todo) { td.SyncStatus = "dirty" },
			wantErr: true,
			errMsg:  "invalid sync_status",
		},
		{
			name:   "completed with timestamp",
			mutate: func(td *Todo) { td.MarkComplete(now) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			td := validTodo(now)
			tt.mutate(&td)
			err := td.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestTodo_SetDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	td := Todo{ID: "a", Title: "x"}
	td.SetDefaults(now)

	if td.Priority != PriorityMedium {
		t.Errorf("Priority = %v, want medium", td.Priority)
	}
	if !td.CreatedAt.Equal(now) || !td.UpdatedAt.Equal(now) {
		t.Errorf("timestamps = %v/%v, want %v", td.CreatedAt, td.UpdatedAt, now)
	}
	if td.SyncStatus != SyncPending {
		t.Errorf("SyncStatus = %q, want pending", td.SyncStatus)
	}
}

func TestTodo_SameContentIgnoresSyncStatus(t *testing.T) {
	now := time.Now().UTC()
	a := validTodo(now)
	b := a
	b.SyncStatus = SyncSynced
	if !a.SameContent(&b) {
		t.Error("SameContent() = false for rows differing only in sync status")
	}

	due := now.Add(time.Hour)
	b.DueDate = &due
	if a.SameContent(&b) {
		t.Error("SameContent() = true for rows with different due dates")
	}
}

func TestTodo_SameFieldsIgnoresRevision(t *testing.T) {
	now := time.Now().UTC()
	a := validTodo(now)
	b := a
	b.UpdatedAt = now.Add(time.Minute)
	if a.SameContent(&b) {
		t.Error("SameContent() = true for rows with different updated_at")
	}
	if !a.SameFields(&b) {
		t.Error("SameFields() = false for rows differing only in updated_at")
	}

	b.Title = "Other"
	if a.SameFields(&b) {
		t.Error("SameFields() = true for rows with different titles")
	}
	if TodoSnapshot(&a).SameFields(CategorySnapshot(&Category{ID: a.ID})) {
		t.Error("Snapshot.SameFields() = true across entity kinds")
	}
}

func TestTodo_CloneIsDeep(t *testing.T) {
	now := time.Now().UTC()
	td := validTodo(now)
	due := now.Add(time.Hour)
	td.DueDate = &due

	c := td.Clone()
	*c.DueDate = now
	if !td.DueDate.Equal(due) {
		t.Error("mutating the clone changed the original due date")
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"low", PriorityLow, false},
		{"M", PriorityMedium, false},
		{"3", PriorityHigh, false},
		{" high ", PriorityHigh, false},
		{"urgent", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePriority(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePriority(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePriority(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
