package transfer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/todoee/todoee/internal/db"
	"github.com/todoee/todoee/internal/schema"
	"github.com/todoee/todoee/internal/tasks"
)

var base = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func openStore(t *testing.T) (*db.DB, *tasks.Service) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	clock := base
	database.SetClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	return database, tasks.New(database)
}

// seed fills a store with one category, an open todo in it and a completed
// loose todo.
func seed(t *testing.T) (*db.DB, *schema.Category) {
	t.Helper()
	ctx := context.Background()
	database, svc := openStore(t)

	cat, err := svc.AddCategory(ctx, &schema.Category{Name: "Errands", Color: "#ff8800"})
	if err != nil {
		t.Fatalf("AddCategory failed: %v", err)
	}
	if _, err := svc.AddTodo(ctx, &schema.Todo{Title: "Post office", CategoryID: cat.ID, Priority: schema.PriorityHigh}); err != nil {
		t.Fatalf("AddTodo failed: %v", err)
	}
	done, err := svc.AddTodo(ctx, &schema.Todo{Title: "Water plants", Description: "balcony too"})
	if err != nil {
		t.Fatalf("AddTodo failed: %v", err)
	}
	if _, err := svc.CompleteTodo(ctx, done.ID); err != nil {
		t.Fatalf("CompleteTodo failed: %v", err)
	}
	return database, cat
}

func TestExportImport(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			ctx := context.Background()
			source, cat := seed(t)

			doc, err := Build(ctx, source)
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			var buf bytes.Buffer
			if err := Encode(&buf, doc, format); err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			decoded, err := Decode(&buf)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			target, svc := openStore(t)
			res, err := Import(ctx, target, svc, decoded)
			if err != nil {
				t.Fatalf("Import failed: %v", err)
			}
			if res.CategoriesCreated != 1 || res.TodosCreated != 2 || res.Skipped != 0 {
				t.Errorf("unexpected result: %+v", res)
			}

			todos, err := target.ListTodos(ctx, db.TodoFilter{IncludeCompleted: true, ByCreation: true})
			if err != nil {
				t.Fatalf("ListTodos failed: %v", err)
			}
			if len(todos) != 2 {
				t.Fatalf("expected 2 todos, got %d", len(todos))
			}
			if todos[0].CategoryID != cat.ID || todos[0].Priority != schema.PriorityHigh {
				t.Errorf("first todo lost fields: %+v", todos[0])
			}
			if !todos[1].IsCompleted || todos[1].CompletedAt == nil || todos[1].Description != "balcony too" {
				t.Errorf("completed todo lost fields: %+v", todos[1])
			}
			if todos[1].SyncStatus != schema.SyncPending {
				t.Errorf("imported todo should be pending, got %s", todos[1].SyncStatus)
			}

			// Each created row is one history entry.
			n, err := target.CountOperations(ctx)
			if err != nil {
				t.Fatalf("CountOperations failed: %v", err)
			}
			if n != 3 {
				t.Errorf("expected 3 operations, got %d", n)
			}
		})
	}
}

func TestImport_SkipsExisting(t *testing.T) {
	ctx := context.Background()
	database, _ := seed(t)
	svc := tasks.New(database)

	doc, err := Build(ctx, database)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	res, err := Import(ctx, database, svc, doc)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if res.CategoriesCreated != 0 || res.TodosCreated != 0 || res.Skipped != 3 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestImport_MergesCategoryByName(t *testing.T) {
	ctx := context.Background()
	database, svc := openStore(t)
	existing, err := svc.AddCategory(ctx, &schema.Category{Name: "errands"})
	if err != nil {
		t.Fatalf("AddCategory failed: %v", err)
	}

	doc := &Document{
		Version:    Version,
		Categories: []*schema.Category{{ID: "c-other", Name: "Errands", CreatedAt: base, UpdatedAt: base}},
		Todos: []*schema.Todo{
			{ID: "t-1", Title: "Bank", CategoryID: "c-other", Priority: schema.PriorityLow, CreatedAt: base, UpdatedAt: base},
			{ID: "t-2", Title: "Gym", CategoryID: "c-missing", Priority: schema.PriorityLow, CreatedAt: base, UpdatedAt: base},
		},
	}
	res, err := Import(ctx, database, svc, doc)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if res.CategoriesMerged != 1 || res.TodosCreated != 2 || res.Detached != 1 {
		t.Errorf("unexpected result: %+v", res)
	}

	bank, err := database.GetTodo(ctx, "t-1")
	if err != nil {
		t.Fatalf("GetTodo failed: %v", err)
	}
	if bank.CategoryID != existing.ID {
		t.Errorf("expected category %s, got %s", existing.ID, bank.CategoryID)
	}
	gym, err := database.GetTodo(ctx, "t-2")
	if err != nil {
		t.Fatalf("GetTodo failed: %v", err)
	}
	if gym.CategoryID != "" {
		t.Errorf("expected detached todo, got category %s", gym.CategoryID)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"invalid json", "{invalid json}", "invalid json"},
		{"invalid yaml", "todos: [unclosed", "invalid yaml"},
		{"newer version", `{"version": 99}`, "newer than supported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.in))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Decode() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestWriteFile(t *testing.T) {
	ctx := context.Background()
	database, _ := seed(t)
	doc, err := Build(ctx, database)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "out", "todos.yaml")
	if err := WriteFile(path, doc, FormatForPath(path)); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	if !strings.Contains(string(data), "title: Post office") {
		t.Errorf("export is not yaml:\n%s", data)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind")
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"json": FormatJSON, "YAML": FormatYAML, "yml": FormatYAML} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}
