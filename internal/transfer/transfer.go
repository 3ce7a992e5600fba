// Package transfer exports the store to a JSON or YAML document and imports
// such documents back through the mutation service.
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/todoee/todoee/internal/db"
	"github.com/todoee/todoee/internal/schema"
	"github.com/todoee/todoee/internal/tasks"
)

// Version is the document format version written by Export.
const Version = 1

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" or "yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown format %q (want json or yaml)", s)
}

// FormatForPath picks the format from a file extension, defaulting to JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Document is the exported shape of the store.
type Document struct {
	Version    int                `json:"version" yaml:"version"`
	ExportedAt time.Time          `json:"exported_at" yaml:"exported_at"`
	Categories []*schema.Category `json:"categories" yaml:"categories"`
	Todos      []*schema.Todo     `json:"todos" yaml:"todos"`
}

// Build reads every category and todo into a Document.
func Build(ctx context.Context, database *db.DB) (*Document, error) {
	categories, err := database.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	todos, err := database.ListTodos(ctx, db.TodoFilter{IncludeCompleted: true, ByCreation: true})
	if err != nil {
		return nil, err
	}
	return &Document{
		Version:    Version,
		ExportedAt: database.Now(),
		Categories: categories,
		Todos:      todos,
	}, nil
}

// Encode writes doc to w.
func Encode(w io.Writer, doc *Document, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown format %q", format)
}

// Decode reads a document in either format. JSON is recognized by a
// leading '{'; anything else is read as YAML.
func Decode(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	var doc Document
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("invalid json document: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid yaml document: %w", err)
	}

	if doc.Version > Version {
		return nil, fmt.Errorf("document version %d is newer than supported version %d", doc.Version, Version)
	}
	return &doc, nil
}

// WriteFile exports doc to path atomically via a temp file.
func WriteFile(path string, doc *Document, format Format) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, doc, format); err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// ImportResult counts what Import did.
type ImportResult struct {
	CategoriesCreated int
	CategoriesMerged  int
	TodosCreated      int
	Skipped           int
	// Detached counts todos whose category could not be found; they are
	// imported without one.
	Detached int
}

// Import creates the categories and todos of doc that are not yet present.
// Each creation goes through svc and is logged, so an import can be undone
// step by step. Existing ids are skipped. A category whose name matches an
// existing one is merged into it.
func Import(ctx context.Context, database *db.DB, svc *tasks.Service, doc *Document) (*ImportResult, error) {
	res := &ImportResult{}
	remap := map[string]string{}

	for _, c := range doc.Categories {
		if _, err := database.GetCategory(ctx, c.ID); err == nil {
			remap[c.ID] = c.ID
			res.Skipped++
			continue
		} else if !errors.Is(err, db.ErrNotFound) {
			return res, err
		}

		in := c.Clone()
		in.SyncStatus = ""
		created, err := svc.AddCategory(ctx, in)
		if errors.Is(err, tasks.ErrCategoryExists) {
			existing, err := database.GetCategoryByName(ctx, c.Name)
			if err != nil {
				return res, err
			}
			remap[c.ID] = existing.ID
			res.CategoriesMerged++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("category %q: %w", c.Name, err)
		}
		remap[c.ID] = created.ID
		res.CategoriesCreated++
	}

	for _, t := range doc.Todos {
		exists, err := database.TodoExists(ctx, t.ID)
		if err != nil {
			return res, err
		}
		if exists {
			res.Skipped++
			continue
		}

		in := t.Clone()
		in.SyncStatus = ""
		if in.CategoryID != "" {
			if id, ok := remap[in.CategoryID]; ok {
				in.CategoryID = id
			} else if _, err := database.GetCategory(ctx, in.CategoryID); err != nil {
				in.CategoryID = ""
				res.Detached++
			}
		}
		if _, err := svc.AddTodo(ctx, in); err != nil {
			return res, fmt.Errorf("todo %q: %w", t.Title, err)
		}
		res.TodosCreated++
	}
	return res, nil
}
