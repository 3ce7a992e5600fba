package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/todoee/todoee/internal/db"
	"github.com/todoee/todoee/internal/insights"
	"github.com/todoee/todoee/internal/schema"
)

// TodoTable renders todos as a table. categories maps category id to name.
func TodoTable(todos []*schema.Todo, categories map[string]string, dateFormat string) string {
	rows := make([][]string, 0, len(todos))
	for _, t := range todos {
		check := "[ ]"
		title := Truncate(t.Title, 50)
		if t.IsCompleted {
			check = Success("[x]")
			title = doneStyle.Render(title)
		}
		due := ""
		if t.DueDate != nil {
			due = t.DueDate.Local().Format(dateFormat)
			if t.IsOverdue(time.Now()) {
				due = Error(due)
			}
		}
		rows = append(rows, []string{
			ID(t.ID),
			check,
			Priority(t.Priority),
			title,
			Muted(categories[t.CategoryID]),
			due,
		})
	}
	return Table([]string{"ID", "", "PRIORITY", "TITLE", "CATEGORY", "DUE"}, rows)
}

// TodoDetail renders every field of a todo.
func TodoDetail(t *schema.Todo, category string, dateFormat string) string {
	var b strings.Builder
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%-12s %s\n", Muted(label), value)
		}
	}
	stamp := func(ts *time.Time) string {
		if ts == nil {
			return ""
		}
		return ts.Local().Format(dateFormat + " 15:04")
	}

	fmt.Fprintf(&b, "%s %s\n", ID(t.ID), Title(t.Title))
	line("id", t.ID)
	line("description", t.Description)
	line("category", category)
	line("priority", Priority(t.Priority))
	line("due", stamp(t.DueDate))
	line("reminder", stamp(t.ReminderAt))
	if t.IsCompleted {
		line("completed", stamp(t.CompletedAt))
	}
	line("created", t.CreatedAt.Local().Format(dateFormat+" 15:04"))
	line("updated", t.UpdatedAt.Local().Format(dateFormat+" 15:04"))
	line("sync", string(t.SyncStatus))
	return b.String()
}

// CategoryTable renders categories with their todo counts.
func CategoryTable(categories []*schema.Category, counts map[string]int) string {
	rows := make([][]string, 0, len(categories))
	for _, c := range categories {
		name := c.Name
		if c.IsAIGenerated {
			name += Muted(" (ai)")
		}
		rows = append(rows, []string{ID(c.ID), name, fmt.Sprint(counts[c.ID])})
	}
	return Table([]string{"ID", "NAME", "TODOS"}, rows)
}

// Operation renders one history entry on a single line.
func Operation(op *schema.Operation, now time.Time) string {
	line := fmt.Sprintf("%s %-10s %-8s %s", ID(op.ID), OpType(op.Type), op.EntityType, Truncate(op.Label(), 50))
	if op.Note != "" {
		line += Muted(fmt.Sprintf(" %q", op.Note))
	}
	line += " " + Muted(FormatAgo(op.CreatedAt, now))
	if op.Undone {
		line += " " + Warn("(undone)")
	}
	return line
}

// OperationDetail renders a history entry with the fields that changed.
func OperationDetail(op *schema.Operation, now time.Time) string {
	var b strings.Builder
	b.WriteString(Operation(op, now))
	b.WriteByte('\n')
	for _, change := range Changes(op.PreviousState, op.NewState) {
		fmt.Fprintf(&b, "    %s\n", change)
	}
	return b.String()
}

// Changes lists the fields that differ between two snapshots of one entity
// as "field: old -> new". A missing side is shown as created or removed.
func Changes(previous, next *schema.Snapshot) []string {
	before, after := fields(previous), fields(next)
	var out []string
	for _, f := range fieldOrder {
		old, hadOld := before[f]
		cur, hasCur := after[f]
		switch {
		case hadOld && hasCur && old == cur:
			continue
		case !hadOld && !hasCur:
			continue
		case !hadOld:
			out = append(out, fmt.Sprintf("%s: %s", f, Success(cur)))
		case !hasCur:
			out = append(out, fmt.Sprintf("%s: %s", f, Error(old)))
		default:
			out = append(out, fmt.Sprintf("%s: %s -> %s", f, Error(old), Success(cur)))
		}
	}
	return out
}

var fieldOrder = []string{"title", "name", "description", "category", "priority", "due", "reminder", "completed", "color"}

func fields(s *schema.Snapshot) map[string]string {
	out := map[string]string{}
	if s == nil {
		return out
	}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	ts := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return db.FormatTime(*t)
	}
	if t := s.Todo; t != nil {
		set("title", t.Title)
		set("description", t.Description)
		set("category", t.CategoryID)
		set("priority", t.Priority.String())
		set("due", ts(t.DueDate))
		set("reminder", ts(t.ReminderAt))
		set("completed", fmt.Sprint(t.IsCompleted))
	}
	if c := s.Category; c != nil {
		set("name", c.Name)
		set("color", c.Color)
	}
	return out
}

// Stats renders store counts.
func Stats(s *db.Stats) string {
	rows := [][]string{
		{"todos", fmt.Sprint(s.Todos)},
		{"open", fmt.Sprint(s.OpenTodos)},
		{"categories", fmt.Sprint(s.Categories)},
		{"operations", fmt.Sprint(s.Operations)},
		{"stashed", fmt.Sprint(s.Stashed)},
		{"pending upload", fmt.Sprint(s.PendingUploads)},
		{"pending deletes", fmt.Sprint(s.Tombstones)},
	}
	return Table([]string{"STORE", "COUNT"}, rows)
}

var heatmapWeeks = [insights.HeatmapWeeks]string{"this", "last", "2 ago", "3 ago"}

func heatCell(n int) string {
	switch {
	case n == 0:
		return Muted("░")
	case n <= 2:
		return Success("▒")
	case n <= 5:
		return Success("▓")
	}
	return titleStyle.Inherit(successStyle).Render("█")
}

// Insights renders an activity report with a completion heatmap.
func Insights(r *insights.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", Title(fmt.Sprintf("Activity over the last %d days", r.Days)))

	rows := [][]string{
		{"created", fmt.Sprint(r.Created)},
		{"completed", fmt.Sprint(r.Completed)},
		{"completion rate", fmt.Sprintf("%d%%", r.CompletionRate())},
		{"open", fmt.Sprint(r.Open)},
		{"overdue", fmt.Sprint(r.Overdue)},
	}
	if d, ok := r.BestDay(); ok {
		rows = append(rows, []string{"most productive", d.String()})
	}
	b.WriteString(Table([]string{"TODOS", "COUNT"}, rows))

	heat := make([][]string, 0, len(r.Heatmap))
	for i, week := range r.Heatmap {
		row := []string{heatmapWeeks[i]}
		for _, n := range week {
			row = append(row, heatCell(n))
		}
		heat = append(heat, row)
	}
	b.WriteByte('\n')
	b.WriteString(Table([]string{"WEEK", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}, heat))

	if tips := r.Suggestions(); len(tips) > 0 {
		b.WriteByte('\n')
		for _, tip := range tips {
			fmt.Fprintf(&b, "%s %s\n", Warn("•"), tip)
		}
	}
	return b.String()
}
