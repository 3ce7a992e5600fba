// Package insights summarizes recent activity from the operation log.
//
// Only todo entries that are still in effect count: undone entries and
// category changes are skipped.
package insights

import (
	"fmt"
	"time"

	"github.com/todoee/todoee/internal/schema"
)

const (
	// HeatmapWeeks is how many weeks the heatmap covers, newest first.
	HeatmapWeeks = 4

	backlogThreshold = 20
	day              = 24 * time.Hour
)

// Report is the activity summary for the last Days days.
type Report struct {
	Days      int
	Created   int
	Completed int

	// ByWeekday counts completions per local weekday, indexed by
	// time.Weekday.
	ByWeekday [7]int

	// Heatmap counts completions per week ago and Monday-first weekday.
	Heatmap [HeatmapWeeks][7]int

	Open    int
	Overdue int
}

// Build summarizes ops (the log entries of the window) and todos (the
// whole store) as seen at now in loc.
func Build(ops []*schema.Operation, todos []*schema.Todo, days int, now time.Time, loc *time.Location) *Report {
	r := &Report{Days: days}
	for _, op := range ops {
		if op.Undone || op.EntityType != schema.EntityTodo {
			continue
		}
		switch op.Type {
		case schema.OpCreate:
			r.Created++
		case schema.OpComplete:
			r.Completed++
			local := op.CreatedAt.In(loc)
			r.ByWeekday[local.Weekday()]++
			if weeks := int(now.Sub(op.CreatedAt)/day) / 7; weeks >= 0 && weeks < HeatmapWeeks {
				r.Heatmap[weeks][MondayFirst(local.Weekday())]++
			}
		}
	}
	for _, t := range todos {
		if t.IsCompleted {
			continue
		}
		r.Open++
		if t.IsOverdue(now) {
			r.Overdue++
		}
	}
	return r
}

// MondayFirst maps a weekday to its column in a Monday-first week.
func MondayFirst(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// CompletionRate is completed over created, in whole percent.
func (r *Report) CompletionRate() int {
	if r.Created == 0 {
		return 0
	}
	return r.Completed * 100 / r.Created
}

// BestDay returns the weekday with the most completions. Ties go to the
// earlier day of a Monday-first week.
func (r *Report) BestDay() (time.Weekday, bool) {
	best, most := time.Monday, 0
	for i := 0; i < 7; i++ {
		d := time.Weekday((i + 1) % 7)
		if r.ByWeekday[d] > most {
			best, most = d, r.ByWeekday[d]
		}
	}
	return best, most > 0
}

// Suggestions returns short advice drawn from the report.
func (r *Report) Suggestions() []string {
	var out []string
	if r.Overdue > 0 {
		out = append(out, fmt.Sprintf("You have %d overdue todos; consider rescheduling them", r.Overdue))
	}
	if r.Open > backlogThreshold {
		out = append(out, fmt.Sprintf("%d open todos; consider dropping or splitting some", r.Open))
	}
	if d, ok := r.BestDay(); ok {
		out = append(out, fmt.Sprintf("Schedule important tasks on %ss", d))
	}
	if r.Completed == 0 && r.Days >= 7 {
		out = append(out, fmt.Sprintf("No completions in %d days; try smaller tasks", r.Days))
	}
	return out
}
