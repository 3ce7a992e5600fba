// Package ui renders CLI output.
package ui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/todoee/todoee/internal/ids"
	"github.com/todoee/todoee/internal/schema"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Strikethrough(true)

	priorityStyles = map[schema.Priority]lipgloss.Style{
		schema.PriorityLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		schema.PriorityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		schema.PriorityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}

	opStyles = map[schema.OperationType]lipgloss.Style{
		schema.OpCreate:     successStyle,
		schema.OpDelete:     errorStyle,
		schema.OpUpdate:     warnStyle,
		schema.OpComplete:   successStyle,
		schema.OpUncomplete: warnStyle,
		schema.OpStash:      mutedStyle,
		schema.OpUnstash:    mutedStyle,
	}
)

// Init picks the color profile for f. Color is dropped when NO_COLOR is
// set, TERM is dumb, or f is not a terminal.
func Init(f *os.File) {
	if !ColorEnabled(f) {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.NewOutput(f).EnvColorProfile())
}

// ColorEnabled reports whether f should receive ANSI styling.
func ColorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// IsInteractive reports whether stdin is a terminal, so prompts can be shown.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func Title(s string) string   { return titleStyle.Render(s) }
func Muted(s string) string   { return mutedStyle.Render(s) }
func Success(s string) string { return successStyle.Render(s) }
func Warn(s string) string    { return warnStyle.Render(s) }
func Error(s string) string   { return errorStyle.Render(s) }

// ID renders the short form of id.
func ID(id string) string {
	return idStyle.Render(ids.Short(id))
}

// Priority renders p with its color.
func Priority(p schema.Priority) string {
	style, ok := priorityStyles[p]
	if !ok {
		return p.String()
	}
	return style.Render(p.String())
}

// OpType renders an operation type with its color.
func OpType(t schema.OperationType) string {
	style, ok := opStyles[t]
	if !ok {
		return string(t)
	}
	return style.Render(string(t))
}

// FormatAgo returns a compact age such as "2m ago".
func FormatAgo(then, now time.Time) string {
	if then.IsZero() || then.After(now) {
		return "just now"
	}
	return FormatDurationShort(now.Sub(then)) + " ago"
}

// FormatDurationShort formats a duration using short units (s/m/h/d).
func FormatDurationShort(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int64(d.Truncate(time.Second).Seconds())
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm", seconds/60)
	case seconds < 86400:
		return fmt.Sprintf("%dh", seconds/3600)
	}
	return fmt.Sprintf("%dd", seconds/86400)
}

// Table renders headers and rows as aligned columns separated by two spaces.
// Widths ignore ANSI styling.
func Table(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	var b strings.Builder
	writeRow := func(row []string) {
		for i, cell := range row {
			b.WriteString(cell)
			if i == len(row)-1 {
				break
			}
			if i < len(widths) {
				b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)+2))
			}
		}
		b.WriteByte('\n')
	}

	header := make([]string, len(headers))
	for i, h := range headers {
		header[i] = titleStyle.Render(h)
	}
	writeRow(header)
	for _, row := range rows {
		writeRow(row)
	}
	return b.String()
}

// Truncate shortens s to width visible characters, ending in "...".
func Truncate(s string, width int) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\t", " ").Replace(s)
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return "..."
	}
	return string(r[:width-3]) + "..."
}
