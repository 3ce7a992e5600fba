// Package dates parses the due and reminder times users type, such as
// "tomorrow 9am", "next friday", "in 2 hours" or "2026-06-01".
package dates

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// ErrUnrecognized is returned when no date can be found in the input.
var ErrUnrecognized = errors.New("unrecognized date")

var layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Parser turns free text into times relative to a reference instant.
type Parser struct {
	w   *when.Parser
	loc *time.Location
}

// NewParser creates a Parser that interprets bare dates in loc.
func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{w: w, loc: loc}
}

// Parse interprets s relative to now. Absolute layouts are tried first,
// then natural language. A date without a time of day means the start of
// that day. The result is in UTC.
func (p *Parser) Parse(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrUnrecognized
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, p.loc); err == nil {
			return t.UTC(), nil
		}
	}

	r, err := p.w.Parse(s, now.In(p.loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognized, s)
	}
	return r.Time.UTC(), nil
}

// ParseOptional is Parse for flags: an empty string yields nil.
func (p *Parser) ParseOptional(s string, now time.Time) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := p.Parse(s, now)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// StartOfDay returns midnight of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
