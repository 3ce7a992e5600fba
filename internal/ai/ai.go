// Package ai turns a free-text task description into structured todo fields
// using the Anthropic Messages API.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/todoee/todoee/internal/schema"
)

var (
	// ErrNoAPIKey is returned by New when no key is configured.
	ErrNoAPIKey = errors.New("no API key configured for text parsing")

	// ErrBadResponse is returned when the reply holds no usable task.
	ErrBadResponse = errors.New("could not understand the parser response")
)

const systemPrompt = `You are a task parsing assistant. Parse the user's input into a structured task.
Today's date is %s.

Respond ONLY with a JSON object in this exact format:
{
    "title": "Brief task title",
    "description": "Optional longer description or null",
    "due_date": "ISO 8601 datetime or null",
    "category": "Category name or null",
    "priority": "Integer 1-4 (1=highest) or null",
    "reminder_at": "ISO 8601 datetime or null"
}

Rules:
- title is required and should be concise
- Use null for optional fields that aren't specified
- Convert relative dates (tomorrow, next week) to absolute ISO 8601 format
- Infer category from context (Work, Personal, Shopping, Health, etc.)
- Priority: 1=urgent, 2=high, 3=normal, 4=low
- Set reminder_at to 15 minutes before due_date if a due time is specified`

// Completer sends one system+user exchange and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ParsedTask is the structured reply.
type ParsedTask struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	DueDate     *stamp  `json:"due_date"`
	Category    *string `json:"category"`
	Priority    *level  `json:"priority"`
	ReminderAt  *stamp  `json:"reminder_at"`

	// Raw is the JSON object as returned, kept as todo metadata.
	Raw string `json:"-"`
}

// level accepts a priority as a JSON number or a quoted number.
type level int

func (l *level) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("priority %q: %w", s, err)
	}
	*l = level(n)
	return nil
}

// stamp accepts RFC 3339 times and bare dates.
type stamp time.Time

func (s *stamp) UnmarshalJSON(data []byte) error {
	v := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if v == "" || v == "null" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			*s = stamp(t)
			return nil
		}
	}
	return fmt.Errorf("unrecognized time %q", v)
}

func (s *stamp) utc() *time.Time {
	if s == nil {
		return nil
	}
	t := time.Time(*s).UTC()
	return &t
}

// Client parses task text through a Completer.
type Client struct {
	completer Completer
	now       func() time.Time
}

// New creates a Client backed by the Anthropic API.
func New(apiKey, model string, timeout time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewWithCompleter(&anthropicCompleter{
		client: anthropic.NewClient(
			option.WithAPIKey(apiKey),
			option.WithRequestTimeout(timeout),
			option.WithMaxRetries(2),
		),
		model: model,
	}), nil
}

// NewWithCompleter creates a Client over any Completer.
func NewWithCompleter(c Completer) *Client {
	return &Client{completer: c, now: time.Now}
}

// ParseTask asks the model to structure input.
func (c *Client) ParseTask(ctx context.Context, input string) (*ParsedTask, error) {
	prompt := fmt.Sprintf(systemPrompt, c.now().UTC().Format("2006-01-02"))
	reply, err := c.completer.Complete(ctx, prompt, input)
	if err != nil {
		return nil, fmt.Errorf("text parsing request failed: %w", err)
	}
	return ParseResponse(reply)
}

// ParseResponse decodes the first JSON object found in reply.
func ParseResponse(reply string) (*ParsedTask, error) {
	obj := extractJSON(reply)
	if obj == "" {
		return nil, fmt.Errorf("%w: no JSON object", ErrBadResponse)
	}
	var task ParsedTask
	if err := json.Unmarshal([]byte(obj), &task); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	task.Title = strings.TrimSpace(task.Title)
	if task.Title == "" {
		return nil, fmt.Errorf("%w: missing title", ErrBadResponse)
	}
	task.Raw = obj
	return &task, nil
}

// extractJSON returns the first balanced {...} in text, or "".
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		ch := text[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case ch == '{' && !inString:
			depth++
		case ch == '}' && !inString:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// SchemaPriority maps the 1 (urgent) to 4 (low) scale onto todo priorities.
func (p *ParsedTask) SchemaPriority() schema.Priority {
	if p.Priority == nil {
		return schema.PriorityMedium
	}
	switch {
	case *p.Priority <= 2:
		return schema.PriorityHigh
	case *p.Priority == 3:
		return schema.PriorityMedium
	}
	return schema.PriorityLow
}

// CategoryName returns the suggested category, or "".
func (p *ParsedTask) CategoryName() string {
	if p.Category == nil {
		return ""
	}
	return strings.TrimSpace(*p.Category)
}

// Todo builds an unsaved todo from the parsed fields. Category is resolved
// by the caller.
func (p *ParsedTask) Todo() *schema.Todo {
	t := &schema.Todo{
		Title:      p.Title,
		Priority:   p.SchemaPriority(),
		AIMetadata: p.Raw,
	}
	if p.Description != nil {
		t.Description = strings.TrimSpace(*p.Description)
	}
	t.DueDate = p.DueDate.utc()
	t.ReminderAt = p.ReminderAt.utc()
	return t
}

type anthropicCompleter struct {
	client anthropic.Client
	model  string
}

func (a *anthropicCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   500,
		Temperature: anthropic.Float(0.1),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}
