package ids

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewIsRandomUUID(t *testing.T) {
	a, b := New(), New()
	if a == b {
		t.Fatalf("New() returned the same id twice: %s", a)
	}
	parsed, err := uuid.Parse(a)
	if err != nil {
		t.Fatalf("New() = %q is not a UUID: %v", a, err)
	}
	if parsed.Version() != 4 {
		t.Errorf("New() version = %d, want 4", parsed.Version())
	}
}

func TestShort(t *testing.T) {
	if got := Short("0123456789abcdef"); got != "01234567" {
		t.Errorf("Short() = %q, want 01234567", got)
	}
	if got := Short("abc"); got != "abc" {
		t.Errorf("Short() = %q, want abc", got)
	}
}

func TestUniquePrefixLengths(t *testing.T) {
	ids := []string{"2u3iutfd", "2a9k1111", "abc12345"}
	lengths := UniquePrefixLengths(ids)

	if got := lengths["2u3iutfd"]; got != 2 {
		t.Fatalf("expected 2u3iutfd prefix length 2, got %d", got)
	}
	if got := lengths["abc12345"]; got != 1 {
		t.Fatalf("expected abc12345 prefix length 1, got %d", got)
	}
}

func TestUniquePrefixLengthsIsCaseInsensitive(t *testing.T) {
	lengths := UniquePrefixLengths([]string{"Abc", "aBD", ""})

	if len(lengths) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(lengths))
	}
	if got := lengths["abd"]; got != 3 {
		t.Fatalf("expected abd prefix length 3, got %d", got)
	}
}
