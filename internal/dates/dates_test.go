package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday.
var now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func TestParse_Layouts(t *testing.T) {
	p := NewParser(time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-06-01", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"2026-06-01 14:30", time.Date(2026, 6, 1, 14, 30, 0, 0, time.UTC)},
		{"2026-06-01T14:30:00+02:00", time.Date(2026, 6, 1, 12, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := p.Parse(tt.in, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_NaturalLanguage(t *testing.T) {
	p := NewParser(time.UTC)

	got, err := p.Parse("tomorrow", now)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Day())

	got, err = p.Parse("in 2 hours", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(2*time.Hour), got)
}

func TestParse_Unrecognized(t *testing.T) {
	p := NewParser(time.UTC)
	for _, in := range []string{"", "   ", "banana"} {
		_, err := p.Parse(in, now)
		assert.ErrorIs(t, err, ErrUnrecognized, in)
	}
}

func TestParseOptional(t *testing.T) {
	p := NewParser(time.UTC)
	got, err := p.ParseOptional("", now)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = p.ParseOptional("2026-06-01", now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 6, int(got.Month()))
}

func TestStartOfDay(t *testing.T) {
	got := StartOfDay(time.Date(2026, 5, 4, 23, 59, 0, 0, time.UTC), time.UTC)
	assert.Equal(t, time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), got)
}
