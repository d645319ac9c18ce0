package parseutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"734003200", 734003200},
		{"734,003,200", 734003200},
		{"1 GB", 1000000000},
		{"600 MiB", 629145600},
		{"1.4 GiB", 1503238553},
		{"", 0},
		{"n/a", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseSize(tt.in), "input %q", tt.in)
	}
}

func TestParseInt(t *testing.T) {
	assert.Equal(t, 1204, ParseInt("1,204"))
	assert.Equal(t, 42, ParseInt(" 42 seeders"))
	assert.Equal(t, 0, ParseInt("-"))
	assert.Equal(t, 0, ParseInt(""))
}

func TestParseFuzzyTimeRelative(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2 hours ago", now.Add(-2 * time.Hour)},
		{"1 day 2 hours ago", now.Add(-26 * time.Hour)},
		{"30 minutes ago", now.Add(-30 * time.Minute)},
		{"Today 14:02", time.Date(2026, 3, 14, 14, 2, 0, 0, time.UTC)},
		{"Yesterday", time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)},
		{"Yesterday at 09:30", time.Date(2026, 3, 13, 9, 30, 0, 0, time.UTC)},
		{"now", now},
	}

	for _, tt := range tests {
		got, err := ParseFuzzyTime(tt.in, now)
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestParseFuzzyTimeAbsolute(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

	got, err := ParseFuzzyTime("2026-01-02 10:30:00", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 2, 10, 30, 0, 0, time.UTC), got)

	got, err = ParseFuzzyTime("1767348000", now)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1767348000, 0).UTC(), got)

	_, err = ParseFuzzyTime("not a date", now)
	assert.Error(t, err)
}

func TestTiebreakerMonotonic(t *testing.T) {
	stamp := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	tb := NewTiebreaker()

	first := tb.Next(stamp)
	second := tb.Next(stamp)
	third := tb.Next(stamp)

	assert.True(t, second.Before(first))
	assert.True(t, third.Before(second))

	// A genuinely older row passes through untouched.
	older := stamp.Add(-time.Hour)
	assert.Equal(t, older, tb.Next(older))
}

func TestTiebreakerKeepsDistinctDates(t *testing.T) {
	// Listings sorted by seeders or name interleave dates freely; only rows
	// parsing to the exact same instant get a synthetic offset.
	tb := NewTiebreaker()

	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, jan, tb.Next(jan))
	assert.Equal(t, jun, tb.Next(jun))
	assert.Equal(t, jun.Add(-time.Millisecond), tb.Next(jun))
	assert.Equal(t, jan, tb.Next(jan))
}

func TestResolveVolumeFactor(t *testing.T) {
	tests := []struct {
		name   string
		active []string
		want   float64
	}{
		{"no signals", nil, 1},
		{"freeleech only", []string{"free"}, 0},
		{"sitewide beats half", []string{"50%", "sitewide-free"}, 0},
		{"neutral beats half", []string{"neutral", "50%"}, 0},
		{"half only", []string{"50%"}, 0.5},
		{"quarter only", []string{"25%"}, 0.25},
		{"unknown marker", []string{"shiny"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveVolumeFactor(tt.active, nil))
		})
	}
}

func TestResolveVolumeFactorCustomOrder(t *testing.T) {
	// Some sites rank per-row badges above the site banner; precedence is
	// definition data, not a global rule.
	order := []VolumeSignal{
		{Marker: "50%", Factor: 0.5},
		{Marker: "sitewide-free", Factor: 0},
	}
	assert.Equal(t, 0.5, ResolveVolumeFactor([]string{"sitewide-free", "50%"}, order))
}

func TestParseImdbID(t *testing.T) {
	assert.Equal(t, "tt0137523", ParseImdbID("tt0137523"))
	assert.Equal(t, "tt0137523", ParseImdbID("137523"))
	assert.Equal(t, "", ParseImdbID("n/a"))
}
