// Package parseutil provides tolerant parsing helpers for scraped tracker
// content: spelled-out sizes, localized counters, fuzzy dates and
// freeleech/volume-factor markers.
package parseutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ParseSize converts a size string ("1.4 GB", "734,003,200", "600 MiB") to
// bytes. Unparseable input yields 0.
func ParseSize(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	if n, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64); err == nil {
		return n
	}

	// Normalize spellings humanize does not accept.
	cleaned := strings.ReplaceAll(s, ",", "")
	cleaned = strings.TrimSuffix(cleaned, "ytes")
	if n, err := humanize.ParseBytes(cleaned); err == nil {
		return int64(n)
	}
	return 0
}

// ParseInt extracts an integer from a scraped cell, tolerating thousand
// separators and surrounding text. Missing or malformed values yield 0.
func ParseInt(s string) int {
	return int(ParseInt64(s))
}

var numberRe = regexp.MustCompile(`-?\d+`)

// ParseInt64 behaves like ParseInt for 64-bit values.
func ParseInt64(s string) int64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if m := numberRe.FindString(s); m != "" {
		n, _ := strconv.ParseInt(m, 10, 64)
		return n
	}
	return 0
}

// ParseFloat extracts a float, tolerating separators and a trailing percent
// or multiplier marker.
func ParseFloat(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	s = strings.TrimSuffix(strings.TrimSuffix(s, "%"), "x")
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

var (
	agoRe       = regexp.MustCompile(`(?i)\bago\b`)
	todayRe     = regexp.MustCompile(`(?i)\btoday\b[\s,]*(?:at\s*)?`)
	yesterdayRe = regexp.MustCompile(`(?i)\byesterday\b[\s,]*(?:at\s*)?`)
	spanRe      = regexp.MustCompile(`([\d.]+)\s*([a-zA-Z]+)`)
)

var absoluteLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04",
	"02.01.2006 15:04:05",
	"Jan 02 2006 15:04:05",
	"Jan 02 2006",
	"Jan 2 2006",
	"02 Jan 2006",
	"January 2, 2006",
	"2006-01-02T15:04:05",
}

// ParseFuzzyTime parses absolute and relative date strings as trackers
// render them: RFC layouts, unix timestamps, "2 hours ago", "Today 14:02",
// "Yesterday". Relative values are resolved against now.
func ParseFuzzyTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}

	if allDigits(s) {
		if stamp, err := strconv.ParseInt(s, 10, 64); err == nil {
			if stamp > 1e12 { // milliseconds
				return time.UnixMilli(stamp).UTC(), nil
			}
			return time.Unix(stamp, 0).UTC(), nil
		}
	}

	if strings.EqualFold(s, "now") {
		return now, nil
	}

	if agoRe.MatchString(s) {
		return fromTimeAgo(s, now)
	}

	if m := todayRe.FindString(s); m != "" {
		return atDayTime(strings.Replace(s, m, "", 1), now, 0)
	}
	if m := yesterdayRe.FindString(s); m != "" {
		return atDayTime(strings.Replace(s, m, "", 1), now, -1)
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			// Layouts without a year parse into year 0; backfill the
			// current year the way tracker listings imply it.
			if t.Year() == 0 {
				t = t.AddDate(now.Year(), 0, 0)
				if t.After(now) {
					t = t.AddDate(-1, 0, 0)
				}
			}
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date string %q", s)
}

// fromTimeAgo handles compound spans such as "1 day 2 hours ago".
func fromTimeAgo(s string, now time.Time) (time.Time, error) {
	var total time.Duration
	matched := false

	for _, m := range spanRe.FindAllStringSubmatch(s, -1) {
		val, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		unit := strings.ToLower(m[2])
		switch {
		case strings.HasPrefix(unit, "sec") || unit == "s":
			total += time.Duration(val * float64(time.Second))
		case strings.HasPrefix(unit, "min") || unit == "m":
			total += time.Duration(val * float64(time.Minute))
		case strings.HasPrefix(unit, "hour") || strings.HasPrefix(unit, "hr") || unit == "h":
			total += time.Duration(val * float64(time.Hour))
		case strings.HasPrefix(unit, "day") || unit == "d":
			total += time.Duration(val * 24 * float64(time.Hour))
		case strings.HasPrefix(unit, "week") || strings.HasPrefix(unit, "wk") || unit == "w":
			total += time.Duration(val * 7 * 24 * float64(time.Hour))
		case strings.HasPrefix(unit, "month") || unit == "mo":
			total += time.Duration(val * 30 * 24 * float64(time.Hour))
		case strings.HasPrefix(unit, "year") || unit == "y":
			total += time.Duration(val * 365 * 24 * float64(time.Hour))
		case unit == "ago" || unit == "and":
			continue
		default:
			return time.Time{}, fmt.Errorf("unknown time-ago unit %q", unit)
		}
		matched = true
	}

	if !matched {
		return time.Time{}, fmt.Errorf("no spans found in %q", s)
	}
	return now.Add(-total), nil
}

func atDayTime(rest string, now time.Time, dayOffset int) (time.Time, error) {
	day := now.AddDate(0, 0, dayOffset)
	base := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())

	rest = strings.TrimSpace(rest)
	if rest == "" {
		return base, nil
	}
	for _, layout := range []string{"15:04:05", "15:04", "3:04 PM", "3:04pm"} {
		if t, err := time.Parse(layout, rest); err == nil {
			return base.Add(time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second), nil
		}
	}
	return base, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Tiebreaker assigns strictly decreasing sub-second offsets to releases
// that parse to the same instant within one response, so descending date
// order stays deterministic across runs. Rows parsed to distinct instants
// keep their real timestamps, whatever order the site lists them in.
type Tiebreaker struct {
	last    time.Time
	step    time.Duration
	pending time.Duration
}

// NewTiebreaker returns a Tiebreaker with a 1ms separation step.
func NewTiebreaker() *Tiebreaker {
	return &Tiebreaker{step: time.Millisecond}
}

// Next returns t, nudged just below the previous return value when t parses
// to the same instant as the previous input.
func (tb *Tiebreaker) Next(t time.Time) time.Time {
	if !tb.last.IsZero() && t.Equal(tb.last) {
		tb.pending += tb.step
		return t.Add(-tb.pending)
	}
	tb.last = t
	tb.pending = 0
	return t
}

// VolumeSignal is one freeleech/discount marker a site row can carry.
type VolumeSignal struct {
	// Marker identifies the signal, e.g. "sitewide-free", "neutral", "50%".
	Marker string
	// Factor is the volume factor the signal implies when present.
	Factor float64
}

// DefaultVolumeOrder is the precedence used when a definition does not
// configure its own: a site-wide freeleech banner beats neutral-leech
// markers, which beat percentage discount badges.
var DefaultVolumeOrder = []VolumeSignal{
	{Marker: "sitewide-free", Factor: 0},
	{Marker: "free", Factor: 0},
	{Marker: "neutral", Factor: 0},
	{Marker: "25%", Factor: 0.25},
	{Marker: "50%", Factor: 0.5},
	{Marker: "75%", Factor: 0.75},
}

// ResolveVolumeFactor resolves possibly multiple simultaneous discount
// signals on one row to a single factor. The precedence slice is ordered;
// the first signal present in active wins. No active signal means neutral.
func ResolveVolumeFactor(active []string, precedence []VolumeSignal) float64 {
	if len(precedence) == 0 {
		precedence = DefaultVolumeOrder
	}
	set := make(map[string]bool, len(active))
	for _, a := range active {
		set[strings.ToLower(strings.TrimSpace(a))] = true
	}
	for _, sig := range precedence {
		if set[strings.ToLower(sig.Marker)] {
			return sig.Factor
		}
	}
	return 1
}

// ParseImdbID normalizes an IMDb identifier to the "tt"-prefixed form.
// Returns the empty string when no numeric id can be found.
func ParseImdbID(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimPrefix(s, "tt")
	n := ParseInt(s)
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("tt%07d", n)
}
