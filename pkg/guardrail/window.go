package guardrail

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// DateLayout is the only accepted calendar date format.
const DateLayout = time.DateOnly

// DateWindow is the set of calendar dates the warehouse holds data for: an inclusive
// [Start, End] range, plus any extra individual dates. A zero window supports every date.
type DateWindow struct {
	Start time.Time
	End   time.Time
	Dates []time.Time
}

// ParseDateWindow builds a window from YYYY-MM-DD strings. start and end may both be empty.
func ParseDateWindow(start, end string, dates ...string) (DateWindow, error) {
	var w DateWindow
	var err error
	if start != "" {
		if w.Start, err = ParseDate(start); err != nil {
			return DateWindow{}, fmt.Errorf("invalid window start: %w", err)
		}
	}
	if end != "" {
		if w.End, err = ParseDate(end); err != nil {
			return DateWindow{}, fmt.Errorf("invalid window end: %w", err)
		}
	}
	if (start == "") != (end == "") {
		return DateWindow{}, fmt.Errorf("window start and end must be set together")
	}
	if !w.Start.IsZero() && w.End.Before(w.Start) {
		return DateWindow{}, fmt.Errorf("window end %s is before start %s", end, start)
	}
	for _, d := range dates {
		t, err := ParseDate(d)
		if err != nil {
			return DateWindow{}, fmt.Errorf("invalid window date: %w", err)
		}
		w.Dates = append(w.Dates, t)
	}
	return w, nil
}

func (w DateWindow) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero() && len(w.Dates) == 0
}

// Contains reports whether d (a calendar date) is supported.
func (w DateWindow) Contains(d time.Time) bool {
	if w.IsZero() {
		return true
	}
	d = civil(d)
	if !w.Start.IsZero() && !d.Before(w.Start) && !d.After(w.End) {
		return true
	}
	return slices.ContainsFunc(w.Dates, func(x time.Time) bool { return x.Equal(d) })
}

func (w DateWindow) String() string {
	var parts []string
	if !w.Start.IsZero() {
		parts = append(parts, w.Start.Format(DateLayout)+".."+w.End.Format(DateLayout))
	}
	for _, d := range w.Dates {
		parts = append(parts, d.Format(DateLayout))
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, ",")
}

// ParseDate parses a YYYY-MM-DD string as a UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

// civil strips the time of day, keeping the calendar date in t's own location.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
