// Package guardrail decides, before any text is written, which kind of answer a turn may give.
//
// Rules are applied in a fixed order and the first match wins: a future date, a date outside
// the data window, a failed execution, an empty or placeholder result, and finally ok.
package guardrail

import (
	"strings"
	"time"

	"github.com/malbeclabs/eventlens/pkg/metrics"
	"github.com/malbeclabs/eventlens/pkg/querier"
	"github.com/malbeclabs/eventlens/pkg/rowset"
)

type Verdict string

const (
	VerdictFutureDate      Verdict = "future_date"
	VerdictUnsupportedDate Verdict = "unsupported_date"
	VerdictError           Verdict = "error"
	VerdictNoData          Verdict = "no_data"
	VerdictOK              Verdict = "ok"
)

type Guardrail struct {
	window DateWindow
}

func New(window DateWindow) *Guardrail {
	return &Guardrail{window: window}
}

func (g *Guardrail) Window() DateWindow {
	return g.window
}

// Evaluate classifies an execution result for a single requested date. An empty requested
// date skips the date rules.
func (g *Guardrail) Evaluate(res querier.Result, requestedDate string, today time.Time) Verdict {
	var dates []string
	if strings.TrimSpace(requestedDate) != "" {
		dates = []string{requestedDate}
	}
	return g.EvaluateRange(res, dates, today)
}

// EvaluateRange is Evaluate for a set of requested dates, typically the two bounds of a range.
func (g *Guardrail) EvaluateRange(res querier.Result, dates []string, today time.Time) Verdict {
	v := g.evaluate(res, dates, today)
	metrics.GuardrailVerdictsTotal.WithLabelValues(string(v)).Inc()
	return v
}

func (g *Guardrail) evaluate(res querier.Result, dates []string, today time.Time) Verdict {
	if v, _, ok := g.CheckDates(dates, today); ok {
		return v
	}
	if !res.OK() {
		return VerdictError
	}
	if res.RowCount == 0 {
		return VerdictNoData
	}
	if res.Rows != nil && res.Rows.IsPlaceholder() {
		return VerdictNoData
	}
	if res.Rows == nil && rowset.IsPlaceholderTable(res.RenderedTable) {
		return VerdictNoData
	}
	return VerdictOK
}

// CheckDates applies only the date rules. It reports the verdict, the offending date and
// whether a date rule matched. Every date is checked for the future before any is checked
// against the window, so a future bound always wins. When dates are the two bounds of a range,
// every day in between must be in the window too.
func (g *Guardrail) CheckDates(dates []string, today time.Time) (Verdict, string, bool) {
	today = civil(today)

	for _, s := range dates {
		if strings.TrimSpace(s) == "" {
			continue
		}
		if d, err := ParseDate(s); err == nil && d.After(today) {
			return VerdictFutureDate, strings.TrimSpace(s), true
		}
	}
	for _, s := range dates {
		if strings.TrimSpace(s) == "" {
			continue
		}
		d, err := ParseDate(s)
		if err != nil || !g.window.Contains(d) {
			return VerdictUnsupportedDate, strings.TrimSpace(s), true
		}
	}
	// Both bounds are supported, but a window with gaps can still miss a day between them.
	if start, end, ok := rangeBounds(dates); ok && !g.window.IsZero() {
		for d := start.AddDate(0, 0, 1); d.Before(end); d = d.AddDate(0, 0, 1) {
			if !g.window.Contains(d) {
				return VerdictUnsupportedDate, d.Format(DateLayout), true
			}
		}
	}
	return "", "", false
}

// rangeBounds reports the start and end of dates when it holds exactly two ordered dates.
func rangeBounds(dates []string) (time.Time, time.Time, bool) {
	var days []time.Time
	for _, s := range dates {
		if strings.TrimSpace(s) == "" {
			continue
		}
		d, err := ParseDate(s)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		days = append(days, d)
	}
	if len(days) != 2 || !days[0].Before(days[1]) {
		return time.Time{}, time.Time{}, false
	}
	return days[0], days[1], true
}
