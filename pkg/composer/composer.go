// Package composer renders the final answer text for a turn from the guardrail verdict, the
// execution result and the insight object.
package composer

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/malbeclabs/eventlens/pkg/guardrail"
	"github.com/malbeclabs/eventlens/pkg/querier"
	"github.com/malbeclabs/eventlens/pkg/rowset"
)

const (
	FutureDateMessage = "Future dates are not supported because no events have occurred yet."
	FallbackMessage   = "Sorry, something went wrong while formatting the response."

	maxFollowUps  = 3
	maxNextSteps  = 3
	minNextSteps  = 2
	followUpTitle = "You might also ask:"
	nextStepTitle = "You could try:"
)

var defaultNextSteps = []string{
	"Try a different date within the available range.",
	"Remove one of the filters to widen the search.",
	"Ask for the top results by media source instead.",
}

type Composer struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Composer {
	return &Composer{log: log}
}

// Compose renders the answer. It never panics; any failure yields FallbackMessage.
func (c *Composer) Compose(verdict guardrail.Verdict, res querier.Result, insight *Insight, requestedDate string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("composer: failed to render response", "verdict", verdict, "panic", r)
			out = FallbackMessage
		}
	}()

	if insight == nil {
		insight = &Insight{}
	}

	switch verdict {
	case guardrail.VerdictFutureDate:
		return FutureDateMessage
	case guardrail.VerdictUnsupportedDate:
		return sanitize(UnsupportedDateMessage(requestedDate))
	case guardrail.VerdictError, guardrail.VerdictNoData:
		return sanitize(c.composeNoData(verdict, insight))
	case guardrail.VerdictOK:
		return sanitize(c.composeOK(res, insight))
	}
	return FallbackMessage
}

// ComposeSummary renders a precomputed summary, such as the anomaly dashboard caption, under
// the same rules as Compose. Values pulled from warehouse rows can carry table syntax.
func (c *Composer) ComposeSummary(summary string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("composer: failed to render summary", "panic", r)
			out = FallbackMessage
		}
	}()
	if out = sanitize(summary); out == "" {
		return FallbackMessage
	}
	return out
}

// UnsupportedDateMessage names the requested date only; the supported window is never shown.
func UnsupportedDateMessage(date string) string {
	date = strings.TrimSpace(date)
	if date == "" {
		return "There is no data available for the requested date. Please try a different date."
	}
	return fmt.Sprintf("There is no data available for %s. Please try a different date.", date)
}

func (c *Composer) composeNoData(verdict guardrail.Verdict, insight *Insight) string {
	var b builder
	if sections := insight.sections(); len(sections) > 0 {
		b.title(insight.Presentation.Title)
		for _, s := range sections {
			b.section(s)
		}
	} else {
		if verdict == guardrail.VerdictError {
			b.paragraph("I couldn't retrieve data for this request.")
		} else {
			b.paragraph("No data was found for this request.")
		}
		b.list(nextStepTitle, nextSteps(insight.SuggestedNextSteps))
	}
	b.list(followUpTitle, limit(insight.SuggestedQuestions, maxFollowUps))
	return b.String()
}

func (c *Composer) composeOK(res querier.Result, insight *Insight) string {
	var b builder
	b.title(insight.Presentation.Title)
	for _, s := range insight.sections() {
		b.section(s)
	}
	if insight.Presentation.ShowTable {
		if fields := res.Rows.FirstRow(); len(fields) > 0 {
			lines := make([]string, 0, len(fields))
			for _, f := range fields {
				lines = append(lines, fmt.Sprintf("%s: %s", f.Column, displayValue(f.Value)))
			}
			b.paragraph(strings.Join(lines, "\n"))
		}
	}
	b.paragraph(insight.FinalText)
	b.list(followUpTitle, limit(insight.SuggestedQuestions, maxFollowUps))

	if b.Len() == 0 {
		return "Here is what I found."
	}
	return b.String()
}

func (i *Insight) sections() []Section {
	var out []Section
	for _, s := range i.Presentation.Sections {
		if !s.empty() {
			out = append(out, s)
		}
	}
	return out
}

func nextSteps(suggested []string) []string {
	steps := limit(suggested, maxNextSteps)
	for _, d := range defaultNextSteps {
		if len(steps) >= minNextSteps {
			break
		}
		steps = append(steps, d)
	}
	return steps
}

func limit(items []string, n int) []string {
	items = nonEmpty(items)
	if len(items) > n {
		items = items[:n]
	}
	return items
}

func nonEmpty(items []string) []string {
	var out []string
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func displayValue(v any) string {
	s := rowset.FormatValue(v)
	if s == "None" {
		return "n/a"
	}
	return s
}
