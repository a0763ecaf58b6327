package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/malbeclabs/eventlens/pkg/guardrail"
)

// DateContext anchors relative dates ("today", "yesterday") for one turn.
type DateContext struct {
	Today     time.Time
	Yesterday time.Time
	DayBefore time.Time
	Location  *time.Location
}

// NewDateContext computes the context for now in loc.
func NewDateContext(now time.Time, loc *time.Location) DateContext {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	return DateContext{
		Today:     today,
		Yesterday: today.AddDate(0, 0, -1),
		DayBefore: today.AddDate(0, 0, -2),
		Location:  loc,
	}
}

// Directive renders the date rules injected into the classifier prompt.
func (d DateContext) Directive() string {
	var sb strings.Builder
	sb.WriteString("## Current date\n\n")
	fmt.Fprintf(&sb, "Timezone: %s\n", d.Location)
	fmt.Fprintf(&sb, "- today = %s\n", d.Today.Format(guardrail.DateLayout))
	fmt.Fprintf(&sb, "- yesterday = %s\n", d.Yesterday.Format(guardrail.DateLayout))
	fmt.Fprintf(&sb, "- the day before yesterday = %s\n\n", d.DayBefore.Format(guardrail.DateLayout))
	fmt.Fprintf(&sb, "A date without a year is in %d. ", d.Today.Year())
	fmt.Fprintf(&sb, "Any date after %s is in the future.", d.Today.Format(guardrail.DateLayout))
	return sb.String()
}
