package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/eventlens/pkg/composer"
	"github.com/malbeclabs/eventlens/pkg/guardrail"
)

// KeyMode selects how cache keys are derived for built queries.
type KeyMode string

const (
	// KeyModeQuery keys the cache by the whitespace-normalized query text.
	KeyModeQuery KeyMode = "query"
	// KeyModeIntent keys the cache by the canonical classified intent, so differently worded
	// SQL for the same intent shares an entry.
	KeyModeIntent KeyMode = "intent"
)

const defaultTimezone = "Asia/Jerusalem"

// DefaultAnomalyRange is used for anomaly questions that name no dates.
var DefaultAnomalyRange = DateRange{StartDate: "2025-10-24", EndDate: "2025-10-26"}

type Config struct {
	Logger     *slog.Logger
	Classifier Classifier
	Builder    QueryBuilder
	Insights   InsightGenerator
	Executor   Executor
	Guardrail  *guardrail.Guardrail
	Composer   *composer.Composer
	Sessions   *SessionStore
	Clock      clockwork.Clock

	// Location resolves "today" for the date directive and the future-date rule.
	Location *time.Location

	AnomalyDefault DateRange
	KeyMode        KeyMode
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Classifier == nil {
		return errors.New("classifier is required")
	}
	if c.Builder == nil {
		return errors.New("builder is required")
	}
	if c.Insights == nil {
		return errors.New("insights is required")
	}
	if c.Executor == nil {
		return errors.New("executor is required")
	}
	if c.Guardrail == nil {
		c.Guardrail = guardrail.New(guardrail.DateWindow{})
	}
	if c.Composer == nil {
		c.Composer = composer.New(c.Logger)
	}
	if c.Sessions == nil {
		c.Sessions = NewSessionStore(defaultSessionTTL, defaultHistoryLimit)
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Location == nil {
		loc, err := time.LoadLocation(defaultTimezone)
		if err != nil {
			return fmt.Errorf("failed to load default timezone %s: %w", defaultTimezone, err)
		}
		c.Location = loc
	}
	if len(c.AnomalyDefault.Dates()) == 0 {
		c.AnomalyDefault = DefaultAnomalyRange
	}
	switch c.KeyMode {
	case "":
		c.KeyMode = KeyModeQuery
	case KeyModeQuery, KeyModeIntent:
	default:
		return fmt.Errorf("invalid key mode: %q", c.KeyMode)
	}
	return nil
}
