package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/malbeclabs/eventlens/pkg/composer"
	"github.com/malbeclabs/eventlens/pkg/guardrail"
	"github.com/malbeclabs/eventlens/pkg/querier"
)

var (
	// ErrTurnCancelled is returned when the caller's context ends before the turn completes.
	ErrTurnCancelled = errors.New("turn cancelled")

	// ErrEmptyQuestion is returned for a blank user message.
	ErrEmptyQuestion = errors.New("empty question")
)

// LLMClient is the interface for interacting with an LLM.
type LLMClient interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Classifier interprets a user message into a structured intent.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (ClassifiedIntent, error)
}

// QueryBuilder turns a classified intent into an executable query.
type QueryBuilder interface {
	Build(ctx context.Context, intent ClassifiedIntent) (querier.BuiltQuery, error)
}

// InsightGenerator produces the structured insight object the composer renders.
type InsightGenerator interface {
	Generate(ctx context.Context, req InsightRequest) (composer.Insight, error)
}

// Executor runs a built query through the result cache.
type Executor interface {
	Execute(ctx context.Context, built querier.BuiltQuery, keyHint string) querier.Result
}

// ConversationMessage represents a single message in conversation history.
type ConversationMessage struct {
	Role    string // "user" or "assistant"
	Content string
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type IntentStatus string

const (
	IntentOK                  IntentStatus = "ok"
	IntentClarificationNeeded IntentStatus = "clarification_needed"
	IntentNotRelevant         IntentStatus = "not_relevant"
	IntentError               IntentStatus = "error"
)

const intentAnomaly = "anomaly"

// DateRange is an inclusive range of YYYY-MM-DD dates.
type DateRange struct {
	StartDate string `json:"start_date" yaml:"start_date"`
	EndDate   string `json:"end_date" yaml:"end_date"`
}

// Dates returns the non-empty bounds of the range.
func (r *DateRange) Dates() []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, d := range []string{r.StartDate, r.EndDate} {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// Requested returns the date a user-facing message should name: the start, or the end if the
// start is missing.
func (r *DateRange) Requested() string {
	if d := r.Dates(); len(d) > 0 {
		return d[0]
	}
	return ""
}

// ClassifiedIntent is the classifier's output.
type ClassifiedIntent struct {
	Status        IntentStatus
	Intent        string
	Metric        string
	Dimensions    []string
	Filters       map[string]any
	DateRange     *DateRange
	MissingFields []string
	InvalidFields []string
	NumberOfRows  *int
	Message       string
}

func (i ClassifiedIntent) IsAnomaly() bool {
	return strings.EqualFold(strings.TrimSpace(i.Intent), intentAnomaly)
}

// IntentMap renders the intent fields that identify a query, for the builder prompt and for
// intent-keyed caching.
func (i ClassifiedIntent) IntentMap() map[string]any {
	m := map[string]any{
		"intent": i.Intent,
		"metric": i.Metric,
	}
	if len(i.Dimensions) > 0 {
		dims := make([]any, len(i.Dimensions))
		for j, d := range i.Dimensions {
			dims[j] = d
		}
		m["dimensions"] = dims
	}
	if len(i.Filters) > 0 {
		m["filters"] = i.Filters
	}
	if i.DateRange != nil {
		m["date_range"] = map[string]any{
			"start_date": i.DateRange.StartDate,
			"end_date":   i.DateRange.EndDate,
		}
	}
	if i.NumberOfRows != nil {
		m["number_of_rows"] = *i.NumberOfRows
	}
	return m
}

// ClassifyRequest is the classifier input for one turn.
type ClassifyRequest struct {
	Text        string
	DateContext DateContext
	History     []ConversationMessage
}

// InsightRequest is the insight generator input for one turn.
type InsightRequest struct {
	Status        querier.Status
	RowCount      int
	RenderedTable string
	ExecutedQuery string
	HasData       bool
	Scalars       map[string]any
}

type Outcome string

const (
	OutcomeClarification     Outcome = "clarification"
	OutcomeNotRelevant       Outcome = "not_relevant"
	OutcomeClassifierError   Outcome = "classifier_error"
	OutcomeGuardrailRejected Outcome = "guardrail_rejected"
	OutcomeBuildFailed       Outcome = "build_failed"
	OutcomeAnomaly           Outcome = "anomaly"
	OutcomeAnswered          Outcome = "answered"
	OutcomeFailed            Outcome = "failed"
)

type EventType string

const (
	EventText          EventType = "text"
	EventVisualization EventType = "visualization"
)

// Event is one item the caller streams to the user: text, or a visualization payload.
type Event struct {
	Type          EventType
	Text          string
	Visualization *Visualization
}

// TurnResult is the outcome of a single turn.
type TurnResult struct {
	Response  string
	Outcome   Outcome
	Intent    *ClassifiedIntent
	Query     *querier.BuiltQuery
	Execution *querier.Result
	Verdict   guardrail.Verdict
	Insight   *composer.Insight
	Events    []Event
}

// ProgressStage represents a stage in the turn.
type ProgressStage string

const (
	StageClassifying ProgressStage = "classifying"
	StageBuilding    ProgressStage = "building"
	StageExecuting   ProgressStage = "executing"
	StageAnalyzing   ProgressStage = "analyzing"
	StageComposing   ProgressStage = "composing"
	StageComplete    ProgressStage = "complete"
)

// Progress represents the current state of the turn.
type Progress struct {
	Stage     ProgressStage
	Intent    string
	QueryText string
	RowCount  int
	FromCache bool
	Error     string
}

// ProgressCallback is called at each stage of the turn.
type ProgressCallback func(Progress)
