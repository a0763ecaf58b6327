// Package pipeline runs one conversational turn end to end: classify the message, ask for
// clarification or build a query, execute it through the result cache, check the outcome
// against the guardrail and compose the reply.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/malbeclabs/eventlens/pkg/composer"
	"github.com/malbeclabs/eventlens/pkg/fingerprint"
	"github.com/malbeclabs/eventlens/pkg/guardrail"
	"github.com/malbeclabs/eventlens/pkg/metrics"
	"github.com/malbeclabs/eventlens/pkg/querier"
)

const (
	msgNotSupported  = "Request not supported."
	msgBuilderFailed = "SQL Builder error"
	msgTurnFailed    = "Sorry, something went wrong while handling your request."
)

// Pipeline orchestrates the turn stages.
type Pipeline struct {
	log *slog.Logger
	cfg Config
}

// New creates a new Pipeline with the given configuration.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate pipeline config: %w", err)
	}
	return &Pipeline{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// HandleTurn answers one user message in the given session.
func (p *Pipeline) HandleTurn(ctx context.Context, sessionID, userText string) (*TurnResult, error) {
	return p.HandleTurnWithProgress(ctx, sessionID, userText, nil)
}

// HandleTurnWithProgress is HandleTurn with a callback invoked as each stage starts.
// Turns in the same session are serialized. The only errors returned are ErrEmptyQuestion
// and ErrTurnCancelled; every other failure is carried in the result's response.
func (p *Pipeline) HandleTurnWithProgress(ctx context.Context, sessionID, userText string, onProgress ProgressCallback) (*TurnResult, error) {
	text := strings.TrimSpace(userText)
	if text == "" {
		return nil, ErrEmptyQuestion
	}
	if onProgress == nil {
		onProgress = func(Progress) {}
	}

	sess := p.cfg.Sessions.Get(sessionID)
	sess.turn.Lock()
	defer sess.turn.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTurnCancelled, err)
	}

	p.log.Info("pipeline: turn started", "session", sessionID, "text_len", len(text))
	result, err := p.run(ctx, text, sess.History(), onProgress)
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("cancelled").Inc()
		p.log.Info("pipeline: turn cancelled", "session", sessionID, "error", err)
		return nil, err
	}

	sess.append(
		ConversationMessage{Role: RoleUser, Content: text},
		ConversationMessage{Role: RoleAssistant, Content: result.Response},
	)
	metrics.TurnsTotal.WithLabelValues(string(result.Outcome)).Inc()
	p.log.Info("pipeline: turn completed", "session", sessionID, "outcome", result.Outcome, "verdict", result.Verdict)
	onProgress(Progress{Stage: StageComplete})
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, text string, history []ConversationMessage, onProgress ProgressCallback) (result *TurnResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("pipeline: turn panicked", "panic", r)
			result = reply(&TurnResult{Outcome: OutcomeFailed}, msgTurnFailed)
			err = nil
		}
	}()

	dc := NewDateContext(p.cfg.Clock.Now(), p.cfg.Location)
	res := &TurnResult{}

	// Classify.
	onProgress(Progress{Stage: StageClassifying})
	done := observeStage(StageClassifying)
	intent, err := p.cfg.Classifier.Classify(ctx, ClassifyRequest{Text: text, DateContext: dc, History: history})
	done()
	if err := cancelled(ctx); err != nil {
		return nil, err
	}
	if err != nil {
		p.log.Warn("pipeline: classification failed", "error", err)
		intent = ClassifiedIntent{Status: IntentNotRelevant, Message: msgNotUnderstood}
	}
	res.Intent = &intent

	switch intent.Status {
	case IntentClarificationNeeded:
		res.Outcome = OutcomeClarification
		return reply(res, clarificationMessage(intent)), nil
	case IntentNotRelevant:
		res.Outcome = OutcomeNotRelevant
		return reply(res, orDefault(intent.Message, msgNotSupported)), nil
	case IntentError:
		res.Outcome = OutcomeClassifierError
		return reply(res, orDefault(intent.Message, msgNotSupported)), nil
	}

	if intent.IsAnomaly() && len(intent.DateRange.Dates()) == 0 {
		dr := p.cfg.AnomalyDefault
		intent.DateRange = &dr
		p.log.Debug("pipeline: anomaly without dates, using default range", "start", dr.StartDate, "end", dr.EndDate)
	}

	// Date rules are checked before anything is built or executed.
	dates := intent.DateRange.Dates()
	if verdict, date, ok := p.cfg.Guardrail.CheckDates(dates, dc.Today); ok {
		metrics.GuardrailVerdictsTotal.WithLabelValues(string(verdict)).Inc()
		p.log.Info("pipeline: date rejected", "verdict", verdict, "date", date)
		res.Outcome = OutcomeGuardrailRejected
		res.Verdict = verdict
		onProgress(Progress{Stage: StageComposing, Intent: intent.Intent})
		return reply(res, p.cfg.Composer.Compose(verdict, querier.Result{}, nil, date)), nil
	}

	// Build.
	onProgress(Progress{Stage: StageBuilding, Intent: intent.Intent})
	done = observeStage(StageBuilding)
	built, err := p.cfg.Builder.Build(ctx, intent)
	done()
	if err := cancelled(ctx); err != nil {
		return nil, err
	}
	if err != nil {
		p.log.Warn("pipeline: build failed", "error", err)
		built = querier.BuiltQuery{Status: querier.StatusError}
	}
	res.Query = &built
	if !built.OK() {
		res.Outcome = OutcomeBuildFailed
		return reply(res, orDefault(built.Message, msgBuilderFailed)), nil
	}

	var keyHint string
	if p.cfg.KeyMode == KeyModeIntent {
		keyHint = fingerprint.FromIntent(intent.IntentMap())
	}

	// Execute.
	onProgress(Progress{Stage: StageExecuting, Intent: intent.Intent, QueryText: built.QueryText})
	done = observeStage(StageExecuting)
	exec := p.cfg.Executor.Execute(ctx, built, keyHint)
	done()
	if err := cancelled(ctx); err != nil {
		return nil, err
	}
	res.Execution = &exec

	verdict := p.cfg.Guardrail.EvaluateRange(exec, dates, dc.Today)
	res.Verdict = verdict

	if intent.IsAnomaly() && verdict == guardrail.VerdictOK {
		onProgress(Progress{Stage: StageComposing, Intent: intent.Intent, RowCount: exec.RowCount})
		viz := BuildAnomalyVisualization(exec.Rows)
		summary := p.cfg.Composer.ComposeSummary(viz.Summary())
		res.Outcome = OutcomeAnomaly
		res.Response = summary
		res.Events = []Event{
			{Type: EventText, Text: summary},
			{Type: EventVisualization, Visualization: viz},
		}
		return res, nil
	}

	// Analyze.
	onProgress(Progress{Stage: StageAnalyzing, Intent: intent.Intent, QueryText: built.QueryText, RowCount: exec.RowCount, FromCache: exec.FromCache, Error: exec.Message})
	done = observeStage(StageAnalyzing)
	insight, err := p.cfg.Insights.Generate(ctx, InsightRequest{
		Status:        exec.Status,
		RowCount:      exec.RowCount,
		RenderedTable: exec.RenderedTable,
		ExecutedQuery: exec.ExecutedQuery,
		HasData:       verdict == guardrail.VerdictOK,
		Scalars:       exec.Rows.Scalars(),
	})
	done()
	if err := cancelled(ctx); err != nil {
		return nil, err
	}
	if err != nil {
		p.log.Warn("pipeline: insight generation failed", "error", err)
		insight = composer.Insight{}
	}
	res.Insight = &insight

	// Compose.
	onProgress(Progress{Stage: StageComposing, Intent: intent.Intent, RowCount: exec.RowCount})
	done = observeStage(StageComposing)
	text = p.cfg.Composer.Compose(verdict, exec, &insight, intent.DateRange.Requested())
	done()

	res.Outcome = OutcomeAnswered
	if verdict == guardrail.VerdictError {
		res.Outcome = OutcomeFailed
	}
	return reply(res, text), nil
}

func reply(res *TurnResult, text string) *TurnResult {
	res.Response = text
	res.Events = append(res.Events, Event{Type: EventText, Text: text})
	return res
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTurnCancelled, err)
	}
	return nil
}

func observeStage(stage ProgressStage) func() {
	start := time.Now()
	return func() {
		metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	}
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
