package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/eventlens/pkg/composer"
)

const (
	maxSuggestedQuestions = 3
	maxSuggestedNextSteps = 3
	keyPointsHeading      = "Key points"
)

// LLMInsightGenerator implements InsightGenerator with an LLM.
type LLMInsightGenerator struct {
	log     *slog.Logger
	llm     LLMClient
	prompts *Prompts
}

func NewLLMInsightGenerator(log *slog.Logger, llm LLMClient, prompts *Prompts) *LLMInsightGenerator {
	return &LLMInsightGenerator{log: log, llm: llm, prompts: prompts}
}

// Generate returns the structured insight for an executed query. Unparsable output yields an
// empty insight, which the composer replaces with its own templates.
func (g *LLMInsightGenerator) Generate(ctx context.Context, req InsightRequest) (composer.Insight, error) {
	payload, err := json.MarshalIndent(insightInput{
		Status:        string(req.Status),
		RowCount:      req.RowCount,
		HasData:       req.HasData,
		ExecutedQuery: req.ExecutedQuery,
		Table:         req.RenderedTable,
		FirstRow:      req.Scalars,
	}, "", "  ")
	if err != nil {
		return composer.Insight{}, fmt.Errorf("failed to encode insight input: %w", err)
	}

	response, err := g.llm.Complete(ctx, g.prompts.Insight, string(payload))
	if err != nil {
		return composer.Insight{}, fmt.Errorf("LLM completion failed: %w", err)
	}

	insight, err := parseInsightResponse(response)
	if err != nil {
		g.log.Info("pipeline: insight parse failed", "error", err)
		return composer.Insight{}, nil
	}
	return insight, nil
}

type insightInput struct {
	Status        string         `json:"status"`
	RowCount      int            `json:"row_count"`
	HasData       bool           `json:"has_data"`
	ExecutedQuery string         `json:"executed_query"`
	Table         string         `json:"table"`
	FirstRow      map[string]any `json:"first_row,omitempty"`
}

type insightResponse struct {
	Summary struct {
		DataPresence string `json:"data_presence"`
	} `json:"summary"`
	Insights struct {
		KeyPoints    []string `json:"key_points"`
		Anomalies    []string `json:"anomalies"`
		QualityNotes []string `json:"quality_notes"`
	} `json:"insights"`
	NextSteps struct {
		SuggestedQuestions  []string `json:"suggested_questions"`
		SuggestedDrilldowns []string `json:"suggested_drilldowns"`
	} `json:"next_steps"`
	Presentation composer.Presentation `json:"presentation"`
	FinalText    string                `json:"final_text"`
}

func parseInsightResponse(response string) (composer.Insight, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return composer.Insight{}, fmt.Errorf("no JSON found in response")
	}

	var resp insightResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return composer.Insight{}, fmt.Errorf("failed to parse JSON: %w", err)
	}

	pres := resp.Presentation
	if len(pres.Sections) == 0 && len(resp.Insights.KeyPoints) > 0 {
		pres.Sections = []composer.Section{{
			Heading: keyPointsHeading,
			Style:   composer.StyleBullets,
			Bullets: resp.Insights.KeyPoints,
		}}
	}

	return composer.Insight{
		FinalText:          resp.FinalText,
		Presentation:       pres,
		SuggestedQuestions: head(resp.NextSteps.SuggestedQuestions, maxSuggestedQuestions),
		SuggestedNextSteps: head(resp.NextSteps.SuggestedDrilldowns, maxSuggestedNextSteps),
		DataPresence:       resp.Summary.DataPresence,
	}, nil
}

func head(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
