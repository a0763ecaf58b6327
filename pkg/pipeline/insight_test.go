package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/malbeclabs/eventlens/pkg/composer"
	"github.com/malbeclabs/eventlens/pkg/querier"
	"github.com/stretchr/testify/require"
)

func TestPipeline_LLMInsightGenerator_Generate(t *testing.T) {
	t.Parallel()

	var input map[string]any
	llm := llmFunc(func(_ context.Context, _, user string) (string, error) {
		if err := json.Unmarshal([]byte(user), &input); err != nil {
			return "", err
		}
		return `Here you go:
{
  "summary": {"data_presence": "has_data"},
  "insights": {"key_points": ["Facebook led with 900 events."], "anomalies": [], "quality_notes": []},
  "next_steps": {
    "suggested_questions": ["q1", "q2", "q3", "q4"],
    "suggested_drilldowns": ["d1"]
  },
  "final_text": "Facebook drove most events."
}`, nil
	})
	g := NewLLMInsightGenerator(discardLogger(), llm, loadTestPrompts(t))

	insight, err := g.Generate(t.Context(), InsightRequest{
		Status:        querier.StatusOK,
		RowCount:      2,
		RenderedTable: "| media_source |",
		ExecutedQuery: "SELECT 1",
		HasData:       true,
		Scalars:       map[string]any{"media_source": "facebook"},
	})
	require.NoError(t, err)

	require.Equal(t, "ok", input["status"])
	require.Equal(t, true, input["has_data"])
	require.NotContains(t, input, "is_future_date")
	require.Equal(t, map[string]any{"media_source": "facebook"}, input["first_row"])

	require.Equal(t, composer.Insight{
		FinalText: "Facebook drove most events.",
		Presentation: composer.Presentation{Sections: []composer.Section{{
			Heading: "Key points",
			Style:   composer.StyleBullets,
			Bullets: []string{"Facebook led with 900 events."},
		}}},
		SuggestedQuestions: []string{"q1", "q2", "q3"},
		SuggestedNextSteps: []string{"d1"},
		DataPresence:       "has_data",
	}, insight)
}

func TestPipeline_LLMInsightGenerator_SoftFails(t *testing.T) {
	t.Parallel()

	llm := llmFunc(func(context.Context, string, string) (string, error) {
		return "The data shows lots of clicks.", nil
	})
	g := NewLLMInsightGenerator(discardLogger(), llm, loadTestPrompts(t))

	insight, err := g.Generate(t.Context(), InsightRequest{Status: querier.StatusOK})
	require.NoError(t, err)
	require.Equal(t, composer.Insight{}, insight)
}
