package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestPipeline_ParseClassifyResponse(t *testing.T) {
	t.Parallel()

	ten := 10
	tests := []struct {
		name     string
		response string
		want     ClassifiedIntent
		wantErr  bool
	}{
		{
			name: "ok with fences",
			response: "```json\n" + `{"status": "ok", "parsed_intent": {"intent": "Find Top", "metric": "total_events",
				"dimensions": ["media_source"], "filters": {"app_id": "123"},
				"date_range": {"start_date": "2025-10-24", "end_date": "2025-10-25"}, "number_of_rows": "10"}}` + "\n```",
			want: ClassifiedIntent{
				Status:       IntentOK,
				Intent:       "find top",
				Metric:       "total_events",
				Dimensions:   []string{"media_source"},
				Filters:      map[string]any{"app_id": "123"},
				DateRange:    &DateRange{StartDate: "2025-10-24", EndDate: "2025-10-25"},
				NumberOfRows: &ten,
			},
		},
		{
			name:     "not relevant with a space",
			response: `{"status": "not relevant", "message": "Only click analytics."}`,
			want:     ClassifiedIntent{Status: IntentNotRelevant, Message: "Only click analytics."},
		},
		{
			name: "clarification with partial intent",
			response: `{"status": "clarification_needed", "missing_fields": ["metric"], "message": "Which metric?",
				"partial_intent": {"intent": "analytics", "invalid_fields": ["country"]}}`,
			want: ClassifiedIntent{
				Status:        IntentClarificationNeeded,
				Intent:        "analytics",
				MissingFields: []string{"metric"},
				InvalidFields: []string{"country"},
				Message:       "Which metric?",
			},
		},
		{
			name:     "empty date range is dropped",
			response: `{"status": "ok", "parsed_intent": {"intent": "anomaly", "date_range": {"start_date": "", "end_date": ""}}}`,
			want:     ClassifiedIntent{Status: IntentOK, Intent: "anomaly"},
		},
		{name: "unknown status", response: `{"status": "maybe"}`, wantErr: true},
		{name: "ok without intent", response: `{"status": "ok"}`, wantErr: true},
		{name: "not json", response: "I think you want clicks.", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseClassifyResponse(tt.response)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("unexpected intent (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPipeline_LLMClassifier_Classify(t *testing.T) {
	t.Parallel()

	dc := NewDateContext(time.Date(2025, 10, 25, 23, 30, 0, 0, time.UTC), time.UTC)
	history := []ConversationMessage{
		{Role: RoleUser, Content: "clicks yesterday"},
		{Role: RoleAssistant, Content: strings.Repeat("x", 600)},
	}

	var gotSystem, gotUser string
	llm := llmFunc(func(_ context.Context, system, user string) (string, error) {
		gotSystem, gotUser = system, user
		return `{"status": "ok", "parsed_intent": {"intent": "analytics", "metric": "total_events"}}`, nil
	})
	c := NewLLMClassifier(discardLogger(), llm, loadTestPrompts(t))

	intent, err := c.Classify(t.Context(), ClassifyRequest{Text: "and by media source?", DateContext: dc, History: history})
	require.NoError(t, err)
	require.Equal(t, IntentOK, intent.Status)

	require.Contains(t, gotSystem, "- today = 2025-10-25")
	require.Contains(t, gotSystem, "- yesterday = 2025-10-24")
	require.NotContains(t, gotSystem, dateDirectivePlaceholder)

	require.Contains(t, gotUser, "User: clicks yesterday\n")
	require.Contains(t, gotUser, "Assistant: "+strings.Repeat("x", 500)+"...\n")
	require.NotContains(t, gotUser, strings.Repeat("x", 501))
	require.True(t, strings.HasSuffix(gotUser, "Message to interpret: and by media source?"))
}

func TestPipeline_LLMClassifier_SoftFailsOnGarbage(t *testing.T) {
	t.Parallel()

	llm := llmFunc(func(context.Context, string, string) (string, error) {
		return "Sorry, I am not sure.", nil
	})
	c := NewLLMClassifier(discardLogger(), llm, loadTestPrompts(t))

	intent, err := c.Classify(t.Context(), ClassifyRequest{Text: "hmm"})
	require.NoError(t, err)
	require.Equal(t, IntentNotRelevant, intent.Status)
	require.Equal(t, "I couldn't understand the request.", intent.Message)
}

func TestPipeline_LLMClassifier_PropagatesLLMError(t *testing.T) {
	t.Parallel()

	llm := llmFunc(func(context.Context, string, string) (string, error) {
		return "", errors.New("rate limited")
	})
	c := NewLLMClassifier(discardLogger(), llm, loadTestPrompts(t))

	_, err := c.Classify(t.Context(), ClassifyRequest{Text: "clicks"})
	require.ErrorContains(t, err, "rate limited")
}

func TestPipeline_ClarificationMessage(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Could you give me a bit more detail?", clarificationMessage(ClassifiedIntent{}))
	require.Equal(t, "Which dates? Please tell me the date_range.",
		clarificationMessage(ClassifiedIntent{Message: "Which dates?", MissingFields: []string{"date_range"}}))
}
