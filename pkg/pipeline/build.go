package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/malbeclabs/eventlens/pkg/querier"
)

const (
	msgInvalidBuilderJSON = "Invalid JSON from builder"
	msgEmptyBuilderSQL    = "No SQL found in built query."
)

// LLMQueryBuilder implements QueryBuilder with an LLM.
type LLMQueryBuilder struct {
	log     *slog.Logger
	llm     LLMClient
	prompts *Prompts
}

func NewLLMQueryBuilder(log *slog.Logger, llm LLMClient, prompts *Prompts) *LLMQueryBuilder {
	return &LLMQueryBuilder{log: log, llm: llm, prompts: prompts}
}

// Build asks the LLM for a query answering intent. Unparsable output yields an error status.
func (b *LLMQueryBuilder) Build(ctx context.Context, intent ClassifiedIntent) (querier.BuiltQuery, error) {
	payload, err := json.Marshal(intent.IntentMap())
	if err != nil {
		return querier.BuiltQuery{}, fmt.Errorf("failed to encode intent: %w", err)
	}

	response, err := b.llm.Complete(ctx, b.prompts.Build, fmt.Sprintf("Intent:\n%s", payload))
	if err != nil {
		return querier.BuiltQuery{}, fmt.Errorf("LLM completion failed: %w", err)
	}

	built, err := parseBuildResponse(response)
	if err != nil {
		b.log.Info("pipeline: build parse failed", "error", err)
		return querier.BuiltQuery{Status: querier.StatusError, Message: msgInvalidBuilderJSON}, nil
	}
	return built, nil
}

type buildResponse struct {
	Status  string  `json:"status"`
	SQL     *string `json:"sql"`
	Message *string `json:"message"`
}

func parseBuildResponse(response string) (querier.BuiltQuery, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return querier.BuiltQuery{}, fmt.Errorf("no JSON found in response")
	}

	var resp buildResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return querier.BuiltQuery{}, fmt.Errorf("failed to parse JSON: %w", err)
	}

	out := querier.BuiltQuery{Status: querier.StatusError}
	if strings.EqualFold(strings.TrimSpace(resp.Status), string(querier.StatusOK)) {
		out.Status = querier.StatusOK
	}
	if resp.SQL != nil {
		out.QueryText = strings.TrimRight(strings.TrimSpace(*resp.SQL), "; \n\t")
	}
	if resp.Message != nil {
		out.Message = strings.TrimSpace(*resp.Message)
	}
	if out.Status == querier.StatusOK && out.QueryText == "" {
		out.Status = querier.StatusError
		if out.Message == "" {
			out.Message = msgEmptyBuilderSQL
		}
	}
	return out, nil
}
