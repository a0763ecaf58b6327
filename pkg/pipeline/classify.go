package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

const (
	msgNotUnderstood      = "I couldn't understand the request."
	maxAssistantHistory   = 500
	defaultClarifyMessage = "Could you give me a bit more detail?"
)

// LLMClassifier implements Classifier with an LLM.
type LLMClassifier struct {
	log     *slog.Logger
	llm     LLMClient
	prompts *Prompts
}

func NewLLMClassifier(log *slog.Logger, llm LLMClient, prompts *Prompts) *LLMClassifier {
	return &LLMClassifier{log: log, llm: llm, prompts: prompts}
}

// Classify interprets req.Text with the conversation history for context. A response that
// cannot be parsed is reported as not relevant rather than as an error.
func (c *LLMClassifier) Classify(ctx context.Context, req ClassifyRequest) (ClassifiedIntent, error) {
	response, err := c.llm.Complete(ctx, c.prompts.classifyPrompt(req.DateContext), classifyUserPrompt(req.Text, req.History))
	if err != nil {
		return ClassifiedIntent{}, fmt.Errorf("LLM completion failed: %w", err)
	}

	intent, err := parseClassifyResponse(response)
	if err != nil {
		c.log.Info("pipeline: classify parse failed", "error", err)
		return ClassifiedIntent{Status: IntentNotRelevant, Message: msgNotUnderstood}, nil
	}
	return intent, nil
}

func classifyUserPrompt(text string, history []ConversationMessage) string {
	if len(history) == 0 {
		return fmt.Sprintf("Message to interpret: %s", text)
	}

	var sb strings.Builder
	sb.WriteString("Previous conversation:\n")
	for _, msg := range history {
		if msg.Role == RoleUser {
			fmt.Fprintf(&sb, "User: %s\n", msg.Content)
		} else {
			fmt.Fprintf(&sb, "Assistant: %s\n", truncateString(msg.Content, maxAssistantHistory))
		}
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Message to interpret: %s", text)
	return sb.String()
}

type classifyResponse struct {
	Status        string         `json:"status"`
	ParsedIntent  *intentPayload `json:"parsed_intent"`
	PartialIntent *intentPayload `json:"partial_intent"`
	MissingFields []string       `json:"missing_fields"`
	Message       string         `json:"message"`
}

type intentPayload struct {
	Intent        string         `json:"intent"`
	Metric        string         `json:"metric"`
	Dimensions    []string       `json:"dimensions"`
	Filters       map[string]any `json:"filters"`
	InvalidFields []string       `json:"invalid_fields"`
	DateRange     *DateRange     `json:"date_range"`
	NumberOfRows  any            `json:"number_of_rows"`
}

func parseClassifyResponse(response string) (ClassifiedIntent, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return ClassifiedIntent{}, fmt.Errorf("no JSON found in response")
	}

	var resp classifyResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return ClassifiedIntent{}, fmt.Errorf("failed to parse JSON: %w", err)
	}

	out := ClassifiedIntent{
		Status:        normalizeIntentStatus(resp.Status),
		MissingFields: resp.MissingFields,
		Message:       strings.TrimSpace(resp.Message),
	}

	payload := resp.ParsedIntent
	if payload == nil {
		payload = resp.PartialIntent
	}
	if payload != nil {
		out.Intent = strings.ToLower(strings.TrimSpace(payload.Intent))
		out.Metric = strings.TrimSpace(payload.Metric)
		out.Dimensions = payload.Dimensions
		out.Filters = payload.Filters
		out.InvalidFields = payload.InvalidFields
		if payload.DateRange != nil && len(payload.DateRange.Dates()) > 0 {
			out.DateRange = payload.DateRange
		}
		if n, ok := toFloat(payload.NumberOfRows); ok && n > 0 {
			rows := int(n)
			out.NumberOfRows = &rows
		}
	}

	switch out.Status {
	case IntentOK, IntentClarificationNeeded, IntentNotRelevant, IntentError:
	default:
		return ClassifiedIntent{}, fmt.Errorf("invalid status: %q", resp.Status)
	}
	if out.Status == IntentOK && payload == nil {
		return ClassifiedIntent{}, fmt.Errorf("status ok without parsed_intent")
	}
	return out, nil
}

func normalizeIntentStatus(s string) IntentStatus {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	return IntentStatus(s)
}

// clarificationMessage asks for the missing and invalid fields, after the classifier's own
// wording when it gave one.
func clarificationMessage(intent ClassifiedIntent) string {
	var parts []string
	if intent.Message != "" {
		parts = append(parts, intent.Message)
	}
	if len(intent.MissingFields) > 0 {
		parts = append(parts, fmt.Sprintf("Please tell me the %s.", strings.Join(intent.MissingFields, ", ")))
	}
	if len(intent.InvalidFields) > 0 {
		parts = append(parts, fmt.Sprintf("These fields are not available: %s.", strings.Join(intent.InvalidFields, ", ")))
	}
	if len(parts) == 0 {
		return defaultClarifyMessage
	}
	return strings.Join(parts, " ")
}
