package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v5"

	"github.com/malbeclabs/eventlens/pkg/metrics"
)

const defaultMaxTries = 4

// AnthropicLLMClient implements LLMClient using the Anthropic API.
type AnthropicLLMClient struct {
	log       *slog.Logger
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	maxTries  uint
	backOff   func() backoff.BackOff
}

// NewAnthropicLLMClient creates a new Anthropic-based LLM client. Retries are handled here
// with exponential backoff, so the SDK's own retries are disabled.
func NewAnthropicLLMClient(log *slog.Logger, model anthropic.Model, maxTokens int64, opts ...option.RequestOption) *AnthropicLLMClient {
	opts = append([]option.RequestOption{option.WithMaxRetries(0)}, opts...)
	return &AnthropicLLMClient{
		log:       log,
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		maxTries:  defaultMaxTries,
		backOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

// Complete sends a prompt to Claude and returns the response text.
func (c *AnthropicLLMClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	c.log.Debug("llm: request starting", "model", c.model, "max_tokens", c.maxTokens, "user_prompt_len", len(userPrompt))

	text, err := backoff.Retry(ctx, func() (string, error) {
		msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     c.model,
			MaxTokens: c.maxTokens,
			System: []anthropic.TextBlockParam{
				{Type: "text", Text: systemPrompt},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
			},
		})
		if err != nil {
			if !retryable(err) {
				return "", backoff.Permanent(err)
			}
			c.log.Warn("llm: transient error, retrying", "error", err)
			return "", err
		}
		for _, block := range msg.Content {
			if block.Type == "text" {
				return block.Text, nil
			}
		}
		return "", backoff.Permanent(errors.New("no text content in response"))
	}, backoff.WithBackOff(c.backOff()), backoff.WithMaxTries(c.maxTries))

	duration := time.Since(start)
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues("error").Inc()
		c.log.Error("llm: request failed", "duration", duration, "error", err)
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	metrics.LLMRequestsTotal.WithLabelValues("ok").Inc()
	c.log.Debug("llm: request completed", "duration", duration)
	return text, nil
}

// retryable reports whether err is a rate limit, an overload or a server error.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}
