package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/require"
)

const messageResponse = `{
  "id": "msg_01",
  "type": "message",
  "role": "assistant",
  "model": "claude-sonnet-4-5",
  "content": [{"type": "text", "text": "{\"status\": \"ok\"}"}],
  "stop_reason": "end_turn",
  "stop_sequence": null,
  "usage": {"input_tokens": 10, "output_tokens": 5}
}`

func newTestAnthropicClient(t *testing.T, handler http.HandlerFunc) *AnthropicLLMClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewAnthropicLLMClient(discardLogger(), anthropic.ModelClaudeHaiku4_5_20251001, 256,
		option.WithBaseURL(srv.URL), option.WithAPIKey("test-key"))
	c.backOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return c
}

func writeError(w http.ResponseWriter, status int, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"type": "error", "error": {"type": %q, "message": "test"}}`, kind)
}

func TestPipeline_AnthropicLLMClient_RetriesTransientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestAnthropicClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		if calls.Add(1) < 3 {
			writeError(w, 529, "overloaded_error")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(messageResponse))
	})

	text, err := c.Complete(t.Context(), "system", "user")
	require.NoError(t, err)
	require.Equal(t, `{"status": "ok"}`, text)
	require.Equal(t, int32(3), calls.Load())
}

func TestPipeline_AnthropicLLMClient_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestAnthropicClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeError(w, http.StatusBadRequest, "invalid_request_error")
	})

	_, err := c.Complete(t.Context(), "system", "user")
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())

	var apiErr *anthropic.Error
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestPipeline_AnthropicLLMClient_GivesUpAfterMaxTries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestAnthropicClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeError(w, http.StatusTooManyRequests, "rate_limit_error")
	})

	_, err := c.Complete(t.Context(), "system", "user")
	require.Error(t, err)
	require.Equal(t, int32(defaultMaxTries), calls.Load())
}

func TestPipeline_Retryable(t *testing.T) {
	t.Parallel()

	require.True(t, retryable(&anthropic.Error{StatusCode: http.StatusTooManyRequests}))
	require.True(t, retryable(&anthropic.Error{StatusCode: http.StatusBadGateway}))
	require.False(t, retryable(&anthropic.Error{StatusCode: http.StatusUnauthorized}))
	require.False(t, retryable(context.Canceled))
	require.True(t, retryable(errors.New("connection reset by peer")))
}
