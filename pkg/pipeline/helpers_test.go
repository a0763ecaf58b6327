package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type llmFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

func (f llmFunc) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}

func loadTestPrompts(t *testing.T) *Prompts {
	t.Helper()
	p, err := LoadPrompts()
	require.NoError(t, err)
	return p
}
