package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/eventlens/pkg/cache"
	"github.com/malbeclabs/eventlens/pkg/pipeline"
	"github.com/malbeclabs/eventlens/pkg/rowset"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEventlens_LoadSettings_Defaults(t *testing.T) {
	t.Parallel()

	s, err := loadSettings("")
	require.NoError(t, err)
	require.Equal(t, "Asia/Jerusalem", s.Timezone)
	require.Equal(t, pipeline.DefaultAnomalyRange, s.AnomalyDefault)
	require.Equal(t, cache.DefaultTTL, s.Cache.TTL)
	require.Equal(t, cache.DefaultWarmupThreshold, s.Cache.WarmupThreshold)
	require.Equal(t, pipeline.KeyModeQuery, s.Cache.KeyMode)
	require.Equal(t, 60*time.Second, s.Warehouse.Timeout)
	require.Equal(t, defaultModel, s.LLM.Model)

	w, err := s.DataWindow.parse()
	require.NoError(t, err)
	require.True(t, w.IsZero())
}

func TestEventlens_LoadSettings_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "eventlens.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timezone: UTC
data_window:
  start: "2025-10-24"
  end: "2025-10-26"
  dates: ["2025-09-30"]
anomaly_default:
  start_date: "2025-10-25"
  end_date: "2025-10-26"
cache:
  ttl: 10m
  warmup_threshold: 2
  key_mode: intent
warehouse:
  timeout: 30s
llm:
  model: claude-sonnet-4-5
  max_tokens: 4096
session:
  ttl: 1h
  history: 6
`), 0o644))

	s, err := loadSettings(path)
	require.NoError(t, err)
	require.Equal(t, "UTC", s.Timezone)
	require.Equal(t, pipeline.DateRange{StartDate: "2025-10-25", EndDate: "2025-10-26"}, s.AnomalyDefault)
	require.Equal(t, 10*time.Minute, s.Cache.TTL)
	require.Equal(t, 2, s.Cache.WarmupThreshold)
	require.Equal(t, pipeline.KeyModeIntent, s.Cache.KeyMode)
	require.Equal(t, 30*time.Second, s.Warehouse.Timeout)
	require.Equal(t, "claude-sonnet-4-5", s.LLM.Model)
	require.Equal(t, int64(4096), s.LLM.MaxTokens)
	require.Equal(t, time.Hour, s.Session.TTL)
	require.Equal(t, 6, s.Session.History)

	w, err := s.DataWindow.parse()
	require.NoError(t, err)
	require.Equal(t, "2025-10-24..2025-10-26,2025-09-30", w.String())
}

func TestEventlens_LoadSettings_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"key mode":  "cache:\n  key_mode: sql\n",
		"window":    "data_window:\n  start: \"2025-10-24\"\n",
		"timezone":  "timezone: Mars/Olympus\n",
		"threshold": "cache:\n  warmup_threshold: -1\n",
		"yaml":      "cache: [",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "eventlens.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := loadSettings(path)
			require.Error(t, err)
		})
	}

	_, err := loadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "failed to read settings file")
}

func TestEventlens_BindFlags_EnvDefaults(t *testing.T) {
	t.Setenv("EVENTLENS_CACHE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CLICKHOUSE_ADDR", "ch:9000")
	t.Setenv("METRICS_ADDR", "")

	cfg := &Config{}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	bindFlags(fs, cfg)
	require.NoError(t, fs.Parse([]string{"--warehouse", "duckdb"}))

	require.Equal(t, "redis", cfg.CacheBackend)
	require.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	require.Equal(t, "ch:9000", cfg.ClickhouseAddr)
	require.Equal(t, "duckdb", cfg.Warehouse)
	require.Empty(t, cfg.MetricsAddr, "metrics are off unless an address is given")
	require.NoError(t, cfg.Validate())
}

func TestEventlens_Config_Validate(t *testing.T) {
	t.Parallel()

	require.EqualError(t, (&Config{CacheBackend: "memcached", Warehouse: warehouseClickHouse}).Validate(),
		"invalid cache backend: memcached (must be memory, postgres or redis)")
	require.EqualError(t, (&Config{CacheBackend: backendPostgres, Warehouse: warehouseClickHouse}).Validate(),
		"postgres-url is required for the postgres cache backend")
	require.EqualError(t, (&Config{CacheBackend: backendRedis, Warehouse: warehouseClickHouse}).Validate(),
		"redis-url is required for the redis cache backend")
	require.EqualError(t, (&Config{CacheBackend: backendMemory, Warehouse: "bigquery"}).Validate(),
		"invalid warehouse: bigquery (must be clickhouse, http or duckdb)")
}

type fakeTurns struct {
	questions []string
}

func (f *fakeTurns) HandleTurnWithProgress(_ context.Context, _ string, text string, _ pipeline.ProgressCallback) (*pipeline.TurnResult, error) {
	f.questions = append(f.questions, text)
	if text == "stop" {
		return nil, pipeline.ErrTurnCancelled
	}
	viz := pipeline.BuildAnomalyVisualization(nil)
	return &pipeline.TurnResult{
		Response: "answer to " + text,
		Events: []pipeline.Event{
			{Type: pipeline.EventText, Text: "answer to " + text},
			{Type: pipeline.EventVisualization, Visualization: viz},
		},
	}, nil
}

func TestEventlens_ChatLoop(t *testing.T) {
	t.Parallel()

	h := &fakeTurns{}
	var out bytes.Buffer
	err := chatLoop(t.Context(), h, "s1", strings.NewReader("clicks today\n\n  \nspikes?\nquit\nignored\n"), &out)
	require.NoError(t, err)
	require.Equal(t, []string{"clicks today", "spikes?"}, h.questions)
	require.Contains(t, out.String(), "answer to clicks today\n")
	require.Contains(t, out.String(), "[AnomalyVisualizationDashboard] {")

	h = &fakeTurns{}
	require.NoError(t, chatLoop(t.Context(), h, "s1", strings.NewReader("stop\nnever\n"), io.Discard))
	require.Equal(t, []string{"stop"}, h.questions)
}

func TestEventlens_ShowEntry(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 10, 25, 12, 0, 0, 0, time.UTC)
	store := cache.NewMemoryStore()
	c, err := cache.New(&cache.Config{Logger: discardLogger(), Store: store, Clock: clockwork.NewFakeClockAt(now)})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, showEntry(t.Context(), &out, c, "SELECT a FROM t", now))
	require.Equal(t, "no cache entry for \"SELECT a FROM t\"\n", out.String())

	exec := func(context.Context, string) (*rowset.Set, error) {
		return rowset.New([]string{"a"}, []rowset.Row{{"a": int64(7)}}), nil
	}
	for range 3 {
		_, _, err := c.RunOrCache(t.Context(), "SELECT a FROM t", "SELECT a FROM t", exec)
		require.NoError(t, err)
	}

	out.Reset()
	require.NoError(t, showEntry(t.Context(), &out, c, "SELECT a FROM t", now.Add(90*time.Second)))
	got := out.String()
	require.Contains(t, got, "use_count")
	require.Contains(t, got, "2025-10-25T12:00:00.000Z")
	require.Contains(t, got, "1m30s")
	require.Contains(t, got, "servable")
	require.Contains(t, got, "1 cached rows")
}
