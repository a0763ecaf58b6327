package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/eventlens/pkg/cache"
	"github.com/malbeclabs/eventlens/pkg/composer"
	"github.com/malbeclabs/eventlens/pkg/guardrail"
	"github.com/malbeclabs/eventlens/pkg/pipeline"
	"github.com/malbeclabs/eventlens/pkg/querier"
	"github.com/malbeclabs/eventlens/pkg/warehouse"
)

// app is the wired set of components for one process.
type app struct {
	log      *slog.Logger
	store    cache.Store
	cache    *cache.Cache
	sessions *pipeline.SessionStore
	pipeline *pipeline.Pipeline

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("failed to close resource", "error", err)
		}
	}
}

// openStore opens the configured cache store. The returned closer is never nil.
func openStore(ctx context.Context, cfg *Config) (cache.Store, func() error, error) {
	switch cfg.CacheBackend {
	case backendPostgres:
		pool, err := cache.OpenPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		return cache.NewPostgresStore(pool), func() error { pool.Close(); return nil }, nil
	case backendRedis:
		client, err := cache.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return cache.NewRedisStore(client, ""), client.Close, nil
	default:
		return cache.NewMemoryStore(), func() error { return nil }, nil
	}
}

func openWarehouse(ctx context.Context, log *slog.Logger, cfg *Config) (querier.Warehouse, func() error, error) {
	switch cfg.Warehouse {
	case warehouseHTTP:
		return warehouse.NewHTTP(cfg.ClickhouseHTTPURL, &http.Client{Timeout: cfg.Settings.Warehouse.Timeout + 5*time.Second}), func() error { return nil }, nil
	case warehouseDuckDB:
		wh, err := warehouse.OpenDuckDB(ctx, cfg.DuckDBPath)
		if err != nil {
			return nil, nil, err
		}
		return wh, wh.Close, nil
	default:
		wh, err := warehouse.OpenClickHouse(ctx, warehouse.ClickHouseConfig{
			Logger:           log,
			Addr:             cfg.ClickhouseAddr,
			Database:         cfg.ClickhouseDB,
			Username:         cfg.ClickhouseUser,
			Password:         cfg.ClickhousePassword,
			MaxExecutionTime: int(cfg.Settings.Warehouse.Timeout.Seconds()),
		})
		if err != nil {
			return nil, nil, err
		}
		return wh, wh.Close, nil
	}
}

func newCache(log *slog.Logger, store cache.Store, s Settings) (*cache.Cache, error) {
	return cache.New(&cache.Config{
		Logger:          log,
		Store:           store,
		Clock:           clockwork.NewRealClock(),
		TTL:             s.Cache.TTL,
		WarmupThreshold: s.Cache.WarmupThreshold,
	})
}

// newApp wires the cache, the warehouse, the LLM stages and the orchestrator.
func newApp(ctx context.Context, log *slog.Logger, cfg *Config) (*app, error) {
	if cfg.AnthropicAPIKey == "" {
		return nil, errors.New("anthropic-api-key is required")
	}
	a := &app{log: log}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, closeStore)

	wh, closeWarehouse, err := openWarehouse(ctx, log, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}
	a.closers = append(a.closers, closeWarehouse)

	if a.cache, err = newCache(log, store, cfg.Settings); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	q, err := querier.New(querier.Config{
		Logger:    log,
		Warehouse: wh,
		Cache:     a.cache,
		Timeout:   cfg.Settings.Warehouse.Timeout,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create querier: %w", err)
	}

	prompts, err := pipeline.LoadPrompts()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}
	llm := pipeline.NewAnthropicLLMClient(log, anthropic.Model(cfg.Settings.LLM.Model), cfg.Settings.LLM.MaxTokens,
		option.WithAPIKey(cfg.AnthropicAPIKey))

	window, err := cfg.Settings.DataWindow.parse()
	if err != nil {
		a.Close()
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Settings.Timezone)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load timezone: %w", err)
	}

	a.sessions = pipeline.NewSessionStore(cfg.Settings.Session.TTL, cfg.Settings.Session.History)
	a.sessions.Start()
	a.closers = append(a.closers, func() error { a.sessions.Stop(); return nil })

	a.pipeline, err = pipeline.New(pipeline.Config{
		Logger:         log,
		Classifier:     pipeline.NewLLMClassifier(log, llm, prompts),
		Builder:        pipeline.NewLLMQueryBuilder(log, llm, prompts),
		Insights:       pipeline.NewLLMInsightGenerator(log, llm, prompts),
		Executor:       q,
		Guardrail:      guardrail.New(window),
		Composer:       composer.New(log),
		Sessions:       a.sessions,
		Location:       loc,
		AnomalyDefault: cfg.Settings.AnomalyDefault,
		KeyMode:        cfg.Settings.Cache.KeyMode,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	log.Info("eventlens ready",
		"cache_backend", cfg.CacheBackend,
		"warehouse", cfg.Warehouse,
		"model", cfg.Settings.LLM.Model,
		"data_window", window.String(),
		"key_mode", cfg.Settings.Cache.KeyMode,
	)
	return a, nil
}
