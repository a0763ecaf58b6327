package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	CacheResultHit  = "hit"
	CacheResultMiss = "miss"
	CacheResultSkip = "skip"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventlens_build_info",
			Help: "Build information of eventlens",
		},
		[]string{"version", "commit", "date"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventlens_cache_lookups_total",
			Help: "Total number of result cache lookups by outcome",
		},
		[]string{"result"},
	)

	CacheSavesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventlens_cache_saves_total",
			Help: "Total number of result sets persisted to the cache",
		},
	)

	CacheStoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventlens_cache_store_errors_total",
			Help: "Total number of cache store failures by operation",
		},
		[]string{"op"},
	)

	WarehouseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventlens_warehouse_query_duration_seconds",
			Help:    "Duration of warehouse queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventlens_stage_duration_seconds",
			Help:    "Duration of orchestrator stages in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventlens_turns_total",
			Help: "Total number of handled turns by terminal outcome",
		},
		[]string{"outcome"},
	)

	GuardrailVerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventlens_guardrail_verdicts_total",
			Help: "Total number of guardrail verdicts",
		},
		[]string{"verdict"},
	)

	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventlens_llm_requests_total",
			Help: "Total number of LLM completion requests",
		},
		[]string{"status"},
	)
)
