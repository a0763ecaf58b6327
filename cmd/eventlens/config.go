package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/malbeclabs/eventlens/pkg/cache"
	"github.com/malbeclabs/eventlens/pkg/guardrail"
	"github.com/malbeclabs/eventlens/pkg/pipeline"
)

const (
	defaultModel      = "claude-haiku-4-5-20251001"
	defaultMaxTokens  = 2048
	defaultTimezone   = "Asia/Jerusalem"
	defaultQueryTO    = 60 * time.Second
	defaultSessionTTL = 30 * time.Minute
	defaultHistory    = 10

	backendMemory   = "memory"
	backendPostgres = "postgres"
	backendRedis    = "redis"

	warehouseClickHouse = "clickhouse"
	warehouseHTTP       = "http"
	warehouseDuckDB     = "duckdb"
)

// Config holds the process configuration: flags and environment first, then the optional
// settings file for domain tuning.
type Config struct {
	Verbose      bool
	MetricsAddr  string
	SettingsPath string

	CacheBackend string
	PostgresURL  string
	RedisURL     string

	Warehouse          string
	ClickhouseAddr     string
	ClickhouseDB       string
	ClickhouseUser     string
	ClickhousePassword string
	ClickhouseHTTPURL  string
	DuckDBPath         string

	AnthropicAPIKey string

	Settings Settings
}

// Settings is the YAML settings file.
type Settings struct {
	Timezone       string             `yaml:"timezone"`
	DataWindow     DataWindow         `yaml:"data_window"`
	AnomalyDefault pipeline.DateRange `yaml:"anomaly_default"`
	Cache          CacheSettings      `yaml:"cache"`
	Warehouse      WarehouseSettings  `yaml:"warehouse"`
	LLM            LLMSettings        `yaml:"llm"`
	Session        SessionSettings    `yaml:"session"`
}

// DataWindow is the range of dates the warehouse holds data for. Empty means unrestricted.
type DataWindow struct {
	Start string   `yaml:"start"`
	End   string   `yaml:"end"`
	Dates []string `yaml:"dates"`
}

type CacheSettings struct {
	TTL             time.Duration    `yaml:"ttl"`
	WarmupThreshold int              `yaml:"warmup_threshold"`
	KeyMode         pipeline.KeyMode `yaml:"key_mode"`
}

type WarehouseSettings struct {
	Timeout time.Duration `yaml:"timeout"`
}

type LLMSettings struct {
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
}

type SessionSettings struct {
	TTL     time.Duration `yaml:"ttl"`
	History int           `yaml:"history"`
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

// bindFlags registers the process flags on fs, with environment variables as defaults.
func bindFlags(fs *flag.FlagSet, cfg *Config) {
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", getenvBool("EVENTLENS_VERBOSE"), "verbose mode - show debug logs (env: EVENTLENS_VERBOSE)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", getenv("METRICS_ADDR", ""), "address for prometheus metrics, empty to disable (env: METRICS_ADDR)")
	fs.StringVar(&cfg.SettingsPath, "config", getenv("EVENTLENS_CONFIG", ""), "path to the YAML settings file (env: EVENTLENS_CONFIG)")

	fs.StringVar(&cfg.CacheBackend, "cache-backend", getenv("EVENTLENS_CACHE_BACKEND", backendMemory), "result cache store: memory, postgres or redis (env: EVENTLENS_CACHE_BACKEND)")
	fs.StringVar(&cfg.PostgresURL, "postgres-url", getenv("POSTGRES_URL", ""), "postgres connection URL for the cache (env: POSTGRES_URL)")
	fs.StringVar(&cfg.RedisURL, "redis-url", getenv("REDIS_URL", ""), "redis connection URL for the cache (env: REDIS_URL)")

	fs.StringVar(&cfg.Warehouse, "warehouse", getenv("EVENTLENS_WAREHOUSE", warehouseClickHouse), "event warehouse: clickhouse, http or duckdb (env: EVENTLENS_WAREHOUSE)")
	fs.StringVar(&cfg.ClickhouseAddr, "clickhouse-addr", getenv("CLICKHOUSE_ADDR", "localhost:9000"), "clickhouse native address (env: CLICKHOUSE_ADDR)")
	fs.StringVar(&cfg.ClickhouseDB, "clickhouse-db", getenv("CLICKHOUSE_DB", "default"), "clickhouse database (env: CLICKHOUSE_DB)")
	fs.StringVar(&cfg.ClickhouseUser, "clickhouse-user", getenv("CLICKHOUSE_USER", "default"), "clickhouse username (env: CLICKHOUSE_USER)")
	fs.StringVar(&cfg.ClickhousePassword, "clickhouse-password", getenv("CLICKHOUSE_PASS", ""), "clickhouse password (env: CLICKHOUSE_PASS)")
	fs.StringVar(&cfg.ClickhouseHTTPURL, "clickhouse-http-url", getenv("CLICKHOUSE_HTTP_URL", "http://localhost:8123"), "clickhouse HTTP interface URL (env: CLICKHOUSE_HTTP_URL)")
	fs.StringVar(&cfg.DuckDBPath, "duckdb-path", getenv("DUCKDB_PATH", ""), "duckdb database file, empty for in-memory (env: DUCKDB_PATH)")

	fs.StringVar(&cfg.AnthropicAPIKey, "anthropic-api-key", getenv("ANTHROPIC_API_KEY", ""), "anthropic API key (env: ANTHROPIC_API_KEY)")
}

// Validate checks the flag values and loads the settings file.
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case backendMemory:
	case backendPostgres:
		if c.PostgresURL == "" {
			return errors.New("postgres-url is required for the postgres cache backend")
		}
	case backendRedis:
		if c.RedisURL == "" {
			return errors.New("redis-url is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory, postgres or redis)", c.CacheBackend)
	}

	switch c.Warehouse {
	case warehouseClickHouse, warehouseHTTP, warehouseDuckDB:
	default:
		return fmt.Errorf("invalid warehouse: %s (must be clickhouse, http or duckdb)", c.Warehouse)
	}

	settings, err := loadSettings(c.SettingsPath)
	if err != nil {
		return err
	}
	c.Settings = settings
	return nil
}

// loadSettings reads the settings file at path, or returns defaults for an empty path.
func loadSettings(path string) (Settings, error) {
	var s Settings
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("failed to read settings file: %w", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, fmt.Errorf("failed to parse settings file: %w", err)
		}
	}
	if err := s.applyDefaults(); err != nil {
		return Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

func (s *Settings) applyDefaults() error {
	if s.Timezone == "" {
		s.Timezone = defaultTimezone
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", s.Timezone, err)
	}
	if _, err := s.DataWindow.parse(); err != nil {
		return err
	}
	if len(s.AnomalyDefault.Dates()) == 0 {
		s.AnomalyDefault = pipeline.DefaultAnomalyRange
	}
	if s.Cache.TTL == 0 {
		s.Cache.TTL = cache.DefaultTTL
	}
	if s.Cache.WarmupThreshold == 0 {
		s.Cache.WarmupThreshold = cache.DefaultWarmupThreshold
	}
	if s.Cache.WarmupThreshold < 1 {
		return fmt.Errorf("cache.warmup_threshold must be positive, got %d", s.Cache.WarmupThreshold)
	}
	switch s.Cache.KeyMode {
	case "":
		s.Cache.KeyMode = pipeline.KeyModeQuery
	case pipeline.KeyModeQuery, pipeline.KeyModeIntent:
	default:
		return fmt.Errorf("invalid cache.key_mode: %q", s.Cache.KeyMode)
	}
	if s.Warehouse.Timeout == 0 {
		s.Warehouse.Timeout = defaultQueryTO
	}
	if s.LLM.Model == "" {
		s.LLM.Model = defaultModel
	}
	if s.LLM.MaxTokens == 0 {
		s.LLM.MaxTokens = defaultMaxTokens
	}
	if s.Session.TTL == 0 {
		s.Session.TTL = defaultSessionTTL
	}
	if s.Session.History == 0 {
		s.Session.History = defaultHistory
	}
	return nil
}

func (w DataWindow) parse() (guardrail.DateWindow, error) {
	if w.Start == "" && w.End == "" && len(w.Dates) == 0 {
		return guardrail.DateWindow{}, nil
	}
	dw, err := guardrail.ParseDateWindow(w.Start, w.End, w.Dates...)
	if err != nil {
		return guardrail.DateWindow{}, fmt.Errorf("invalid data_window: %w", err)
	}
	return dw, nil
}
