// Package querier executes built queries through the result cache and shapes the outcome for
// the guardrail and composer.
package querier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/malbeclabs/eventlens/pkg/cache"
	"github.com/malbeclabs/eventlens/pkg/fingerprint"
	"github.com/malbeclabs/eventlens/pkg/metrics"
	"github.com/malbeclabs/eventlens/pkg/rowset"
)

type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

const (
	msgNotExecutable = "SQL cannot be executed because status is not ok."
	msgNoQuery       = "No SQL found in built query."
	msgTimeout       = "The query took too long to run. Try narrowing the date range."
)

// BuiltQuery is the output of the query builder.
type BuiltQuery struct {
	Status    Status
	QueryText string
	Message   string
}

func (b BuiltQuery) OK() bool {
	return b.Status == StatusOK && b.QueryText != ""
}

// Result is the outcome of executing a built query.
type Result struct {
	Status        Status
	Rows          *rowset.Set
	RowCount      int
	RenderedTable string
	ExecutedQuery string
	FromCache     bool
	Message       string
}

func (r Result) OK() bool {
	return r.Status == StatusOK
}

// ErrorResult builds a failed result carrying msg.
func ErrorResult(queryText, msg string) Result {
	return Result{Status: StatusError, ExecutedQuery: queryText, Message: msg}
}

type Warehouse interface {
	Execute(ctx context.Context, sql string) (*rowset.Set, error)
}

type Cache interface {
	RunOrCache(ctx context.Context, key, queryText string, exec cache.ExecuteFunc) (*rowset.Set, bool, error)
}

type Querier struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Querier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate querier config: %w", err)
	}
	return &Querier{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// Execute runs built through the cache. It never returns a Go error: every failure is carried
// in the result's status and message.
func (q *Querier) Execute(ctx context.Context, built BuiltQuery, keyHint string) Result {
	if built.Status != StatusOK {
		msg := built.Message
		if msg == "" {
			msg = msgNotExecutable
		}
		return ErrorResult("", msg)
	}
	if built.QueryText == "" {
		return ErrorResult("", msgNoQuery)
	}

	key := keyHint
	if key == "" {
		key = fingerprint.Build(built.QueryText, nil, "")
	}

	ctx, cancel := context.WithTimeout(ctx, q.cfg.Timeout)
	defer cancel()

	rows, fromCache, err := q.cfg.Cache.RunOrCache(ctx, key, built.QueryText, q.execute)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			q.log.Warn("querier: query timed out", "timeout", q.cfg.Timeout)
			return ErrorResult(built.QueryText, msgTimeout)
		}
		q.log.Warn("querier: query failed", "error", err)
		return ErrorResult(built.QueryText, fmt.Sprintf("Query execution error: %v", err))
	}
	if rows == nil {
		rows = rowset.New(nil, nil)
	}

	q.log.Info("querier: query completed", "rows", rows.Len(), "from_cache", fromCache)

	return Result{
		Status:        StatusOK,
		Rows:          rows,
		RowCount:      rows.Len(),
		RenderedTable: rows.Markdown(),
		ExecutedQuery: built.QueryText,
		FromCache:     fromCache,
	}
}

// execute calls the warehouse, converting panics into errors.
func (q *Querier) execute(ctx context.Context, sql string) (rows *rowset.Set, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("warehouse panic: %v", r)
		}
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.WarehouseQueryDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}()

	q.log.Debug("querier: executing query", "sql", sql)
	return q.cfg.Warehouse.Execute(ctx, sql)
}
