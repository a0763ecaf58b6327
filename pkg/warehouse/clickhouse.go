// Package warehouse executes SQL against the event warehouse and returns ordered result sets.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/malbeclabs/eventlens/pkg/rowset"
)

const (
	defaultDialTimeout      = 5 * time.Second
	defaultMaxExecutionTime = 60
)

// Querier is the subset of a ClickHouse connection used to run queries.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
}

type ClickHouseConfig struct {
	Logger   *slog.Logger
	Addr     string
	Database string
	Username string
	Password string

	// MaxExecutionTime is the server-side limit in seconds.
	MaxExecutionTime int
}

func (c *ClickHouseConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.Database == "" {
		c.Database = "default"
	}
	if c.Username == "" {
		c.Username = "default"
	}
	if c.MaxExecutionTime == 0 {
		c.MaxExecutionTime = defaultMaxExecutionTime
	}
	return nil
}

// ClickHouse runs queries over the native protocol.
type ClickHouse struct {
	log   *slog.Logger
	conn  Querier
	close func() error
}

// NewClickHouse wraps an existing connection.
func NewClickHouse(log *slog.Logger, conn Querier) *ClickHouse {
	return &ClickHouse{log: log, conn: conn, close: func() error { return nil }}
}

// OpenClickHouse dials the server and verifies it with a ping.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouse, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": cfg.MaxExecutionTime,
		},
		DialTimeout: defaultDialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	cfg.Logger.Info("warehouse: clickhouse connected", "addr", cfg.Addr, "database", cfg.Database)

	return &ClickHouse{log: cfg.Logger, conn: conn, close: conn.Close}, nil
}

func (c *ClickHouse) Close() error {
	return c.close()
}

func (c *ClickHouse) Execute(ctx context.Context, sql string) (*rowset.Set, error) {
	rows, err := c.conn.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

func scanRows(rows driver.Rows) (*rowset.Set, error) {
	columns := rows.Columns()
	types := rows.ColumnTypes()

	var out []rowset.Row
	for rows.Next() {
		dest := make([]any, len(columns))
		for i := range dest {
			dest[i] = scanTarget(types, i)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(rowset.Row, len(columns))
		for i, col := range columns {
			row[col] = reflect.ValueOf(dest[i]).Elem().Interface()
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return rowset.New(columns, out), nil
}

// scanTarget allocates a pointer to the column's scan type, falling back to *any when the
// driver reports no type information.
func scanTarget(types []driver.ColumnType, i int) any {
	if i < len(types) && types[i] != nil {
		if st := types[i].ScanType(); st != nil {
			return reflect.New(st).Interface()
		}
	}
	var v any
	return &v
}
