package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps entries in the cached_queries table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// OpenPostgres connects a pool and verifies it with a ping.
func OpenPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

// Exec satisfies Execer so the store can run its own migrations.
func (s *PostgresStore) Exec(ctx context.Context, sql string) error {
	_, err := s.pool.Exec(ctx, sql)
	return err
}

func (s *PostgresStore) Load(ctx context.Context, key string) (*Entry, error) {
	var e Entry
	err := s.pool.QueryRow(ctx, `
		SELECT intent_key, sql, result, last_updated, use_count
		FROM cached_queries
		WHERE intent_key = $1
	`, key).Scan(&e.Key, &e.QueryText, &e.SerializedRows, &e.LastUpdated, &e.UseCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entry: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) IncrementCapped(ctx context.Context, key, queryText string, limit int) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO cached_queries (intent_key, sql, use_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (intent_key) DO UPDATE SET
			use_count = LEAST(cached_queries.use_count + 1, $3::integer),
			sql = EXCLUDED.sql
		RETURNING use_count
	`, key, queryText, limit).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment use count: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) SaveResult(ctx context.Context, key, queryText string, rows []byte, at time.Time, limit int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cached_queries (intent_key, sql, result, last_updated, use_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (intent_key) DO UPDATE SET
			sql = EXCLUDED.sql,
			result = EXCLUDED.result,
			last_updated = EXCLUDED.last_updated,
			use_count = EXCLUDED.use_count
	`, key, queryText, string(rows), at.UTC(), limit)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}
