package querier

import (
	"errors"
	"log/slog"
	"time"
)

const defaultTimeout = 60 * time.Second

type Config struct {
	Logger    *slog.Logger
	Warehouse Warehouse
	Cache     Cache

	// Timeout bounds a single warehouse execution, including the cache round trips.
	Timeout time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Warehouse == nil {
		return errors.New("warehouse is required")
	}
	if c.Cache == nil {
		return errors.New("cache is required")
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	return nil
}
