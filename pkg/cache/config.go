package cache

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultTTL             = 300 * time.Second
	DefaultWarmupThreshold = 3
)

type Config struct {
	Logger *slog.Logger
	Store  Store
	Clock  clockwork.Clock

	// TTL bounds how long a saved result is served after it was last refreshed.
	TTL time.Duration

	// WarmupThreshold is the use count at which results start being saved. The count never
	// grows past it.
	WarmupThreshold int
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Store == nil {
		return errors.New("store is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.TTL < 0 {
		return errors.New("ttl must be positive")
	}
	if c.WarmupThreshold == 0 {
		c.WarmupThreshold = DefaultWarmupThreshold
	}
	if c.WarmupThreshold < 1 {
		return errors.New("warmup threshold must be at least 1")
	}
	return nil
}
