// Package ratelimit implements a fixed-window submission rate limiter on
// Redis, shared by every intake instance.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"gradex/internal/common/cache"
	"gradex/pkg/errors"
)

// Config holds limiter settings.
type Config struct {
	// Limit is the number of submissions allowed per window per candidate.
	Limit int64 `yaml:"limit"`

	// Window is the fixed window length.
	Window time.Duration `yaml:"window"`
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	if c.Limit <= 0 {
		c.Limit = 10
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
}

// Limiter counts submissions per candidate in Redis so the limit holds
// across intake instances.
type Limiter struct {
	cache cache.Cache
	cfg   Config
}

// NewLimiter creates a limiter.
func NewLimiter(cacheClient cache.Cache, cfg Config) *Limiter {
	cfg.SetDefaults()
	return &Limiter{cache: cacheClient, cfg: cfg}
}

// Allow consumes one submission slot for the candidate. Returns
// SubmitTooFrequently when the window is spent.
func (l *Limiter) Allow(ctx context.Context, candidateID int64) error {
	key := fmt.Sprintf("ratelimit:submit:%d", candidateID)
	count, err := l.cache.Incr(ctx, key)
	if err != nil {
		// A broken limiter must not block submissions.
		return nil
	}
	if count == 1 {
		_ = l.cache.Expire(ctx, key, l.cfg.Window)
	}
	if count > l.cfg.Limit {
		return errors.New(errors.SubmitTooFrequently)
	}
	return nil
}
