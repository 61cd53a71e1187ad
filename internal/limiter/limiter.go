package limiter

import (
	"context"
	"time"

	"github.com/23skdu/vdbload/internal/metrics"
	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration
type Config struct {
	RPS   int `default:"0"` // 0 means disabled
	Burst int `default:"0"` // 0 means use RPS
}

// RateLimiter caps outgoing requests with a token bucket. A nil or disabled
// limiter never blocks.
type RateLimiter struct {
	limiter *rate.Limiter
	enabled bool
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg Config) *RateLimiter {
	if cfg.RPS <= 0 {
		return &RateLimiter{enabled: false}
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RPS
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), burst),
		enabled: true,
	}
}

// Enabled reports whether requests are throttled.
func (l *RateLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Wait blocks until a request may be sent or ctx is done.
func (l *RateLimiter) Wait(ctx context.Context) error {
	if !l.Enabled() {
		return nil
	}
	start := time.Now()
	err := l.limiter.Wait(ctx)
	metrics.RateLimitWaitSeconds.Observe(time.Since(start).Seconds())
	return err
}
