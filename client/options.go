package client

import (
	"net/http"
	"time"

	"github.com/23skdu/vdbload/internal/limiter"
	"go.uber.org/zap"
)

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	httpClient   *http.Client
	timeout      time.Duration
	insecureTLS  bool
	maxConns     int
	limiter      *limiter.RateLimiter
	logger       *zap.Logger
	maxErrorBody int
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{
		timeout:      60 * time.Second,
		maxConns:     64,
		logger:       zap.NewNop(),
		maxErrorBody: 512,
	}
}

// WithHTTPClient replaces the HTTP client; timeout, TLS and pool options are ignored.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *clientConfig) {
		cfg.httpClient = c
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) {
		cfg.timeout = d
	}
}

// WithInsecureTLS disables server certificate verification.
func WithInsecureTLS(insecure bool) Option {
	return func(cfg *clientConfig) {
		cfg.insecureTLS = insecure
	}
}

// WithMaxConnsPerHost sizes the idle connection pool, normally to the worker count.
func WithMaxConnsPerHost(n int) Option {
	return func(cfg *clientConfig) {
		if n > 0 {
			cfg.maxConns = n
		}
	}
}

// WithRateLimiter throttles every outgoing request.
func WithRateLimiter(l *limiter.RateLimiter) Option {
	return func(cfg *clientConfig) {
		cfg.limiter = l
	}
}

// WithLogger sets the logger used for request tracing at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(cfg *clientConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}
