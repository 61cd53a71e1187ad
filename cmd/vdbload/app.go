package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/23skdu/vdbload/client"
	"github.com/23skdu/vdbload/internal/dataset"
	"github.com/23skdu/vdbload/internal/driver"
	"github.com/23skdu/vdbload/internal/limiter"
	"github.com/23skdu/vdbload/internal/logging"
)

// session bundles what every subcommand needs once config is resolved.
type session struct {
	cfg    Config
	runID  string
	logger *zap.Logger
	client *client.Client
	out    io.Writer
}

func newSession(cfg Config, stdout, stderr io.Writer) (*session, error) {
	lc := cfg.LoggingConfig()
	lc.Output = stderr
	base, err := logging.NewLogger(lc)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := base.With(zap.String("run_id", runID))

	c, err := client.New(cfg.Host,
		client.WithTimeout(cfg.Timeout),
		client.WithInsecureTLS(cfg.Insecure),
		client.WithMaxConnsPerHost(cfg.Workers),
		client.WithRateLimiter(limiter.NewRateLimiter(cfg.Config)),
		client.WithLogger(logger.Named("client")),
	)
	if err != nil {
		return nil, err
	}

	return &session{cfg: cfg, runID: runID, logger: logger, client: c, out: stdout}, nil
}

func (s *session) login(ctx context.Context) error {
	if _, err := s.client.Login(ctx, s.cfg.Username, s.cfg.Password); err != nil {
		s.logger.Error("Login failed", zap.String("host", s.cfg.Host), zap.Error(err))
		return err
	}
	s.logger.Info("Session created", zap.String("host", s.cfg.Host), zap.String("username", s.cfg.Username))
	return nil
}

// source returns the vector source and the number of transactions it can
// feed (-1 for unbounded synthetic data).
func (s *session) source() (driver.Source, int, error) {
	if s.cfg.Dataset == "" {
		return s.cfg.Generator(), -1, nil
	}
	ps, err := dataset.OpenParquet(s.cfg.Dataset, s.cfg.PerTransaction())
	if err != nil {
		return nil, 0, err
	}
	s.logger.Info("Reading vectors from dataset file",
		zap.String("path", s.cfg.Dataset),
		zap.Int64("rows", ps.Rows()),
		zap.Int("transactions", ps.Transactions()))
	return ps, ps.Transactions(), nil
}

// serveMetrics exposes /metrics on addr until the returned stop func runs.
// An empty addr is a no-op.
func (s *session) serveMetrics(addr string) (stop func()) {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		s.logger.Info("Starting metrics server", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Failed to start metrics server", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func (s *session) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}
