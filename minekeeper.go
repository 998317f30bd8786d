// Package minekeeper exposes the daemon's building blocks for embedding: the
// process supervisor, the TOML config loader, the HTTP control router and the
// Prometheus metrics. The cmd/minekeeper binary is a thin wrapper over this
// surface.
package minekeeper

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/minekeeper/minekeeper/internal/config"
	"github.com/minekeeper/minekeeper/internal/history"
	"github.com/minekeeper/minekeeper/internal/history/factory"
	"github.com/minekeeper/minekeeper/internal/logger"
	"github.com/minekeeper/minekeeper/internal/metrics"
	iapi "github.com/minekeeper/minekeeper/internal/server"
	"github.com/minekeeper/minekeeper/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = supervisor.Spec

type Status = supervisor.Status

type Config = cfg.Config

type EndpointsConfig = cfg.EndpointsConfig

type HistoryConfig = factory.Config

type HistorySink = history.Sink

// Lifecycle errors surfaced by the supervisor.
var (
	ErrAlreadyRunning = supervisor.ErrAlreadyRunning
	ErrAlreadyOffline = supervisor.ErrAlreadyOffline
	ErrShutDown       = supervisor.ErrShutDown
)

// Supervisor is a thin facade over internal/supervisor.Supervisor.
// It provides a stable public API for embedding.
type Supervisor struct{ inner *supervisor.Supervisor }

func New(spec Spec, log *slog.Logger) (*Supervisor, error) {
	s, err := supervisor.New(spec, log)
	if err != nil {
		return nil, err
	}
	return &Supervisor{inner: s}, nil
}

func (s *Supervisor) Start() error   { return s.inner.Start() }
func (s *Supervisor) Stop() error    { return s.inner.Stop() }
func (s *Supervisor) Status() Status { return s.inner.Status() }

func (s *Supervisor) SendCommand(text string) error   { return s.inner.SendCommand(text) }
func (s *Supervisor) SetHistory(sinks ...HistorySink) { s.inner.SetHistory(sinks...) }

func (s *Supervisor) Shutdown(ctx context.Context) error { return s.inner.Shutdown(ctx) }

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewLogger builds the daemon logger. Level accepts debug/info/warn/error.
func NewLogger(level string, color bool) *slog.Logger { return logger.New(level, color) }

// NewHistorySink builds the configured history sink, or nil when disabled.
func NewHistorySink(c HistoryConfig) (HistorySink, error) { return factory.New(c) }

// NewRouter builds the HTTP control surface for a supervisor.
func NewRouter(s *Supervisor, endpoints EndpointsConfig, basePath string) http.Handler {
	return iapi.NewRouter(s.inner, endpoints, basePath).Handler()
}

// NewHTTPServer starts an HTTP server exposing the control API on addr.
func NewHTTPServer(addr, basePath string, s *Supervisor, endpoints EndpointsConfig) *http.Server {
	return iapi.NewServer(addr, iapi.NewRouter(s.inner, endpoints, basePath))
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
