package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/user/catalog-crawler/internal/domain"
	"github.com/user/catalog-crawler/internal/monitoring"
	"go.uber.org/zap"
)

// RunReporter exposes the live run summary.
type RunReporter interface {
	Current() (domain.RunSummary, bool)
}

// Pinger is a dependency checked by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the dependencies for the ops HTTP server.
type Server struct {
	port       string
	router     http.Handler
	httpServer *http.Server
	runs       RunReporter
	checks     map[string]Pinger
	gatherer   prometheus.Gatherer
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

// NewServer builds the ops server. A nil gatherer serves the default registry.
func NewServer(port string, runs RunReporter, checks map[string]Pinger, gatherer prometheus.Gatherer, m *monitoring.Metrics, l *zap.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		port:     port,
		runs:     runs,
		checks:   checks,
		gatherer: gatherer,
		metrics:  m,
		logger:   l,
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
