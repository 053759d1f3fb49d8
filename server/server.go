// Package server exposes range queries and balance lookups over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/livesource"
	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/query"
)

// Querier is the query surface the HTTP layer needs. *query.Service
// satisfies it.
type Querier interface {
	QueryLedgers(ctx context.Context, req query.Request) (*query.AggregateResult, error)
	Balance(ctx context.Context, address, token string) (*livesource.Balance, error)
}

type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// Health adds component details to /health. May be nil.
	Health func() map[string]interface{}
}

type Server struct {
	querier Querier
	cfg     Config
	router  *mux.Router
	logger  *zap.Logger
}

func New(querier Querier, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		querier: querier,
		cfg:     cfg,
		router:  mux.NewRouter(),
		logger:  logger.With(zap.String("component", "http")),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(requestIDMiddleware, s.metricsMiddleware)

	r.HandleFunc("/", s.handleHelp).Methods(http.MethodGet)
	r.HandleFunc("/help", s.handleHelp).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/all", s.handleQuery(query.KindAll)).Methods(http.MethodGet)
	r.HandleFunc("/transactions", s.handleQuery(query.KindTransactions)).Methods(http.MethodGet)
	r.HandleFunc("/address", s.handleQuery(query.KindAddress)).Methods(http.MethodGet)
	r.HandleFunc("/contract", s.handleQuery(query.KindContract)).Methods(http.MethodGet)
	r.HandleFunc("/function", s.handleQuery(query.KindFunction)).Methods(http.MethodGet)
	r.HandleFunc("/balance", s.handleBalance).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, fmt.Sprintf("unknown endpoint %s, see /help", r.URL.Path), http.StatusNotFound)
	})
}

// Handler returns the router wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.router)
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", zap.Int("port", s.cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.logger.Info("Server exited gracefully")
	return nil
}
