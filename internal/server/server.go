// Package server exposes the ingestion trigger and the retrieval query
// endpoint over HTTP. Handlers are thin: decode, delegate, encode.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/keepstack/keeprag/internal/search"
)

const (
	// DefaultAddr is where the server listens when config does not say.
	DefaultAddr = ":8090"

	shutdownGrace = 10 * time.Second
)

// Answerer is the retrieval engine surface the query endpoint needs.
type Answerer interface {
	Answer(ctx context.Context, question string, opts search.Options) (*search.Response, error)
}

// Ingester is the worker surface the ingest trigger needs.
type Ingester interface {
	Run(ctx context.Context) (int, error)
	ProcessSection(ctx context.Context, sectionID int64) error
}

// Server serves the HTTP boundary.
type Server struct {
	addr    string
	engine  Answerer
	worker  Ingester
	httpSrv *http.Server
}

// New wires a server around the engine and worker.
func New(addr string, engine Answerer, worker Ingester) *Server {
	if addr == "" {
		addr = DefaultAddr
	}

	s := &Server{
		addr:   addr,
		engine: engine,
		worker: worker,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/query", withCORS(s.handleQuery))
	mux.HandleFunc("/api/ingest", withCORS(s.handleIngest))
	mux.HandleFunc("/healthz", s.handleHealth)

	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe blocks until the context is cancelled, then drains active
// requests within the shutdown grace period.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http_listening", slog.String("addr", s.addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	slog.Info("http_stopped")
	return nil
}
