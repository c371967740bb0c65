// Package server exposes the query service over HTTP: health, status,
// querying, and document ingestion.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/magic-research/ragd/internal/ingest"
	"github.com/magic-research/ragd/internal/qa"
	"github.com/magic-research/ragd/internal/store"
)

// Timeouts for the HTTP server. Query handling includes provider calls,
// so the write timeout is generous.
const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 5 * time.Minute
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Asker answers questions; satisfied by *qa.Service.
type Asker interface {
	Ask(ctx context.Context, question string, k int) (*qa.Response, error)
}

// Ingester ingests uploaded documents; satisfied by *ingest.Pipeline.
type Ingester interface {
	IngestFile(ctx context.Context, path string) (*ingest.Stats, error)
}

// StatusInfo describes the server's corpus and provider setup.
type StatusInfo struct {
	Documents int      `json:"documents"`
	Chunks    int      `json:"chunks"`
	Embedding string   `json:"embedding_model"`
	Providers []string `json:"providers"`
	Version   string   `json:"version"`
}

// Server is the ragd HTTP server.
type Server struct {
	httpServer *http.Server
	asker      Asker
	ingester   Ingester
	metadata   store.MetadataStore
	status     StatusInfo
	uploadDir  string
	logger     *slog.Logger
}

// Options configures a Server.
type Options struct {
	Host string
	Port int

	// UploadDir receives files posted to /documents before ingestion.
	UploadDir string

	Status StatusInfo
}

// New creates the server and registers its routes.
func New(asker Asker, ingester Ingester, metadata store.MetadataStore, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		asker:     asker,
		ingester:  ingester,
		metadata:  metadata,
		status:    opts.Status,
		uploadDir: opts.UploadDir,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("POST /documents", s.handleUpload)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:      s.withRequestLog(mux),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	return s
}

// Handler returns the server's HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// withRequestLog logs each request with its duration and status.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
