// Package server exposes the generation pipeline, document library and
// approval flow over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"baagent/internal/approval"
	"baagent/internal/logging"
	"baagent/internal/orchestrator"
	"baagent/internal/store"
	"baagent/internal/types"
	"baagent/internal/usage"
)

// Generator runs the generation pipeline on an uploaded file.
type Generator interface {
	Run(ctx context.Context, file []byte, filename string) (*orchestrator.Result, error)
}

// Extractor reads uploaded documents.
type Extractor interface {
	Extract(ctx context.Context, data []byte, filename string) (types.ExtractedContent, error)
}

// Library is the document and analysis persistence used by the API.
type Library interface {
	SaveDocument(ctx context.Context, doc types.Document) error
	ListDocuments(ctx context.Context) ([]types.Document, error)
	GetDocument(ctx context.Context, id string) (types.Document, error)
	ListAnalyses(ctx context.Context) ([]types.Analysis, error)
	GetAnalysis(ctx context.Context, id string) (types.Analysis, error)
	Search(ctx context.Context, query, collection string, n int) (store.SearchResults, error)
}

// Approvals is the approval lifecycle.
type Approvals interface {
	Request(ctx context.Context, bundle types.Bundle) (approval.Record, error)
	Decide(ctx context.Context, id string, decision approval.Status) (approval.Status, error)
	Status(ctx context.Context, id string) (approval.Status, error)
}

// Renderer turns mermaid source into PNG.
type Renderer interface {
	Render(ctx context.Context, code string) ([]byte, error)
}

// HealthReporter reports row counts per table.
type HealthReporter interface {
	Stats() (map[string]int, error)
}

// UsageReporter exposes token consumption.
type UsageReporter interface {
	Stats() usage.AggregatedStats
}

// Config holds server settings.
type Config struct {
	Addr           string
	RequestTimeout time.Duration
	MaxUploadBytes int64
	UploadDir      string
}

// Deps are the collaborators behind the handlers. Any may be nil, in which
// case the routes that need it answer 503.
type Deps struct {
	Generator Generator
	Extractor Extractor
	Library   Library
	Approvals Approvals
	Renderer  Renderer
	Usage     UsageReporter
	Health    HealthReporter
}

// Server is the HTTP API.
type Server struct {
	cfg  Config
	deps Deps
}

// New creates a server.
func New(cfg Config, deps Deps) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:5000"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}
	return &Server{cfg: cfg, deps: deps}
}

// Handler returns the routed handler with CORS and request logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)

	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/upload_document", s.handleUploadDocument)
	mux.HandleFunc("GET /api/documents", s.handleListDocuments)
	mux.HandleFunc("GET /api/documents/{id}", s.handleGetDocument)
	mux.HandleFunc("GET /api/analyses", s.handleListAnalyses)
	mux.HandleFunc("GET /api/analyses/{id}", s.handleGetAnalysis)
	mux.HandleFunc("POST /api/render_mermaid", s.handleRenderMermaid)
	mux.HandleFunc("POST /api/convert_to_docx", s.handleConvertToDocx)
	mux.HandleFunc("POST /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/usage", s.handleUsage)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/approve", s.handleApprove)
	mux.HandleFunc("GET /api/approval_response", s.handleApprovalResponse)
	mux.HandleFunc("GET /api/approval_status/{id}", s.handleApprovalStatus)

	return withLogging(withCORS(mux))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		logging.HTTP("Listening on http://%s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logging.HTTP("Shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-errCh
	return nil
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", "*")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if rec.status >= 500 {
			logging.HTTPError("%s %s -> %d (%v)", r.Method, r.URL.Path, rec.status, time.Since(start))
			return
		}
		logging.Get(logging.CategoryHTTP).Debug("%s %s -> %d (%v)", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
