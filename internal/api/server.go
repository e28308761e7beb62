package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dgallion1/notionmd/internal/assemble"
	"github.com/dgallion1/notionmd/internal/block"
	"github.com/dgallion1/notionmd/internal/config"
	"github.com/dgallion1/notionmd/internal/latency"
	"github.com/dgallion1/notionmd/internal/pipeline"
	"github.com/dgallion1/notionmd/internal/writeback"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// JobQueue accepts review jobs and reports on them.
type JobQueue interface {
	Submit(job *pipeline.Job) error
	GetJob(id string) *pipeline.Job
}

// PageWriter applies parsed blocks to a page.
type PageWriter interface {
	Apply(ctx context.Context, pageID string, blocks []*block.Block) (*writeback.Result, error)
}

// Deps are the collaborators the handlers use.
type Deps struct {
	Jobs      JobQueue
	Docs      pipeline.Documents
	Assembler *assemble.Assembler
	Writer    PageWriter
	Timings   *latency.Tracker
	Model     string
}

// Server is the HTTP API server for notionmd.
type Server struct {
	router chi.Router
	deps   Deps
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		deps: deps,
		log:  log,
		cfg:  cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.ClientToken, s.log))

		r.Post("/api/webhook", s.handleWebhook)
		r.Get("/api/jobs/{jobID}", s.handleJobStatus)
		r.Get("/api/stats/latency", s.handleLatencyStats)

		r.Get("/api/pages/{pageID}/markdown", s.handlePageMarkdown)
		r.Put("/api/pages/{pageID}/markdown", s.handleWritePage)
		r.Get("/api/pages/{pageID}/context", s.handlePageContext)
		r.Post("/api/markdown/parse", s.handleParse)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
