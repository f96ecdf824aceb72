// Package server provides the HTTP API for kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/rag"
	"go.uber.org/zap"
)

const requestTimeout = 5 * time.Minute

// Server is the HTTP server for the kotae API.
type Server struct {
	pipeline *rag.Pipeline
	fetcher  *extract.Fetcher // nil disables URL ingestion
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	pipeline *rag.Pipeline,
	fetcher *extract.Fetcher,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		pipeline: pipeline,
		fetcher:  fetcher,
		config:   cfg,
		logger:   logger,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if s.config.Debug {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/corpora", s.handleListCorpora)
		r.Delete("/corpora/{name}", s.handleDeleteCorpus)
		r.Post("/corpora/{name}/documents", s.handleUploadDocuments)
		r.Post("/corpora/{name}/url", s.handleIngestURL)
		r.Post("/corpora/{name}/ask", s.handleAsk)

		r.Post("/sessions", s.handleNewSession)
		r.Get("/sessions/{id}/history", s.handleHistory)
		r.Delete("/sessions/{id}", s.handleDeleteSession)

		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
