package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/memory"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
)

const (
	maxUploadBytes = 64 << 20
	maxFormMemory  = 32 << 20
)

var statusByCode = map[string]int{
	"invalid_request":       http.StatusBadRequest,
	"not_found":             http.StatusNotFound,
	"index_not_found":       http.StatusNotFound,
	"no_document_ingested":  http.StatusConflict,
	"unsupported_type":      http.StatusUnsupportedMediaType,
	"empty_extraction":      http.StatusUnprocessableEntity,
	"rate_limited":          http.StatusTooManyRequests,
	"service_unavailable":   http.StatusBadGateway,
	"retrieval_unavailable": http.StatusBadGateway,
	"empty_response":        http.StatusBadGateway,
	"fetch_failed":          http.StatusBadGateway,
	"index_corrupt":         http.StatusInternalServerError,
	"internal":              http.StatusInternalServerError,
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, vector.ErrInvalidName), errors.Is(err, extract.ErrInvalidURL):
		return "invalid_request"
	case errors.Is(err, extract.ErrUnsupported):
		return "unsupported_type"
	case errors.Is(err, extract.ErrFetchFailed):
		return "fetch_failed"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	}
	return models.ErrorCode(err)
}

type urlRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleUploadDocuments(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "invalid multipart body")
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "no files uploaded (form field \"files\")")
		return
	}
	uploads := make([]extract.Upload, 0, len(headers))
	for _, fh := range headers {
		if !extract.Supported(filepath.Ext(fh.Filename)) {
			s.respondError(w, http.StatusUnsupportedMediaType, "unsupported_type",
				fmt.Sprintf("unsupported file type: %s", fh.Filename))
			return
		}
		data, err := readUpload(fh)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		uploads = append(uploads, extract.Upload{Name: filepath.Base(fh.Filename), Data: data})
	}
	s.logger.Debug("upload request", zap.String("corpus", name), zap.Int("files", len(uploads)))
	rec, err := s.pipeline.Ingest(r.Context(), name, extract.UploadSource{Files: uploads})
	if err != nil {
		s.respondPipelineError(w, "ingestion failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, rec)
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) handleIngestURL(w http.ResponseWriter, r *http.Request) {
	if s.fetcher == nil {
		s.respondError(w, http.StatusNotImplemented, "not_implemented", "url ingestion not enabled")
		return
	}
	name := chi.URLParam(r, "name")
	var req urlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.URL == "" {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "url is required")
		return
	}
	s.logger.Debug("url ingest request", zap.String("corpus", name), zap.String("url", req.URL))
	rec, err := s.pipeline.Ingest(r.Context(), name, extract.URLSource{URL: req.URL, Fetcher: s.fetcher})
	if err != nil {
		s.respondPipelineError(w, "ingestion failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListCorpora(w http.ResponseWriter, r *http.Request) {
	list, err := s.pipeline.Corpora(r.Context())
	if err != nil {
		s.respondPipelineError(w, "list corpora failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"corpora": list})
}

func (s *Server) handleDeleteCorpus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.logger.Debug("delete corpus request", zap.String("corpus", name))
	if err := s.pipeline.DeleteCorpus(r.Context(), name); err != nil {
		s.respondPipelineError(w, "deletion failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"name": name, "status": "deleted"})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	s.logger.Debug("ask request",
		zap.String("corpus", name),
		zap.String("session", req.SessionID),
		zap.Int("k", req.K),
	)
	ans, err := s.pipeline.Ask(r.Context(), name, req)
	if err != nil {
		s.respondPipelineError(w, "ask failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, ans)
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusCreated, map[string]string{"session_id": memory.NewSessionID()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	turns, err := s.pipeline.History(r.Context(), id)
	if err != nil {
		s.respondPipelineError(w, "history failed", err)
		return
	}
	if turns == nil {
		turns = []models.ConversationTurn{}
	}
	order := r.URL.Query().Get("order")
	switch order {
	case "", "asc":
	case "desc":
		slices.Reverse(turns)
	default:
		s.respondError(w, http.StatusBadRequest, "invalid_request", "order must be asc or desc")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"session_id": id, "turns": turns})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.pipeline.ClearSession(r.Context(), id); err != nil {
		s.respondPipelineError(w, "clear session failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	list, err := s.pipeline.Corpora(r.Context())
	if err != nil {
		s.respondPipelineError(w, "status: list corpora failed", err)
		return
	}
	segments := 0
	for _, c := range list {
		segments += c.Segments
	}
	resp := map[string]interface{}{
		"corpora":  len(list),
		"segments": segments,
	}

	cfg := s.config
	resp["config"] = map[string]interface{}{
		"provider":             cfg.Provider.Name,
		"embedding_model":      cfg.Embedding.Model,
		"embedding_dimensions": cfg.Embedding.Dimensions,
		"generation_model":     cfg.Generation.Model,
		"chunk_size":           cfg.Chunking.MaxLen,
		"web_chunk_size":       cfg.Chunking.WebMaxLen,
		"chunk_overlap":        cfg.Chunking.Overlap,
		"top_k":                cfg.Retrieval.TopK,
		"history_backend":      cfg.Storage.HistoryBackend,
		"index_dir":            cfg.Storage.IndexDir,
		"database_path":        cfg.Storage.DatabasePath,
	}
	if usage, err := storage.MeasureUsage(cfg.Storage.IndexDir, cfg.Storage.DatabasePath); err == nil {
		resp["disk_usage_bytes"] = usage.Total()
		resp["index_bytes"] = usage.IndexBytes
	} else {
		s.logger.Warn("status: measure disk usage", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondPipelineError(w http.ResponseWriter, msg string, err error) {
	code := errorCode(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.String("code", code), zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.String("code", code), zap.Error(err))
	}
	var rl *models.RateLimitError
	if errors.As(err, &rl) {
		secs := int(math.Ceil(rl.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	s.respondError(w, status, code, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, map[string]string{"error": message, "code": code})
}
