package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

const (
	geminiBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	geminiModel      = "embedding-001"
	geminiDimensions = 768

	taskDocument = "RETRIEVAL_DOCUMENT"
	taskQuery    = "RETRIEVAL_QUERY"
)

// GeminiEmbedder calls the Gemini batchEmbedContents endpoint.
type GeminiEmbedder struct {
	cfg      Config
	model    string
	settings *settings
	batch    *dispatcher
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiEmbedRequest struct {
	Model                string        `json:"model"`
	Content              geminiContent `json:"content"`
	TaskType             string        `json:"taskType,omitempty"`
	OutputDimensionality int           `json:"outputDimensionality,omitempty"`
}

type geminiBatchRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiBatchResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

// NewGemini creates a Gemini embedder. An API key is required.
func NewGemini(cfg Config, opts ...Option) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini embedder: missing API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = geminiModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = geminiDimensions
	}
	return &GeminiEmbedder{
		cfg:      cfg,
		model:    strings.TrimPrefix(cfg.Model, "models/"),
		settings: newSettings(cfg, opts),
		batch:    newDispatcher(cfg.BatchSize, cfg.RequestsPerSecond),
	}, nil
}

// Embed embeds a single query text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.call(ctx, []string{text}, taskQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds document texts, one vector per input in input order.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.batch.run(ctx, texts, func(ctx context.Context, chunk []string) ([][]float32, error) {
		return e.call(ctx, chunk, taskDocument)
	})
}

func (e *GeminiEmbedder) call(ctx context.Context, texts []string, task string) ([][]float32, error) {
	req := geminiBatchRequest{Requests: make([]geminiEmbedRequest, len(texts))}
	for i, t := range texts {
		req.Requests[i] = geminiEmbedRequest{
			Model:    "models/" + e.model,
			Content:  geminiContent{Parts: []geminiPart{{Text: t}}},
			TaskType: task,
		}
		if e.cfg.Dimensions != geminiDimensions {
			req.Requests[i].OutputDimensionality = e.cfg.Dimensions
		}
	}
	url := fmt.Sprintf("%s/models/%s:batchEmbedContents", strings.TrimRight(e.cfg.BaseURL, "/"), e.model)
	header := http.Header{"X-Goog-Api-Key": []string{e.cfg.APIKey}}

	e.settings.logger.Debug("gemini embed", zap.Int("texts", len(texts)), zap.String("task", task))
	var resp geminiBatchResponse
	if err := utils.PostJSON(ctx, e.settings.client, url, header, req, &resp); err != nil {
		return nil, classify("gemini embeddings", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: gemini returned %d embeddings for %d texts", models.ErrRetrievalUnavailable, len(resp.Embeddings), len(texts))
	}
	vecs := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		vecs[i] = emb.Values
	}
	if err := checkDimensions("gemini", e.cfg.Dimensions, vecs); err != nil {
		return nil, err
	}
	return vecs, nil
}

// Dimensions returns the configured embedding dimension.
func (e *GeminiEmbedder) Dimensions() int { return e.cfg.Dimensions }

// Close releases idle connections.
func (e *GeminiEmbedder) Close() error {
	e.settings.client.CloseIdleConnections()
	return nil
}
