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
	openAIBaseURL    = "https://api.openai.com/v1"
	openAIModel      = "text-embedding-3-small"
	openAIDimensions = 1536
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	cfg      Config
	settings *settings
	batch    *dispatcher
}

type openAIEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewOpenAI creates an OpenAI-compatible embedder. An API key is required.
func NewOpenAI(cfg Config, opts ...Option) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedder: missing API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = openAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openAIModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = openAIDimensions
	}
	return &OpenAIEmbedder{
		cfg:      cfg,
		settings: newSettings(cfg, opts),
		batch:    newDispatcher(cfg.BatchSize, cfg.RequestsPerSecond),
	}, nil
}

// Embed embeds a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.call(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts, one vector per input in input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.batch.run(ctx, texts, e.call)
}

func (e *OpenAIEmbedder) call(ctx context.Context, texts []string) ([][]float32, error) {
	req := openAIEmbedRequest{Model: e.cfg.Model, Input: texts}
	if e.cfg.Dimensions != openAIDimensions {
		req.Dimensions = e.cfg.Dimensions
	}
	url := strings.TrimRight(e.cfg.BaseURL, "/") + "/embeddings"
	header := http.Header{"Authorization": []string{"Bearer " + e.cfg.APIKey}}

	e.settings.logger.Debug("openai embed", zap.Int("texts", len(texts)))
	var resp openAIEmbedResponse
	if err := utils.PostJSON(ctx, e.settings.client, url, header, req, &resp); err != nil {
		return nil, classify("openai embeddings", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: openai returned %d embeddings for %d texts", models.ErrRetrievalUnavailable, len(resp.Data), len(texts))
	}
	vecs := make([][]float32, len(texts))
	for i, d := range resp.Data {
		pos := d.Index
		if pos < 0 || pos >= len(vecs) || vecs[pos] != nil {
			pos = i
		}
		vecs[pos] = d.Embedding
	}
	if err := checkDimensions("openai", e.cfg.Dimensions, vecs); err != nil {
		return nil, err
	}
	return vecs, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int { return e.cfg.Dimensions }

// Close releases idle connections.
func (e *OpenAIEmbedder) Close() error {
	e.settings.client.CloseIdleConnections()
	return nil
}
