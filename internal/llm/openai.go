package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

const (
	openAIBaseURL = "https://api.openai.com/v1"
	openAIModel   = "gpt-4o-mini"
)

// OpenAIGenerator calls an OpenAI-compatible /chat/completions endpoint
// (OpenAI, Deepseek, Ollama and friends).
type OpenAIGenerator struct {
	cfg      Config
	settings *settings
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// NewOpenAI creates an OpenAI-compatible generator. The API key may be empty for
// local servers that do not check it.
func NewOpenAI(cfg Config, opts ...Option) (*OpenAIGenerator, error) {
	if cfg.BaseURL == "" {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai generator: missing API key")
		}
		cfg.BaseURL = openAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openAIModel
	}
	return &OpenAIGenerator{cfg: cfg, settings: newSettings(cfg, opts)}, nil
}

// Generate sends history and prompt as one non-streaming chat completion.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, history []models.ConversationTurn) (string, error) {
	req := chatRequest{
		Model:       g.cfg.Model,
		Messages:    BuildMessages(history, prompt),
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	}
	url := strings.TrimRight(g.cfg.BaseURL, "/") + "/chat/completions"
	header := http.Header{}
	if g.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	start := time.Now()
	var resp chatResponse
	if err := utils.PostJSON(ctx, g.settings.client, url, header, req, &resp); err != nil {
		return "", classify("openai", err)
	}
	g.settings.logger.Debug("openai generate",
		zap.String("model", g.cfg.Model),
		zap.Int("messages", len(req.Messages)),
		zap.Duration("took", time.Since(start)),
	)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: %w", models.ErrEmptyResponse)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai: %w", models.ErrEmptyResponse)
	}
	return text, nil
}
