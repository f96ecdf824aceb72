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
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiModel   = "gemini-2.0-flash"
	geminiRoleLLM = "model"
)

// GeminiGenerator calls the Gemini generateContent endpoint.
type GeminiGenerator struct {
	cfg      Config
	model    string
	settings *settings
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

// NewGemini creates a Gemini generator. An API key is required.
func NewGemini(cfg Config, opts ...Option) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini generator: missing API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = geminiModel
	}
	return &GeminiGenerator{
		cfg:      cfg,
		model:    strings.TrimPrefix(cfg.Model, "models/"),
		settings: newSettings(cfg, opts),
	}, nil
}

// Generate sends history and prompt as one generateContent call.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, history []models.ConversationTurn) (string, error) {
	msgs := BuildMessages(history, prompt)
	req := geminiRequest{Contents: make([]geminiContent, len(msgs))}
	for i, m := range msgs {
		role := m.Role
		if role == RoleAssistant {
			role = geminiRoleLLM
		}
		req.Contents[i] = geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}}
	}
	if g.cfg.Temperature > 0 || g.cfg.MaxTokens > 0 {
		gc := &geminiGenerationConfig{MaxOutputTokens: g.cfg.MaxTokens}
		if g.cfg.Temperature > 0 {
			t := g.cfg.Temperature
			gc.Temperature = &t
		}
		req.GenerationConfig = gc
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(g.cfg.BaseURL, "/"), g.model)
	header := http.Header{"X-Goog-Api-Key": []string{g.cfg.APIKey}}

	start := time.Now()
	var resp geminiResponse
	if err := utils.PostJSON(ctx, g.settings.client, url, header, req, &resp); err != nil {
		return "", classify("gemini", err)
	}
	g.settings.logger.Debug("gemini generate",
		zap.String("model", g.model),
		zap.Int("messages", len(msgs)),
		zap.Duration("took", time.Since(start)),
	)

	for _, c := range resp.Candidates {
		var b strings.Builder
		for _, p := range c.Content.Parts {
			b.WriteString(p.Text)
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			return text, nil
		}
	}
	return "", fmt.Errorf("gemini: %w", models.ErrEmptyResponse)
}
