// Package llm turns an assembled prompt plus conversation history into an answer
// using a hosted chat-completion service.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// Generator produces one answer per call. History is given oldest first.
type Generator interface {
	Generate(ctx context.Context, prompt string, history []models.ConversationTurn) (string, error)
}

// Message roles, normalised across providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildMessages expands history into alternating user/assistant messages in
// chronological order, followed by prompt as the final user message.
func BuildMessages(history []models.ConversationTurn, prompt string) []Message {
	msgs := make([]Message, 0, 2*len(history)+1)
	for _, turn := range history {
		msgs = append(msgs,
			Message{Role: RoleUser, Content: turn.Question},
			Message{Role: RoleAssistant, Content: turn.Answer},
		)
	}
	return append(msgs, Message{Role: RoleUser, Content: prompt})
}

const defaultTimeout = 60 * time.Second

// Config configures a hosted generator.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type settings struct {
	logger *zap.Logger
	client *http.Client
}

// Option configures a hosted generator.
type Option func(*settings)

// WithLogger sets a logger for debug output (model, message counts, latency).
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.client = c }
}

func newSettings(cfg Config, opts []Option) *settings {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	s := &settings{logger: zap.NewNop(), client: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// New returns the generator for provider: "gemini", "openai" or "mock".
func New(provider string, cfg Config, opts ...Option) (Generator, error) {
	switch provider {
	case "gemini", "":
		return NewGemini(cfg, opts...)
	case "openai":
		return NewOpenAI(cfg, opts...)
	case "mock":
		return NewMockGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", provider)
	}
}

// classify maps transport and HTTP failures onto the generation error kinds.
func classify(service string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var se *utils.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
		return &models.RateLimitError{Service: service, RetryAfter: se.RetryAfter}
	}
	return fmt.Errorf("%w: %s: %v", models.ErrServiceUnavailable, service, err)
}
