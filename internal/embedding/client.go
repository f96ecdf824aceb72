package embedding

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

const defaultTimeout = 30 * time.Second

// Config configures a hosted embedder.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	Dimensions        int
	BatchSize         int
	RequestsPerSecond float64
	Timeout           time.Duration
}

type settings struct {
	logger *zap.Logger
	client *http.Client
}

// Option configures a hosted embedder.
type Option func(*settings)

// WithLogger sets a logger for debug output (requests, batch sizes).
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithHTTPClient overrides the HTTP client (tests point it at httptest servers).
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

// New returns the embedder for provider: "gemini", "openai" or "mock".
func New(provider string, cfg Config, opts ...Option) (Embedder, error) {
	switch provider {
	case "gemini", "":
		return NewGemini(cfg, opts...)
	case "openai":
		return NewOpenAI(cfg, opts...)
	case "mock":
		return NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
}

// classify maps a transport or HTTP failure to ErrRetrievalUnavailable, keeping the
// rate-limit hint when the provider answered 429.
func classify(service string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var se *utils.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", models.ErrRetrievalUnavailable, &models.RateLimitError{Service: service, RetryAfter: se.RetryAfter})
	}
	return fmt.Errorf("%w: %s: %v", models.ErrRetrievalUnavailable, service, err)
}

func checkDimensions(service string, want int, vecs [][]float32) error {
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("%w: %s returned an empty embedding at %d", models.ErrRetrievalUnavailable, service, i)
		}
		if want > 0 && len(v) != want {
			return fmt.Errorf("%w: %s returned %d dimensions, expected %d", models.ErrRetrievalUnavailable, service, len(v), want)
		}
	}
	return nil
}
