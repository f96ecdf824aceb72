package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperjump/kotae/pkg/utils"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	// DefaultReaderURL is the public Jina reader, which returns a page as text.
	DefaultReaderURL = "https://r.jina.ai"

	defaultFetchTimeout = 30 * time.Second
	fetchCacheTTL       = 10 * time.Minute
	maxPageBytes        = 16 << 20
)

var (
	// ErrInvalidURL is returned for anything but an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid URL")
	// ErrFetchFailed is returned when the reader cannot be reached or answers non-200.
	ErrFetchFailed = errors.New("fetch failed")
)

// Fetcher retrieves the readable text of a web page through a reader endpoint
// (GET {reader}/{url}). Successful fetches are cached for a few minutes.
type Fetcher struct {
	readerURL string
	apiKey    string
	client    *http.Client
	cache     *cache.Cache
	logger    *zap.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithFetchLogger sets a logger for debug output.
func WithFetchLogger(l *zap.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = l }
}

// WithFetchClient overrides the HTTP client.
func WithFetchClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithReaderKey sends key as a bearer token to the reader endpoint.
func WithReaderKey(key string) FetcherOption {
	return func(f *Fetcher) { f.apiKey = key }
}

// NewFetcher creates a fetcher for the given reader base URL (DefaultReaderURL when empty).
func NewFetcher(readerURL string, timeout time.Duration, opts ...FetcherOption) *Fetcher {
	if readerURL == "" {
		readerURL = DefaultReaderURL
	}
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	f := &Fetcher{
		readerURL: strings.TrimRight(readerURL, "/"),
		client:    &http.Client{Timeout: timeout},
		cache:     cache.New(fetchCacheTTL, 2*fetchCacheTTL),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the page text for pageURL. A non-200 answer is an error; its body is
// never returned as page content.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w %q", ErrInvalidURL, pageURL)
	}
	if text, ok := f.cache.Get(pageURL); ok {
		return text.(string), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.readerURL+"/"+pageURL, nil)
	if err != nil {
		return "", err
	}
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}
	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFetchFailed, pageURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", pageURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s: status %d: %s", ErrFetchFailed, pageURL, resp.StatusCode, utils.Truncate(strings.TrimSpace(string(body)), 200))
	}
	text, _ := extractPlain(body)
	f.cache.Set(pageURL, text, cache.DefaultExpiration)
	f.logger.Debug("fetched page",
		zap.String("url", pageURL),
		zap.Int("bytes", len(body)),
		zap.Duration("took", time.Since(start)),
	)
	return text, nil
}
