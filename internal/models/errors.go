package models

import (
	"errors"
	"fmt"
	"time"
)

// Pipeline error kinds. Callers distinguish them with errors.Is.
var (
	// ErrRetrievalUnavailable indicates the embedding service is unreachable or erroring.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrIndexNotFound indicates no index snapshot exists at the requested location.
	ErrIndexNotFound = errors.New("index not found")

	// ErrIndexCorrupt indicates an unreadable snapshot or a dimension mismatch.
	ErrIndexCorrupt = errors.New("index corrupt")

	// ErrServiceUnavailable indicates the generation service is unreachable or erroring.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrRateLimited indicates the provider asked us to back off.
	ErrRateLimited = errors.New("rate limited")

	// ErrEmptyResponse indicates the generation service returned no content.
	ErrEmptyResponse = errors.New("empty response")

	// ErrNoDocumentIngested indicates a query against a corpus that was never ingested.
	ErrNoDocumentIngested = errors.New("no document ingested")

	// ErrEmptyExtraction indicates the ingested sources yielded no text.
	ErrEmptyExtraction = errors.New("no text extracted")

	// ErrInvalidRequest indicates a malformed question.
	ErrInvalidRequest = errors.New("invalid request")
)

// RateLimitError is returned when a provider answers 429. RetryAfter is zero when
// the provider gave no hint.
type RateLimitError struct {
	Service    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Service, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Service)
}

// Unwrap lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// ErrorCode returns a stable machine-readable code for err, or "internal" when it
// matches none of the pipeline kinds.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrNoDocumentIngested):
		return "no_document_ingested"
	case errors.Is(err, ErrEmptyExtraction):
		return "empty_extraction"
	case errors.Is(err, ErrIndexNotFound):
		return "index_not_found"
	case errors.Is(err, ErrIndexCorrupt):
		return "index_corrupt"
	case errors.Is(err, ErrRetrievalUnavailable):
		return "retrieval_unavailable"
	case errors.Is(err, ErrEmptyResponse):
		return "empty_response"
	case errors.Is(err, ErrServiceUnavailable):
		return "service_unavailable"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "internal"
	}
}
