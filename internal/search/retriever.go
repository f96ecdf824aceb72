// Package search retrieves the segments most relevant to a question and assembles
// them into the context handed to the generator.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
)

// Retriever embeds a question and looks up its nearest segments in an index.
type Retriever struct {
	embedder embedding.Embedder
	logger   *zap.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithLogger sets a logger for debug output (query timings, hit counts).
func WithLogger(l *zap.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = l }
}

// NewRetriever creates a retriever that embeds questions with embedder.
func NewRetriever(embedder embedding.Embedder, opts ...RetrieverOption) *Retriever {
	r := &Retriever{embedder: embedder, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to k hits for query, best first. An empty index yields an empty
// result without contacting the embedding service.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, idx vector.VectorIndex) ([]models.Hit, error) {
	if idx == nil || idx.Size() == 0 || k <= 0 {
		return []models.Hit{}, nil
	}
	start := time.Now()
	qvec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := idx.Search(ctx, qvec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if hits == nil {
		hits = []models.Hit{}
	}
	r.logger.Debug("retrieved",
		zap.Int("k", k),
		zap.Int("hits", len(hits)),
		zap.Duration("took", time.Since(start)),
	)
	return hits, nil
}
