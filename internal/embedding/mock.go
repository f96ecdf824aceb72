package embedding

import (
	"context"
	"math"
	"sync"

	"github.com/hyperjump/kotae/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests. It returns a fixed-dimension
// vector derived from the text hash so that the same text always gets the same embedding.
// Vectors set with SetVector override the hash for that text; Err, when set, is
// returned by every call.
type MockEmbedder struct {
	dimensions int
	mu         sync.Mutex
	fixed      map[string][]float32
	calls      int
	Err        error
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions, fixed: make(map[string][]float32)}
}

// SetVector pins the embedding returned for text.
func (e *MockEmbedder) SetVector(text string, v []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fixed[text] = v
}

// Calls returns how many texts have been embedded.
func (e *MockEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Embed returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	fixed, ok := e.fixed[text]
	err := e.Err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if ok {
		return append([]float32(nil), fixed...), nil
	}
	h := float64(utils.HashString(text) % 10007)
	emb := make([]float32, e.dimensions)
	var sum float64
	for i := range emb {
		emb[i] = float32(math.Sin(h*float64(i+1))*0.1 + 0.01)
		sum += float64(emb[i]) * float64(emb[i])
	}
	if sum > 0 {
		norm := 1.0 / math.Sqrt(sum)
		for i := range emb {
			emb[i] = float32(float64(emb[i]) * norm)
		}
	}
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
