// Package embedding maps text to vectors through hosted embedding services, with
// batching, throttling and an LRU cache for repeated queries.
package embedding

import "context"

// Embedder produces vector embeddings for text. EmbedBatch returns exactly one
// vector per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
