// Package vector provides the corpus vector index, its on-disk snapshot format, and a
// named store of indices.
package vector

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// VectorIndex is an immutable collection of index entries searchable by similarity.
type VectorIndex interface {
	Search(ctx context.Context, query []float32, k int) ([]models.Hit, error)
	Save(path string) error
	Size() int
	Dimensions() int
	Metric() Metric
}
