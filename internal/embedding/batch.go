package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	defaultBatchSize = 100
	maxParallel      = 4
)

// dispatcher splits a batch into provider-sized sub-batches and runs them in
// parallel, throttled by an optional rate limiter.
type dispatcher struct {
	batchSize int
	limiter   *rate.Limiter
}

func newDispatcher(batchSize int, requestsPerSecond float64) *dispatcher {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	d := &dispatcher{batchSize: batchSize}
	if requestsPerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return d
}

// run embeds texts through call. Identical texts are sent once; the result has one
// vector per input in input order.
func (d *dispatcher) run(ctx context.Context, texts []string, call func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	unique := make([]string, 0, len(texts))
	slot := make(map[string]int, len(texts))
	index := make([]int, len(texts))
	for i, t := range texts {
		j, ok := slot[t]
		if !ok {
			j = len(unique)
			slot[t] = j
			unique = append(unique, t)
		}
		index[i] = j
	}

	vecs := make([][]float32, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for start := 0; start < len(unique); start += d.batchSize {
		start := start
		end := min(start+d.batchSize, len(unique))
		g.Go(func() error {
			if d.limiter != nil {
				if err := d.limiter.Wait(gctx); err != nil {
					return fmt.Errorf("%w: %v", models.ErrRetrievalUnavailable, err)
				}
			}
			out, err := call(gctx, unique[start:end])
			if err != nil {
				return err
			}
			if len(out) != end-start {
				return fmt.Errorf("%w: got %d embeddings for %d texts", models.ErrRetrievalUnavailable, len(out), end-start)
			}
			copy(vecs[start:end], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([][]float32, len(texts))
	for i, j := range index {
		result[i] = vecs[j]
	}
	return result, nil
}
