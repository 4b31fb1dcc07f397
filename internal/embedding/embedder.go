// Package embedding holds the vector helpers shared by every embedder
// implementation and by the indexer and search.
package embedding

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"docqa/internal/domain"
)

// UnitTolerance is the allowed deviation of a normalised vector's norm from 1.
const UnitTolerance = 1e-6

// Norm returns the L2 norm of v.
func Norm(v domain.Vector) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v.
func Normalize(v domain.Vector) (domain.Vector, error) {
	n := Norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, domain.ErrZeroVector
	}
	out := make(domain.Vector, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out, nil
}

// IsUnit reports whether v has unit norm within UnitTolerance.
func IsUnit(v domain.Vector) bool {
	return math.Abs(Norm(v)-1) <= UnitTolerance
}

// Dot returns the dot product of two vectors of equal length.
func Dot(a, b domain.Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", domain.ErrDimensionMismatch, len(a), len(b))
	}
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum, nil
}

// BatchFunc embeds one batch of texts, returning vectors in input order.
type BatchFunc func(ctx context.Context, texts []string) ([]domain.Vector, error)

// EmbedInBatches splits texts into batches of batchSize and runs up to workers
// batches at once. The result preserves input order.
func EmbedInBatches(ctx context.Context, texts []string, batchSize, workers int, fn BatchFunc) ([]domain.Vector, error) {
	if batchSize <= 0 {
		batchSize = 32
	}
	if workers <= 0 {
		workers = 1
	}
	out := make([]domain.Vector, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, batch := start, texts[start:end]
		g.Go(func() error {
			vecs, err := fn(gctx, batch)
			if err != nil {
				return err
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbedding, len(vecs), len(batch))
			}
			copy(out[start:], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
