// Package search finds the documents of a corpus index closest to a query.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/embedding"
	"docqa/internal/index"
)

// Match is a document together with its similarity to the query.
type Match struct {
	Document domain.Document `json:"document"`
	Score    float64         `json:"score"`
	Position int             `json:"position"`
}

// Best scans the corpus in order and returns the document with the highest
// dot-product score. Ties keep the earliest document. The second result is
// false only when the corpus is empty.
func Best(query domain.Vector, idx *index.CorpusIndex) (Match, bool, error) {
	if idx.Len() == 0 {
		return Match{}, false, nil
	}
	if len(query) != idx.Dimension() {
		return Match{}, false, fmt.Errorf("%w: query %d, corpus %d", domain.ErrDimensionMismatch, len(query), idx.Dimension())
	}
	best := Match{Position: -1}
	for i := 0; i < idx.Len(); i++ {
		s := dot(query, idx.Vector(i))
		if best.Position < 0 || s > best.Score {
			best = Match{Document: idx.Document(i), Score: s, Position: i}
		}
	}
	return best, true, nil
}

// TopK returns up to k documents ranked by descending score; ties are ordered
// by corpus position.
func TopK(query domain.Vector, idx *index.CorpusIndex, k int) ([]Match, error) {
	if idx.Len() == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != idx.Dimension() {
		return nil, fmt.Errorf("%w: query %d, corpus %d", domain.ErrDimensionMismatch, len(query), idx.Dimension())
	}
	matches := make([]Match, idx.Len())
	for i := range matches {
		matches[i] = Match{Document: idx.Document(i), Score: dot(query, idx.Vector(i)), Position: i}
	}
	sort.SliceStable(matches, func(a, b int) bool { return matches[a].Score > matches[b].Score })
	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k], nil
}

// EmbedQuery embeds and normalises a query with the corpus embedder.
func EmbedQuery(ctx context.Context, emb domain.Embedder, query string) (domain.Vector, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	v, err := emb.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	unit, err := embedding.Normalize(v)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return unit, nil
}

// SearchBestDocument embeds the query and returns the best match in idx, or
// nil when the corpus is empty.
func SearchBestDocument(ctx context.Context, emb domain.Embedder, query string, idx *index.CorpusIndex) (*Match, error) {
	v, err := EmbedQuery(ctx, emb, query)
	if err != nil {
		return nil, err
	}
	m, ok, err := Best(v, idx)
	if err != nil || !ok {
		return nil, err
	}
	return &m, nil
}

// Search embeds the query and returns its k nearest documents.
func Search(ctx context.Context, emb domain.Embedder, query string, idx *index.CorpusIndex, k int) ([]Match, error) {
	v, err := EmbedQuery(ctx, emb, query)
	if err != nil {
		return nil, err
	}
	return TopK(v, idx, k)
}

func dot(a, b domain.Vector) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
