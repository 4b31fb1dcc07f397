package hashing

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/embedding"
)

// DefaultDimension is the vector size used when none is configured.
const DefaultDimension = 1024

const (
	wordWeight    = 1.0
	trigramWeight = 0.5
)

// Embedder implements a stateless feature-hashing vectorizer.
// Words (minus stopwords) and the character trigrams of each word are hashed
// into a fixed number of buckets, so vectors need no corpus-wide vocabulary and
// a query embedded after a cache reload lands in the same space as the corpus.
type Embedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewEmbedder creates an embedder producing vectors of the given dimension.
func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Name returns the identifier of this embedder implementation.
// It encodes the dimension because vectors of different sizes are not comparable.
func (e *Embedder) Name() string { return fmt.Sprintf("hashing-v1-%d", e.dimension) }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed computes the unit-length hashed embedding for the given text.
func (e *Embedder) Embed(_ context.Context, text string) (domain.Vector, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty text", domain.ErrInvalidInput)
	}
	vec := make(domain.Vector, e.dimension)
	features := 0
	for _, tok := range e.tokenize(trimmed) {
		e.add(vec, "w:"+tok, wordWeight)
		runes := []rune("^" + tok + "$")
		for i := 0; i+3 <= len(runes); i++ {
			e.add(vec, "g:"+string(runes[i:i+3]), trigramWeight)
		}
		features++
	}
	if features == 0 {
		// punctuation or stopwords only
		e.add(vec, "t:"+strings.ToLower(trimmed), wordWeight)
	}
	out, err := embedding.Normalize(vec)
	if err != nil {
		// every feature cancelled out through signed collisions
		e.add(vec, "t:"+strings.ToLower(trimmed), wordWeight)
		return embedding.Normalize(vec)
	}
	return out, nil
}

// EmbedBatch embeds each text in order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([]domain.Vector, error) {
	out := make([]domain.Vector, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (e *Embedder) add(vec domain.Vector, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimension))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func (e *Embedder) tokenize(text string) []string {
	lower := strings.ToLower(text)
	raw := e.tokenPattern.FindAllString(lower, -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
