package domain

import (
	"context"
	"fmt"
	"strings"
)

// Kind identifies the type of source artifact a corpus is built from.
type Kind string

const (
	// KindPDF is a paginated document.
	KindPDF Kind = "pdf"
	// KindPPTX is a slide deck.
	KindPPTX Kind = "pptx"
)

// ParseKind maps a configured kind name onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pdf":
		return KindPDF, nil
	case "pptx", "ppt":
		return KindPPTX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, s)
	}
}

// Document is one retrievable chunk of a source artifact.
type Document struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// DocumentID returns the identifier of the chunk at ordinal i for kind.
func DocumentID(kind Kind, i int) string {
	return fmt.Sprintf("%s_%d", kind, i)
}

// Vector is a dense embedding.
type Vector []float64

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) (Vector, error)
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
}

// Extractor turns a source artifact into raw text in reading order.
type Extractor interface {
	Extract(ctx context.Context, path string, kind Kind) (string, error)
}

// Chunker splits cleaned text into sentence-aligned chunks.
type Chunker interface {
	Chunk(text string) []string
	MaxChunkSize() int
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
