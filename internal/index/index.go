// Package index builds, validates and caches the embedding index of a corpus.
package index

import (
	"fmt"
	"time"

	"docqa/internal/domain"
	"docqa/internal/embedding"
)

// Metadata describes how a CorpusIndex was produced.
type Metadata struct {
	Kind        domain.Kind
	Model       string
	Dimension   int
	ChunkSize   int
	Fingerprint string
	CreatedAt   time.Time
}

// CorpusIndex is an ordered set of documents and their unit-length embeddings.
// It is read-only after construction and safe for concurrent readers.
type CorpusIndex struct {
	meta    Metadata
	docs    []domain.Document
	vectors []domain.Vector
	byID    map[string]int
}

// New assembles and validates a CorpusIndex. embeddings must hold exactly one
// vector per document ID.
func New(meta Metadata, docs []domain.Document, embeddings map[string]domain.Vector) (*CorpusIndex, error) {
	idx := &CorpusIndex{
		meta:    meta,
		docs:    make([]domain.Document, len(docs)),
		vectors: make([]domain.Vector, len(docs)),
		byID:    make(map[string]int, len(docs)),
	}
	copy(idx.docs, docs)
	for i, d := range idx.docs {
		if _, dup := idx.byID[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate document id %q", domain.ErrIndexCorrupt, d.ID)
		}
		idx.byID[d.ID] = i
		v, ok := embeddings[d.ID]
		if !ok {
			return nil, fmt.Errorf("%w: document %q has no embedding", domain.ErrIndexCorrupt, d.ID)
		}
		idx.vectors[i] = v
	}
	if len(embeddings) != len(idx.docs) {
		return nil, fmt.Errorf("%w: %d embeddings for %d documents", domain.ErrIndexCorrupt, len(embeddings), len(idx.docs))
	}
	if err := idx.Validate(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Validate checks that every vector is unit length and that all vectors share
// the recorded dimension.
func (c *CorpusIndex) Validate() error {
	if len(c.docs) != len(c.vectors) || len(c.docs) != len(c.byID) {
		return fmt.Errorf("%w: documents and embeddings out of step", domain.ErrIndexCorrupt)
	}
	for i, v := range c.vectors {
		id := c.docs[i].ID
		if c.meta.Dimension > 0 && len(v) != c.meta.Dimension {
			return fmt.Errorf("%w: %q has dimension %d, want %d", domain.ErrIndexCorrupt, id, len(v), c.meta.Dimension)
		}
		if len(v) != len(c.vectors[0]) {
			return fmt.Errorf("%w: %q has dimension %d, want %d", domain.ErrIndexCorrupt, id, len(v), len(c.vectors[0]))
		}
		if !embedding.IsUnit(v) {
			return fmt.Errorf("%w: %q is not unit length (norm %g)", domain.ErrIndexCorrupt, id, embedding.Norm(v))
		}
	}
	return nil
}

// Len returns the number of documents.
func (c *CorpusIndex) Len() int { return len(c.docs) }

// Document returns the document at position i in corpus order.
func (c *CorpusIndex) Document(i int) domain.Document { return c.docs[i] }

// Vector returns the embedding of the document at position i.
func (c *CorpusIndex) Vector(i int) domain.Vector { return c.vectors[i] }

// Documents returns a copy of the documents in corpus order.
func (c *CorpusIndex) Documents() []domain.Document {
	out := make([]domain.Document, len(c.docs))
	copy(out, c.docs)
	return out
}

// Embedding returns the vector stored for a document ID.
func (c *CorpusIndex) Embedding(id string) (domain.Vector, bool) {
	i, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	return c.vectors[i], true
}

// Dimension returns the vector size, or the recorded dimension for an empty corpus.
func (c *CorpusIndex) Dimension() int {
	if len(c.vectors) > 0 {
		return len(c.vectors[0])
	}
	return c.meta.Dimension
}

// Meta returns how the index was produced.
func (c *CorpusIndex) Meta() Metadata { return c.meta }

// Text returns the documents' text joined with newlines.
func (c *CorpusIndex) Text() string {
	n := 0
	for _, d := range c.docs {
		n += len(d.Text) + 1
	}
	b := make([]byte, 0, n)
	for i, d := range c.docs {
		if i > 0 {
			b = append(b, '\n')
		}
		b = append(b, d.Text...)
	}
	return string(b)
}
