package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/embedding/hashing"
	"docqa/internal/index"
)

// tableEmbedder maps known texts onto fixed vectors.
type tableEmbedder struct {
	vectors map[string]domain.Vector
	err     error
}

func (e tableEmbedder) Name() string   { return "table" }
func (e tableEmbedder) Dimension() int { return 3 }

func (e tableEmbedder) Embed(_ context.Context, text string) (domain.Vector, error) {
	if e.err != nil {
		return nil, e.err
	}
	v, ok := e.vectors[text]
	if !ok {
		return domain.Vector{0, 0, 0}, nil
	}
	return v, nil
}

func (e tableEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]domain.Vector, error) {
	out := make([]domain.Vector, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func buildIndex(t *testing.T, vecs ...domain.Vector) *index.CorpusIndex {
	t.Helper()
	docs := make([]domain.Document, len(vecs))
	emb := make(map[string]domain.Vector, len(vecs))
	for i, v := range vecs {
		id := domain.DocumentID(domain.KindPDF, i)
		docs[i] = domain.Document{ID: id, Text: id}
		emb[id] = v
	}
	idx, err := index.New(index.Metadata{Kind: domain.KindPDF, Dimension: 3}, docs, emb)
	require.NoError(t, err)
	return idx
}

func TestBest_ExactMatch(t *testing.T) {
	idx := buildIndex(t, domain.Vector{1, 0, 0}, domain.Vector{0, 1, 0}, domain.Vector{0, 0, 1})

	m, ok, err := Best(domain.Vector{0, 1, 0}, idx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pdf_1", m.Document.ID)
	assert.Equal(t, 1, m.Position)
	assert.InDelta(t, 1.0, m.Score, 1e-12)
}

func TestBest_TieKeepsEarliest(t *testing.T) {
	idx := buildIndex(t, domain.Vector{0, 0, 1}, domain.Vector{1, 0, 0}, domain.Vector{1, 0, 0})

	m, ok, err := Best(domain.Vector{1, 0, 0}, idx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pdf_1", m.Document.ID)
}

func TestBest_NegativeScoresStillMatch(t *testing.T) {
	idx := buildIndex(t, domain.Vector{-1, 0, 0}, domain.Vector{0, -1, 0})

	m, ok, err := Best(domain.Vector{0.6, 0.8, 0}, idx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pdf_0", m.Document.ID)
	assert.InDelta(t, -0.6, m.Score, 1e-12)
}

func TestBest_EmptyCorpus(t *testing.T) {
	idx := buildIndex(t)
	_, ok, err := Best(domain.Vector{1, 0, 0}, idx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBest_DimensionMismatch(t *testing.T) {
	idx := buildIndex(t, domain.Vector{1, 0, 0})
	_, _, err := Best(domain.Vector{1, 0}, idx)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestTopK(t *testing.T) {
	idx := buildIndex(t,
		domain.Vector{0, 0, 1},
		domain.Vector{1, 0, 0},
		domain.Vector{0.6, 0.8, 0},
		domain.Vector{1, 0, 0},
	)

	got, err := TopK(domain.Vector{1, 0, 0}, idx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 3, 2}, []int{got[0].Position, got[1].Position, got[2].Position})

	all, err := TopK(domain.Vector{1, 0, 0}, idx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := TopK(domain.Vector{1, 0, 0}, idx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchBestDocument(t *testing.T) {
	idx := buildIndex(t, domain.Vector{1, 0, 0}, domain.Vector{0, 1, 0}, domain.Vector{0, 0, 1})
	emb := tableEmbedder{vectors: map[string]domain.Vector{"third": {0, 0, 5}}}

	m, err := SearchBestDocument(context.Background(), emb, "third", idx)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "pdf_2", m.Document.ID)
	assert.InDelta(t, 1.0, m.Score, 1e-12, "query vectors are normalised")
}

func TestSearchBestDocument_Errors(t *testing.T) {
	idx := buildIndex(t, domain.Vector{1, 0, 0})
	boom := errors.New("boom")

	_, err := SearchBestDocument(context.Background(), tableEmbedder{}, "  ", idx)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = SearchBestDocument(context.Background(), tableEmbedder{err: boom}, "q", idx)
	assert.ErrorIs(t, err, boom)

	_, err = SearchBestDocument(context.Background(), tableEmbedder{}, "unknown", idx)
	assert.ErrorIs(t, err, domain.ErrZeroVector)
}

func TestSearchBestDocument_EmptyCorpus(t *testing.T) {
	m, err := SearchBestDocument(context.Background(), tableEmbedder{vectors: map[string]domain.Vector{"q": {1, 0, 0}}}, "q", buildIndex(t))
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestSearchBestDocument_Fireballs(t *testing.T) {
	emb := hashing.NewEmbedder(0)
	ctx := context.Background()
	texts := []string{"Fireballs deal damage.", "Counterspell counters spells."}
	vecs, err := emb.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	docs := []domain.Document{{ID: "pdf_0", Text: texts[0]}, {ID: "pdf_1", Text: texts[1]}}
	idx, err := index.New(index.Metadata{Kind: domain.KindPDF, Model: emb.Name(), Dimension: emb.Dimension()},
		docs, map[string]domain.Vector{"pdf_0": vecs[0], "pdf_1": vecs[1]})
	require.NoError(t, err)

	m, err := SearchBestDocument(ctx, emb, "What do fireballs do?", idx)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "pdf_0", m.Document.ID)

	m, err = SearchBestDocument(ctx, emb, "how do I counter a spell", idx)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "pdf_1", m.Document.ID)
}

// staticExtractor returns the same text for every source.
type staticExtractor string

func (e staticExtractor) Extract(context.Context, string, domain.Kind) (string, error) {
	return string(e), nil
}

func TestSearchBestDocument_RulebookScenario(t *testing.T) {
	const rules = "Fireballs deal 6 damage. Counterspells negate target spells."
	ctx := context.Background()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "MAGIC_RULES.pdf")
	require.NoError(t, os.WriteFile(srcPath, []byte(rules), 0o644))
	src := index.Source{Path: srcPath, CachePath: filepath.Join(dir, "pdf_embeddings.cbor"), Kind: domain.KindPDF}

	emb := hashing.NewEmbedder(0)
	ix := index.NewIndexer(staticExtractor(rules), chunker.NewSentenceChunker(40), emb, index.DefaultOptions())
	idx, err := ix.LoadOrBuild(ctx, src)
	require.NoError(t, err)
	require.Equal(t, []domain.Document{
		{ID: "pdf_0", Text: "Fireballs deal 6 damage."},
		{ID: "pdf_1", Text: "Counterspells negate target spells."},
	}, idx.Documents())

	const question = "How much damage does a fireball do?"
	m, err := SearchBestDocument(ctx, emb, question, idx)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "pdf_0", m.Document.ID)
	assert.Equal(t, "Fireballs deal 6 damage.", m.Document.Text)

	reloaded, err := index.Load(src.CachePath)
	require.NoError(t, err)
	again, err := SearchBestDocument(ctx, emb, question, reloaded)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, m.Document, again.Document)
	assert.InDelta(t, m.Score, again.Score, 1e-12)
}
