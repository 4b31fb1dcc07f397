package embedding

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func TestNormalize(t *testing.T) {
	v, err := Normalize(domain.Vector{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, v[0], 1e-12)
	assert.InDelta(t, 0.8, v[1], 1e-12)
	assert.True(t, IsUnit(v))

	_, err = Normalize(domain.Vector{0, 0})
	assert.ErrorIs(t, err, domain.ErrZeroVector)
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	in := domain.Vector{2, 0}
	_, err := Normalize(in)
	require.NoError(t, err)
	assert.Equal(t, domain.Vector{2, 0}, in)
}

func TestDot(t *testing.T) {
	got, err := Dot(domain.Vector{1, 2, 3}, domain.Vector{4, 5, 6})
	require.NoError(t, err)
	assert.InDelta(t, 32.0, got, 1e-12)

	_, err = Dot(domain.Vector{1}, domain.Vector{1, 2})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestEmbedInBatches_PreservesOrder(t *testing.T) {
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	var calls int32
	fn := func(_ context.Context, batch []string) ([]domain.Vector, error) {
		atomic.AddInt32(&calls, 1)
		out := make([]domain.Vector, len(batch))
		for i, s := range batch {
			out[i] = domain.Vector{float64(len(s))}
		}
		return out, nil
	}

	got, err := EmbedInBatches(context.Background(), texts, 2, 3, fn)
	require.NoError(t, err)
	require.Len(t, got, len(texts))
	for i, s := range texts {
		assert.Equal(t, float64(len(s)), got[i][0])
	}
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestEmbedInBatches_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	fn := func(_ context.Context, batch []string) ([]domain.Vector, error) {
		if strings.HasPrefix(batch[0], "bad") {
			return nil, boom
		}
		return make([]domain.Vector, len(batch)), nil
	}

	_, err := EmbedInBatches(context.Background(), []string{"ok", "bad"}, 1, 2, fn)
	assert.ErrorIs(t, err, boom)
}

func TestEmbedInBatches_ShortBatchIsAnError(t *testing.T) {
	fn := func(_ context.Context, batch []string) ([]domain.Vector, error) {
		return nil, nil
	}
	_, err := EmbedInBatches(context.Background(), []string{"x"}, 4, 1, fn)
	assert.ErrorIs(t, err, domain.ErrEmbedding)
}
