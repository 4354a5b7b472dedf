package hashing

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewrag/internal/domain"
)

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func TestEmbed_Deterministic(t *testing.T) {
	e := NewEmbedder()
	ctx := context.Background()
	v1, err := e.Embed(ctx, "Great tacos and friendly staff")
	require.NoError(t, err)
	v2, err := NewEmbedder().Embed(ctx, "Great tacos and friendly staff")
	require.NoError(t, err)

	assert.Len(t, v1, DefaultDimension)
	assert.Equal(t, v1, v2)
	assert.InDelta(t, 1.0, math.Sqrt(dot(v1, v1)), 1e-9)
}

func TestEmbed_EmptyTextIsZeroVector(t *testing.T) {
	e := NewEmbedder(WithDimension(16))
	for _, text := range []string{"", "   ", "the and of", "!!!"} {
		v, err := e.Embed(context.Background(), text)
		require.NoError(t, err, "text %q", text)
		assert.Len(t, v, 16)
		assert.Zero(t, dot(v, v))
	}
}

func TestEmbed_SimilarTextsScoreHigher(t *testing.T) {
	e := NewEmbedder()
	ctx := context.Background()
	q, _ := e.Embed(ctx, "spicy tacos")
	near, _ := e.Embed(ctx, "The tacos were really spicy")
	far, _ := e.Embed(ctx, "Parking was difficult downtown")

	assert.Greater(t, dot(q, near), dot(q, far))
	assert.GreaterOrEqual(t, dot(q, far), 0.0)
}

func TestEmbed_RejectsOversizedInput(t *testing.T) {
	e := NewEmbedder(WithMaxInputRunes(10))
	_, err := e.Embed(context.Background(), strings.Repeat("a", 11))
	assert.ErrorIs(t, err, domain.ErrEmbedding)

	_, err = e.EmbedBatch(context.Background(), []string{"ok", strings.Repeat("b", 11)})
	assert.ErrorIs(t, err, domain.ErrEmbedding)
}

func TestEmbedBatch(t *testing.T) {
	e := NewEmbedder(WithDimension(32))
	out, err := e.EmbedBatch(context.Background(), []string{"one", "", "two"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	single, _ := e.Embed(context.Background(), "two")
	assert.Equal(t, single, out[2])
}

func TestNameAndDimension(t *testing.T) {
	e := NewEmbedder(WithDimension(0))
	assert.Equal(t, "hashing", e.Name())
	assert.Equal(t, DefaultDimension, e.Dimension())
}
