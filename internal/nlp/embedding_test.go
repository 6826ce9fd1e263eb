package nlp

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"empty", nil, nil, 0},
		{"mismatched dims", []float32{1}, []float32{1, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestHashingEmbedder(t *testing.T) {
	e := NewHashingEmbedder(0)
	ctx := context.Background()

	t.Run("deterministic", func(t *testing.T) {
		a, err := e.Embed(ctx, []string{"book an appointment"})
		require.NoError(t, err)
		b, err := e.Embed(ctx, []string{"book an appointment"})
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("normalized", func(t *testing.T) {
		vecs, err := e.Embed(ctx, []string{"hello world"})
		require.NoError(t, err)
		var norm float64
		for _, v := range vecs[0] {
			norm += float64(v * v)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
	})

	t.Run("shared tokens score higher than disjoint", func(t *testing.T) {
		vecs, err := e.Embed(ctx, []string{
			"book appointment tomorrow",
			"book appointment today",
			"zebra quantum flux",
		})
		require.NoError(t, err)
		similar := CosineSimilarity(vecs[0], vecs[1])
		dissimilar := CosineSimilarity(vecs[0], vecs[2])
		assert.Greater(t, similar, dissimilar)
	})

	t.Run("empty input", func(t *testing.T) {
		vecs, err := e.Embed(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, vecs)
	})
}
