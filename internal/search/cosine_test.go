package search

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/vdbload/client"
	vderrors "github.com/23skdu/vdbload/internal/errors"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, -1}, []float32{-1, 1}, -1},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 2, 3}, 0},
		{"empty", []float32{}, []float32{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-5)
		})
	}
}

func TestCosineSimilarity_DimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, vderrors.ErrValidation))
}

func TestBruteForce(t *testing.T) {
	corpus := []client.Vector{
		{ID: 1, Values: []float32{1, 0}},
		{ID: 2, Values: []float32{0, 1}},
		{ID: 3, Values: []float32{1, 1}},
		{ID: 4, Values: []float32{2, 0}},
		{ID: 5, Values: []float32{1, 0, 0}},
	}

	got := BruteForce(corpus, []float32{1, 0}, 3)
	require.Len(t, got, 3)

	// ids 1 and 4 tie at 1.0 and are ordered by id; 5 has the wrong dimension.
	assert.Equal(t, uint64(1), got[0].ID)
	assert.Equal(t, uint64(4), got[1].ID)
	assert.Equal(t, uint64(3), got[2].ID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-5)
	assert.InDelta(t, 0.7071, got[2].Score, 1e-3)

	assert.Len(t, BruteForce(corpus, []float32{1, 0}, 10), 4)
	assert.Nil(t, BruteForce(corpus, []float32{1, 0}, 0))
	assert.Nil(t, BruteForce(nil, []float32{1, 0}, 3))
}

func TestMergeMatches(t *testing.T) {
	a := []Match{{ID: 1, Score: 0.9}, {ID: 4, Score: 0.5}}
	b := []Match{{ID: 2, Score: 0.9}, {ID: 3, Score: 0.7}, {ID: 5, Score: 0.1}}

	assert.Equal(t, []Match{{ID: 1, Score: 0.9}, {ID: 2, Score: 0.9}, {ID: 3, Score: 0.7}}, MergeMatches(a, b, 3))
	assert.Equal(t, []Match{{ID: 1, Score: 0.9}, {ID: 2, Score: 0.9}}, MergeMatches(b, a, 2))
	assert.Len(t, MergeMatches(a, b, 10), 5)
	assert.Equal(t, a, MergeMatches(nil, a, 5))
	assert.Nil(t, MergeMatches(a, b, 0))
}
