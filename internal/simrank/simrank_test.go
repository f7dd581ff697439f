package simrank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(path string, lines []string, vectors [][]float32) Document {
	return Document{Path: path, Lines: lines, Embeddings: vectors}
}

func TestCosineDistance_IdenticalVectorIsZero(t *testing.T) {
	d, ok := CosineDistance([]float32{1, 2, 3}, []float32{1, 2, 3})
	require.True(t, ok)
	assert.InDelta(t, 0, d, 1e-6)
}

func TestCosineDistance_OppositeVectorsIsTwo(t *testing.T) {
	d, ok := CosineDistance([]float32{1, 0}, []float32{-1, 0})
	require.True(t, ok)
	assert.InDelta(t, 2, d, 1e-6)
}

func TestCosineDistance_ZeroNormVectorIsUndefined(t *testing.T) {
	_, ok := CosineDistance([]float32{0, 0, 0}, []float32{1, 2, 3})
	assert.False(t, ok)
}

func TestRank_SortedByAscendingDistance(t *testing.T) {
	documents := []Document{
		doc("a.md", []string{"x", "y", "z"}, [][]float32{
			{0, 1, 0},
			{1, 0, 0},
			{-1, 0, 0},
		}),
	}

	results := Rank(documents, []float32{1, 0, 0}, Config{NLines: 0, TopK: 10})

	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}
	assert.Equal(t, 1, results[0].MatchLine)
}

func TestRank_TopKLimitsResultsWhenNoThreshold(t *testing.T) {
	documents := []Document{
		doc("a.md", []string{"1", "2", "3", "4", "5"}, [][]float32{
			{1, 0}, {1, 0}, {1, 0}, {1, 0}, {1, 0},
		}),
	}

	results := Rank(documents, []float32{1, 0}, Config{TopK: 2})
	assert.Len(t, results, 2)
}

func TestRank_MaxDistanceWinsOverTopK(t *testing.T) {
	documents := []Document{
		doc("a.md", []string{"1", "2", "3"}, [][]float32{
			{1, 0}, {1, 0}, {1, 0},
		}),
	}

	threshold := 1.5
	results := Rank(documents, []float32{1, 0}, Config{TopK: 1, MaxDistance: &threshold})

	assert.Len(t, results, 3, "max_distance must return every match under threshold, ignoring top_k")
}

func TestRank_MaxDistanceExcludesFarMatches(t *testing.T) {
	documents := []Document{
		doc("a.md", []string{"near", "far"}, [][]float32{
			{1, 0},
			{0, 1},
		}),
	}

	threshold := 0.5
	results := Rank(documents, []float32{1, 0}, Config{MaxDistance: &threshold})

	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].MatchLine)
}

func TestRank_MaxDistanceBoundaryIsExclusive(t *testing.T) {
	documents := []Document{
		doc("a.md", []string{"at-threshold", "inside"}, [][]float32{
			{0, 1},
			{1, 0},
		}),
	}

	threshold := 1.0
	results := Rank(documents, []float32{1, 0}, Config{MaxDistance: &threshold})

	require.Len(t, results, 1, "a match with distance == max_distance must be excluded, not just distance > max_distance")
	assert.Equal(t, "inside", results[0].Lines[results[0].MatchLine-results[0].Start])
}

func TestRank_ContextWindowClampedToNLines(t *testing.T) {
	documents := []Document{
		doc("a.md", []string{"0", "1", "2", "3", "4", "5"}, [][]float32{
			{0, 1}, {0, 1}, {1, 0}, {0, 1}, {0, 1}, {0, 1},
		}),
	}

	results := Rank(documents, []float32{1, 0}, Config{NLines: 1, TopK: 1})

	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].MatchLine)
	assert.Equal(t, 1, results[0].Start)
	assert.Equal(t, 4, results[0].End)
	assert.Equal(t, []string{"1", "2", "3"}, results[0].Lines)
}

func TestRank_ContextWindowClampedAtFileBoundaries(t *testing.T) {
	documents := []Document{
		doc("small.txt", []string{"first", "second"}, [][]float32{
			{1, 0},
			{0, 1},
		}),
	}

	results := Rank(documents, []float32{1, 0}, Config{NLines: 5, TopK: 1})

	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Start)
	assert.Equal(t, 2, results[0].End)
	assert.Len(t, results[0].Lines, 2)
}

func TestRank_ZeroNormLineIsSkipped(t *testing.T) {
	documents := []Document{
		doc("a.md", []string{"dead", "alive"}, [][]float32{
			{0, 0},
			{1, 0},
		}),
	}

	results := Rank(documents, []float32{1, 0}, Config{TopK: 10})

	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].MatchLine)
}

func TestRank_SearchesAcrossMultipleDocuments(t *testing.T) {
	documents := []Document{
		doc("file1.txt", []string{"apple"}, [][]float32{{1, 0}}),
		doc("file2.txt", []string{"orange"}, [][]float32{{1, 0}}),
	}

	results := Rank(documents, []float32{1, 0}, Config{TopK: 10})

	var paths []string
	for _, r := range results {
		paths = append(paths, r.Path)
	}
	assert.Contains(t, paths, "file1.txt")
	assert.Contains(t, paths, "file2.txt")
}

func TestRank_EmptyDocumentsReturnsEmpty(t *testing.T) {
	results := Rank(nil, []float32{1, 0}, Config{TopK: 10})
	assert.Empty(t, results)
}

func TestRank_TiesPreserveStableOrder(t *testing.T) {
	documents := []Document{
		doc("a.md", []string{"x", "y"}, [][]float32{
			{1, 0},
			{1, 0},
		}),
	}

	results := Rank(documents, []float32{1, 0}, Config{TopK: 10})

	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].MatchLine)
	assert.Equal(t, 1, results[1].MatchLine)
}
