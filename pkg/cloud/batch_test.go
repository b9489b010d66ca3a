package cloud

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkSplitsIntoOrderedChunks(t *testing.T) {
	items := make([]int, 25)
	for i := range items {
		items[i] = i
	}

	chunks := Chunk(items, 10)
	require.Len(t, chunks, 3)
	require.Len(t, chunks[0], 10)
	require.Len(t, chunks[1], 10)
	require.Len(t, chunks[2], 5)

	var union []int
	for _, c := range chunks {
		union = append(union, c...)
	}
	require.Equal(t, items, union)
}

func TestChunkEmptyInput(t *testing.T) {
	require.Nil(t, Chunk([]string{}, 10))
}

func TestChunkNonPositiveSizeFallsBackToDefault(t *testing.T) {
	items := make([]int, DefaultBatchSize+1)
	chunks := Chunk(items, 0)
	require.Len(t, chunks, 2)
}
