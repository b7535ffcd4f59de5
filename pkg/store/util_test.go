package store

import (
	"context"
	"errors"
	"testing"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/ai/aitest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkRange(t *testing.T) {
	var windows [][2]int
	err := ChunkRange(7, 3, func(start, end int) error {
		windows = append(windows, [2]int{start, end})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{0, 3}, {3, 6}, {6, 7}}, windows)

	boom := errors.New("boom")
	err = ChunkRange(4, 0, func(start, end int) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestDedupeStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, DedupeStrings([]string{"a", "", "b", "a"}))
	assert.Nil(t, DedupeStrings(nil))
}

func TestGenerateEmbeddings_FallsBackToSingleRequests(t *testing.T) {
	client := &aitest.Client{Dim: 2}
	out, err := GenerateEmbeddings(context.Background(), client, [][]byte{[]byte("a"), []byte("b")}, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Len(t, client.EmbedCalls, 2)
	assert.Equal(t, []float32{1, 0}, out[1])
}
