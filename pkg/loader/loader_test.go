package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkIndex(t *testing.T) {
	tests := []struct {
		name  string
		want  int
		valid bool
	}{
		{"chunk_12.txt", 12, true},
		{"chunk_0.txt", 0, true},
		{"chunk_x.txt", 0, false},
		{"notes.txt", 0, false},
	}
	for _, tc := range tests {
		got, ok := ChunkIndex(tc.name)
		assert.Equal(t, tc.valid, ok, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}
}

func TestSortChunkFiles_NumericWithinSource(t *testing.T) {
	files := []ChunkFile{
		NewChunkFile("code_travail", "chunk_10.txt"),
		NewChunkFile("code_civil", "chunk_2.txt"),
		NewChunkFile("code_travail", "annexe.txt"),
		NewChunkFile("code_travail", "chunk_2.txt"),
		NewChunkFile("code_civil", "chunk_1.txt"),
	}
	SortChunkFiles(files)

	got := make([]string, len(files))
	for i, f := range files {
		got[i] = ChunkID(f.Source, f.Name)
	}
	assert.Equal(t, []string{
		"code_civil_chunk_1.txt",
		"code_civil_chunk_2.txt",
		"code_travail_chunk_2.txt",
		"code_travail_chunk_10.txt",
		"code_travail_annexe.txt",
	}, got)
}

func TestNewChunk_SanitizesText(t *testing.T) {
	c := NewChunk(NewChunkFile("code", "chunk_3.txt"), []byte("Article 1\x00 du code"))
	assert.Equal(t, "code_chunk_3.txt", c.ID)
	assert.Equal(t, 3, c.Index)
	assert.Equal(t, "Article 1 du code", c.Text)
}
