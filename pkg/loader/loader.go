package loader

import (
	"context"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/lexgraph/backend/internal/util"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/common"
)

// ChunkSource yields the finite, ordered corpus of pre-split chunks. The same
// corpus always yields the same chunks in the same order.
type ChunkSource interface {
	Chunks(ctx context.Context) ([]common.Chunk, error)
}

const (
	chunkPrefix = "chunk_"
	chunkExt    = ".txt"
)

// ChunkFile is one chunk file found under a source.
type ChunkFile struct {
	Source string
	Name   string
	Index  int
}

// ChunkID returns the stable id of the chunk: "<source>_<file name>".
func ChunkID(source, name string) string {
	return source + "_" + name
}

// IsChunkFile reports whether name is a ".txt" file.
func IsChunkFile(name string) bool {
	return strings.EqualFold(path.Ext(name), chunkExt)
}

// ChunkIndex parses N from "chunk_<N>.txt". ok is false for other names.
func ChunkIndex(name string) (int, bool) {
	base := strings.TrimSuffix(name, path.Ext(name))
	num, found := strings.CutPrefix(base, chunkPrefix)
	if !found {
		return 0, false
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// NewChunkFile builds a ChunkFile. Files without a numeric suffix get
// index -1 and sort after numbered files by name.
func NewChunkFile(source, name string) ChunkFile {
	idx, ok := ChunkIndex(name)
	if !ok {
		idx = -1
	}
	return ChunkFile{Source: source, Name: name, Index: idx}
}

// SortChunkFiles orders files by source, then numerically by index, then by
// name.
func SortChunkFiles(files []ChunkFile) {
	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if (a.Index >= 0) != (b.Index >= 0) {
			return a.Index >= 0
		}
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.Name < b.Name
	})
}

// NewChunk builds the chunk for file with cleaned text.
func NewChunk(file ChunkFile, text []byte) common.Chunk {
	idx := file.Index
	if idx < 0 {
		idx = 0
	}
	return common.Chunk{
		ID:     ChunkID(file.Source, file.Name),
		Source: file.Source,
		Index:  idx,
		Text:   util.SanitizeText(string(text)),
	}
}
