// Package fs reads chunks from a directory tree laid out as
// <root>/<source>/chunk_<N>.txt.
package fs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/loader"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/logger"
)

// ErrRootMissing is returned when the chunk directory does not exist.
var ErrRootMissing = errors.New("chunk directory does not exist")

// DirChunkSource loads chunks from the local filesystem.
type DirChunkSource struct {
	root string
}

var _ loader.ChunkSource = (*DirChunkSource)(nil)

// NewDirChunkSource returns a source reading root.
func NewDirChunkSource(root string) *DirChunkSource {
	return &DirChunkSource{root: root}
}

// Chunks lists every source directory in lexicographic order and every
// chunk file within it in numeric order. Files at the top level and
// non-".txt" files are ignored.
func (s *DirChunkSource) Chunks(ctx context.Context) ([]common.Chunk, error) {
	info, err := os.Stat(s.root)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRootMissing, s.root)
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootMissing, s.root)
	}

	sources, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read chunk directory: %w", err)
	}

	files := make([]loader.ChunkFile, 0)
	for _, src := range sources {
		if !src.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.root, src.Name()))
		if err != nil {
			return nil, fmt.Errorf("read source %s: %w", src.Name(), err)
		}
		for _, e := range entries {
			if e.IsDir() || !loader.IsChunkFile(e.Name()) {
				continue
			}
			files = append(files, loader.NewChunkFile(src.Name(), e.Name()))
		}
	}
	loader.SortChunkFiles(files)

	chunks := make([]common.Chunk, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(s.root, f.Source, f.Name))
		if err != nil {
			return nil, fmt.Errorf("read chunk %s/%s: %w", f.Source, f.Name, err)
		}
		chunks = append(chunks, loader.NewChunk(f, data))
	}

	logger.Debug("[Loader] Loaded chunks", "root", s.root, "sources", len(sources), "chunks", len(chunks))
	return chunks, nil
}
