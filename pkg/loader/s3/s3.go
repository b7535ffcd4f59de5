// Package s3 reads chunks from an S3 bucket laid out as
// <prefix>/<source>/chunk_<N>.txt.
package s3

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/lexgraph/backend/internal/storage"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/loader"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const parallelDownloads = 8

// BucketChunkSource loads chunks from S3 or any S3-compatible store.
type BucketChunkSource struct {
	client storage.API
	bucket string
	prefix string
}

var _ loader.ChunkSource = (*BucketChunkSource)(nil)

// NewBucketChunkSource returns a source listing bucket under prefix.
func NewBucketChunkSource(client storage.API, bucket, prefix string) *BucketChunkSource {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &BucketChunkSource{client: client, bucket: bucket, prefix: prefix}
}

// Chunks lists keys of the form <prefix><source>/<file>.txt and downloads
// them in the same order the filesystem source uses.
func (s *BucketChunkSource) Chunks(ctx context.Context) ([]common.Chunk, error) {
	keys, err := storage.ListFilesWithPrefix(ctx, s.client, s.bucket, s.prefix)
	if err != nil {
		return nil, err
	}

	files := make([]loader.ChunkFile, 0, len(keys))
	for _, key := range keys {
		rel := strings.TrimPrefix(key, s.prefix)
		source, name, ok := strings.Cut(rel, "/")
		if !ok || source == "" || strings.Contains(name, "/") || !loader.IsChunkFile(name) {
			continue
		}
		files = append(files, loader.NewChunkFile(source, name))
	}
	loader.SortChunkFiles(files)

	chunks := make([]common.Chunk, len(files))
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(parallelDownloads)
	for i, f := range files {
		eg.Go(func() error {
			data, err := storage.GetFile(gCtx, s.client, s.bucket, s.prefix+f.Source+"/"+f.Name)
			if err != nil {
				return fmt.Errorf("download chunk %s/%s: %w", f.Source, f.Name, err)
			}
			chunks[i] = loader.NewChunk(f, data)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	logger.Debug("[Loader] Loaded chunks from bucket", "bucket", s.bucket, "prefix", s.prefix, "chunks", len(chunks))
	return chunks, nil
}
