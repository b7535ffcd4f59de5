// Package index embeds chunks into the vector store. Only chunks that are
// not stored yet are embedded, so repeated runs are cheap.
package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/lexgraph/backend/internal/util"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/ai"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/store"
)

const (
	defaultBatchSize = 32
	defaultParallel  = 4
)

type Indexer struct {
	aiClient  ai.GraphAIClient
	vectors   store.VectorStorage
	batchSize int
	parallel  int
}

// NewIndexerParams configures an Indexer. BatchSize is the number of
// chunks embedded and upserted together, Parallel bounds concurrent
// embedding requests for clients without batch support.
type NewIndexerParams struct {
	AI        ai.GraphAIClient
	Vectors   store.VectorStorage
	BatchSize int
	Parallel  int
}

func NewIndexer(params NewIndexerParams) (*Indexer, error) {
	if params.AI == nil {
		return nil, errors.New("ai client is required")
	}
	if params.Vectors == nil {
		return nil, errors.New("vector store is required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	parallel := params.Parallel
	if parallel <= 0 {
		parallel = defaultParallel
	}
	return &Indexer{
		aiClient:  params.AI,
		vectors:   params.Vectors,
		batchSize: batch,
		parallel:  parallel,
	}, nil
}

type Stats struct {
	Total    int
	Skipped  int
	Indexed  int
	Duration time.Duration
}

// Index embeds and stores every chunk whose id is not in the vector store.
// Batches already written stay written when a later batch fails.
func (ix *Indexer) Index(ctx context.Context, chunks []common.Chunk) (Stats, error) {
	start := time.Now()
	stats := Stats{Total: len(chunks)}

	existing, err := ix.vectors.ListChunkIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("list indexed chunks: %w", err)
	}

	missing := make([]common.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := existing[c.ID]; ok || c.Text == "" {
			stats.Skipped++
			continue
		}
		missing = append(missing, c)
	}
	logger.Info("[Index] Indexing chunks", "total", stats.Total, "missing", len(missing))

	err = store.ChunkRange(len(missing), ix.batchSize, func(from, to int) error {
		batch := missing[from:to]
		inputs := make([][]byte, len(batch))
		for i, c := range batch {
			inputs[i] = []byte(c.Text)
		}

		embeddings, err := store.GenerateEmbeddings(ctx, ix.aiClient, inputs, ix.parallel)
		if err != nil {
			return fmt.Errorf("embed chunks %d-%d: %w", from, to, err)
		}
		if len(embeddings) != len(batch) {
			return fmt.Errorf("embed chunks %d-%d: got %d embeddings", from, to, len(embeddings))
		}

		records := make([]common.VectorRecord, len(batch))
		for i, c := range batch {
			records[i] = Record(c, embeddings[i])
		}
		if err := ix.vectors.Upsert(ctx, records); err != nil {
			return fmt.Errorf("store chunks %d-%d: %w", from, to, err)
		}

		stats.Indexed += len(batch)
		logger.Info(
			"[Index] Progress",
			"indexed", stats.Indexed,
			"missing", len(missing),
			"elapsed", util.FormatClock(time.Since(start)),
		)
		return nil
	})

	stats.Duration = time.Since(start)
	return stats, err
}

// Record builds the vector record stored for c.
func Record(c common.Chunk, embedding []float32) common.VectorRecord {
	return common.VectorRecord{
		ChunkID: c.ID,
		Source:  c.Source,
		Text:    c.Text,
		Metadata: map[string]any{
			"source": c.Source,
			"index":  c.Index,
		},
		Embedding: embedding,
	}
}
