// Package graph turns chunks of legal text into a knowledge graph: pattern
// extraction of entities, LLM extraction of relationships between them and
// idempotent merges into the graph store, tracked by a resumable checkpoint.
package graph

import (
	"errors"
	"time"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/ai"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/checkpoint"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/metrics"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/store"
)

const (
	defaultChunkTimeout = 300 * time.Second
	defaultMaxRetries   = 3
)

var (
	// ErrChunkTimeout is returned when relationship extraction for a chunk
	// exceeds the chunk timeout.
	ErrChunkTimeout = errors.New("chunk timed out")
	// ErrChunkPanic is returned when ingesting a chunk panicked.
	ErrChunkPanic = errors.New("chunk ingestion panicked")
)

// Ingestor is the graph construction pipeline. It extracts entities and
// relationships from chunks and merges them into the graph store.
//
// An Ingestor should be created using NewIngestor.
type Ingestor struct {
	store      store.GraphStorage
	checkpoint checkpoint.Store
	metrics    *metrics.Metrics

	extractor     *Extractor
	relationships *RelationshipExtractor
	policy        NormalizationPolicy

	concurrency  int
	chunkTimeout time.Duration
	maxRetries   int
}

// NewIngestorParams defines the configuration parameters for creating a new
// Ingestor.
//
// Store and AI are required. Checkpoint is only needed for Run.
// Concurrency controls how many chunks are ingested in parallel.
// ChunkTimeout bounds relationship extraction per chunk.
// MaxRetries bounds retries of failed relationship completions.
// A zero Policy is replaced by DefaultPolicy.
type NewIngestorParams struct {
	Store      store.GraphStorage
	AI         ai.GraphAIClient
	Checkpoint checkpoint.Store
	Metrics    *metrics.Metrics
	Policy     *NormalizationPolicy

	Concurrency  int
	ChunkTimeout time.Duration
	MaxRetries   int
}

// NewIngestor creates and returns a new Ingestor configured with the
// provided parameters.
//
// Example:
//
//	params := graph.NewIngestorParams{
//		Store:        graphStore,
//		AI:           aiClient,
//		Checkpoint:   checkpoint.NewFileStore("progress.json"),
//		Concurrency:  2,
//		ChunkTimeout: 5 * time.Minute,
//	}
//	ingestor, err := graph.NewIngestor(params)
//	if err != nil {
//		log.Fatal(err)
//	}
func NewIngestor(params NewIngestorParams) (*Ingestor, error) {
	if params.Store == nil {
		return nil, errors.New("graph store is required")
	}
	if params.AI == nil {
		return nil, errors.New("ai client is required")
	}

	policy := DefaultPolicy()
	if params.Policy != nil {
		policy = *params.Policy
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	timeout := params.ChunkTimeout
	if timeout <= 0 {
		timeout = defaultChunkTimeout
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	return &Ingestor{
		store:         params.Store,
		checkpoint:    params.Checkpoint,
		metrics:       params.Metrics,
		extractor:     NewExtractor(policy),
		relationships: NewRelationshipExtractor(params.AI),
		policy:        policy,
		concurrency:   concurrency,
		chunkTimeout:  timeout,
		maxRetries:    maxRetries,
	}, nil
}
