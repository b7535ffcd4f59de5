package store

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/common"
)

// ErrUnknownLabel is returned when an entity type is not one of the known
// graph labels. Labels are placed into queries verbatim, so they are never
// taken from untrusted input without this check.
var ErrUnknownLabel = errors.New("unknown graph label")

// ArticleContext is one row of the fixed graph context query: an article and
// the chapter and title it belongs to, if known.
type ArticleContext struct {
	Title   string
	Chapter string
	Article string
	Content string
}

// GraphSchema describes what the graph currently contains. It is handed to
// the LLM when generating queries.
type GraphSchema struct {
	Labels            []string
	RelationshipTypes []string
	PropertyKeys      []string
}

// LabelCount is the number of nodes carrying one label.
type LabelCount struct {
	Label string
	Count int64
}

// GraphStats summarizes the graph for the worker's -stats output.
type GraphStats struct {
	Nodes         int64
	Relationships int64
	Labels        []LabelCount
}

// GraphStorage defines the interface for persisting and querying the legal
// knowledge graph. Every write is an idempotent merge: applying the same
// entity, relationship or chunk link twice leaves the graph unchanged.
type GraphStorage interface {
	Verify(ctx context.Context) error
	Close(ctx context.Context) error

	// MergeEntity creates the node keyed by entity id if absent. Properties
	// are only set on creation.
	MergeEntity(ctx context.Context, entity common.Entity) error
	// MergeRelationship creates the typed edge between two existing nodes.
	// It reports false when either endpoint does not exist.
	MergeRelationship(ctx context.Context, rel common.Relationship) (bool, error)
	// MergeChunkLink creates the chunk node and links every entity to it.
	MergeChunkLink(ctx context.Context, chunk common.Chunk, entityIDs []string) error

	FindArticles(ctx context.Context, keywords []string, limit int) ([]ArticleContext, error)
	Schema(ctx context.Context) (GraphSchema, error)
	// ReadQuery runs a query in a read-routed transaction and returns at
	// most limit rows.
	ReadQuery(ctx context.Context, query string, params map[string]any, limit int) ([]map[string]any, error)

	Stats(ctx context.Context) (GraphStats, error)
	Clear(ctx context.Context) error
}

// VectorStorage persists chunk embeddings and answers nearest-neighbour
// queries over them.
type VectorStorage interface {
	// Search returns the k records closest to embedding, most similar first.
	// Ties are broken by chunk id.
	Search(ctx context.Context, embedding []float32, k int) ([]common.VectorRecord, error)
	Upsert(ctx context.Context, records []common.VectorRecord) error
	ListChunkIDs(ctx context.Context) (map[string]struct{}, error)
	Clear(ctx context.Context) error
}
