package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

const upsertBatchSize = 500

const searchQuery = `SELECT chunk_id, source, text, metadata, 1 - (embedding <=> $1) AS score
FROM chunks
ORDER BY embedding <=> $1, chunk_id
LIMIT $2`

const upsertQuery = `INSERT INTO chunks (chunk_id, source, text, metadata, embedding)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (chunk_id) DO UPDATE
SET source = EXCLUDED.source,
    text = EXCLUDED.text,
    metadata = EXCLUDED.metadata,
    embedding = EXCLUDED.embedding,
    updated_at = now()`

// VectorStorage implements store.VectorStorage on PostgreSQL with pgvector.
// Similarity is cosine similarity, reported as 1 - cosine distance.
type VectorStorage struct {
	conn pgxIConn
}

var _ store.VectorStorage = (*VectorStorage)(nil)

// NewVectorStorage creates a VectorStorage using an existing connection or
// pool. The chunks table is created by the migrations.
func NewVectorStorage(conn pgxIConn) *VectorStorage {
	return &VectorStorage{conn: conn}
}

// Search returns the k chunks nearest to embedding. Equal distances are
// ordered by chunk id so results are stable across calls.
func (s *VectorStorage) Search(ctx context.Context, embedding []float32, k int) ([]common.VectorRecord, error) {
	if k <= 0 || len(embedding) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, searchQuery, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	out := make([]common.VectorRecord, 0, k)
	for rows.Next() {
		var rec common.VectorRecord
		if err := rows.Scan(&rec.ChunkID, &rec.Source, &rec.Text, &rec.Metadata, &rec.Score); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Upsert writes records in batches, one transaction per batch.
func (s *VectorStorage) Upsert(ctx context.Context, records []common.VectorRecord) error {
	return store.ChunkRange(len(records), upsertBatchSize, func(start, end int) error {
		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		batch := &pgxv5.Batch{}
		for _, rec := range records[start:end] {
			if rec.ChunkID == "" {
				return fmt.Errorf("vector record without chunk id")
			}
			metadata := rec.Metadata
			if metadata == nil {
				metadata = map[string]any{}
			}
			batch.Queue(upsertQuery, rec.ChunkID, rec.Source, rec.Text, metadata, pgvector.NewVector(rec.Embedding))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert chunks: %w", err)
		}

		logger.Debug("[Store] Upserted chunk vectors", "count", end-start)
		return tx.Commit(ctx)
	})
}

// ListChunkIDs returns the ids of every stored chunk.
func (s *VectorStorage) ListChunkIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.conn.Query(ctx, "SELECT chunk_id FROM chunks")
	if err != nil {
		return nil, err
	}
	ids, err := pgxv5.CollectRows(rows, pgxv5.RowTo[string])
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// Clear removes every stored chunk.
func (s *VectorStorage) Clear(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, "TRUNCATE chunks")
	return err
}
