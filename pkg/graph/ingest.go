package graph

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/OFFIS-RIT/lexgraph/backend/internal/util"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/metrics"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/telemetry"
)

// RunStats summarizes one ingestion run.
type RunStats struct {
	RunID         string
	Total         int
	Skipped       int
	Processed     int
	Entities      int
	Relationships int
	Errors        int
	Timeouts      int
	Duration      time.Duration
}

// Speed returns processed chunks per second.
func (s RunStats) Speed() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Processed) / s.Duration.Seconds()
}

type chunkResult struct {
	entities      int
	relationships int
}

// IngestChunk extracts and merges the entities and relationships of one
// chunk and returns the number of entities merged. A chunk without entities
// is a valid outcome and returns 0. Single write failures are logged and
// skipped; an error means the chunk must not be marked as processed.
func (i *Ingestor) IngestChunk(ctx context.Context, chunk common.Chunk) (int, error) {
	res, err := i.ingest(ctx, chunk)
	return res.entities, err
}

func (i *Ingestor) ingest(ctx context.Context, chunk common.Chunk) (res chunkResult, err error) {
	ctx, span := telemetry.Start(ctx, "graph.ingest_chunk", attribute.String("chunk.id", chunk.ID))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[Graph] Recovered panic while ingesting chunk", "chunk_id", chunk.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrChunkPanic, r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(
			attribute.Int("graph.entities", res.entities),
			attribute.Int("graph.relationships", res.relationships),
		)
		span.End()
	}()

	if err := ctx.Err(); err != nil {
		return res, err
	}

	entities := i.extractor.Extract(chunk.Text, chunk.ID)
	if len(entities) == 0 {
		return res, nil
	}

	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		if err := i.store.MergeEntity(ctx, e); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			logger.Warn("[Graph] Failed to merge entity", "chunk_id", chunk.ID, "entity_id", e.ID, "err", err)
			i.metrics.RecordWriteFailure("entity")
			continue
		}
		ids = append(ids, e.ID)
		res.entities++
	}

	rels, err := i.extractRelationships(ctx, chunk, entities)
	if err != nil {
		return res, err
	}
	if i.policy.InferContainment {
		rels = mergeRelationships(rels, InferContainment(entities))
	}

	for _, rel := range rels {
		merged, err := i.store.MergeRelationship(ctx, rel)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			logger.Warn("[Graph] Failed to merge relationship", "chunk_id", chunk.ID, "source", rel.SourceID, "type", rel.Type, "target", rel.TargetID, "err", err)
			i.metrics.RecordWriteFailure("relationship")
			continue
		}
		if !merged {
			logger.Warn("[Graph] Relationship endpoint missing", "chunk_id", chunk.ID, "source", rel.SourceID, "type", rel.Type, "target", rel.TargetID)
			i.metrics.RecordWriteFailure("relationship")
			continue
		}
		res.relationships++
	}

	if err := i.store.MergeChunkLink(ctx, chunk, ids); err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		logger.Warn("[Graph] Failed to link chunk", "chunk_id", chunk.ID, "err", err)
		i.metrics.RecordWriteFailure("chunk")
	}

	i.metrics.RecordMerges(res.entities, res.relationships)
	return res, nil
}

func (i *Ingestor) extractRelationships(ctx context.Context, chunk common.Chunk, entities []common.Entity) ([]common.Relationship, error) {
	tCtx, cancel := context.WithTimeout(ctx, i.chunkTimeout)
	defer cancel()

	rels, err := util.RetryWithContext(tCtx, i.maxRetries, func(ctx context.Context) ([]common.Relationship, error) {
		return i.relationships.Extract(ctx, chunk.Text, entities)
	})
	if err != nil {
		if ctx.Err() == nil && tCtx.Err() != nil {
			return nil, fmt.Errorf("%w after %s: %v", ErrChunkTimeout, i.chunkTimeout, err)
		}
		return nil, fmt.Errorf("failed to extract relationships: %w", err)
	}
	return rels, nil
}

// Run ingests every chunk not yet recorded in the checkpoint. Chunk failures
// are counted and do not stop the run. After each finished chunk the
// checkpoint is saved. When ctx is canceled the run stops starting new
// chunks, persists the progress made so far and returns ctx's error.
func (i *Ingestor) Run(ctx context.Context, chunks []common.Chunk) (RunStats, error) {
	if i.checkpoint == nil {
		return RunStats{}, errors.New("checkpoint store is required")
	}

	start := time.Now()
	stats := RunStats{RunID: uuid.NewString(), Total: len(chunks)}

	ctx, span := telemetry.Start(ctx, "graph.run",
		attribute.String("run.id", stats.RunID),
		attribute.Int("run.total", stats.Total),
	)
	defer span.End()

	processed, err := i.checkpoint.Load(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	i.metrics.SetCheckpointSize(len(processed))

	pending := make([]common.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := processed[c.ID]; ok {
			stats.Skipped++
			i.metrics.RecordChunk(metrics.ChunkSkipped, 0)
			continue
		}
		pending = append(pending, c)
	}

	logger.Info("[Graph] Starting ingestion",
		"run_id", stats.RunID,
		"total", stats.Total,
		"skipped", stats.Skipped,
		"pending", len(pending),
		"concurrency", i.concurrency,
	)

	runCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	done := make(chan string)
	saveErr := make(chan error, 1)
	go func() {
		saveErr <- i.ownProgress(ctx, processed, done, abort)
	}()

	var mu sync.Mutex
	finished := 0
	eg, gCtx := errgroup.WithContext(runCtx)
	eg.SetLimit(i.concurrency)
	for _, chunk := range pending {
		if gCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			chunkStart := time.Now()
			res, err := i.ingest(gCtx, chunk)
			elapsed := time.Since(chunkStart)

			mu.Lock()
			finished++
			switch {
			case err == nil:
				stats.Processed++
				stats.Entities += res.entities
				stats.Relationships += res.relationships
				i.metrics.RecordChunk(metrics.ChunkProcessed, elapsed)
			case errors.Is(err, ErrChunkTimeout):
				stats.Timeouts++
				stats.Errors++
				i.metrics.RecordChunk(metrics.ChunkTimeout, elapsed)
			case gCtx.Err() != nil:
				// run is stopping, the chunk is retried next time
			default:
				stats.Errors++
				i.metrics.RecordChunk(metrics.ChunkError, elapsed)
			}
			progress := finished
			mu.Unlock()

			if err != nil {
				if gCtx.Err() == nil {
					logger.Error("[Graph] Chunk failed", "chunk_id", chunk.ID, "err", err)
				}
				return nil
			}

			done <- chunk.ID
			logProgress(chunk.ID, res, progress, len(pending), time.Since(start))
			return nil
		})
	}
	_ = eg.Wait()
	close(done)

	persistErr := <-saveErr
	stats.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("run.processed", stats.Processed),
		attribute.Int("run.errors", stats.Errors),
	)

	logger.Info("[Graph] Ingestion finished",
		"run_id", stats.RunID,
		"processed", stats.Processed,
		"skipped", stats.Skipped,
		"entities", stats.Entities,
		"relationships", stats.Relationships,
		"errors", stats.Errors,
		"timeouts", stats.Timeouts,
		"duration", util.FormatClock(stats.Duration),
		"speed", fmt.Sprintf("%.2f chunks/s", stats.Speed()),
	)

	if persistErr != nil {
		span.SetStatus(codes.Error, persistErr.Error())
		return stats, persistErr
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

const checkpointSaveTries = 2

// ownProgress is the only writer of the processed set. It saves the
// checkpoint after every finished chunk and once more when done is closed.
// A failed save is retried once; if that fails too the run is aborted and
// the error returned.
func (i *Ingestor) ownProgress(
	ctx context.Context,
	processed map[string]struct{},
	done <-chan string,
	abort context.CancelCauseFunc,
) error {
	saveCtx := context.WithoutCancel(ctx)
	var fatal error

	save := func() error {
		attempt := 0
		return util.RetryErrWithContext(saveCtx, checkpointSaveTries, func(ctx context.Context) error {
			attempt++
			err := i.checkpoint.Save(ctx, processed)
			if err != nil && attempt < checkpointSaveTries {
				logger.Warn("[Checkpoint] Save failed, retrying", "attempt", attempt, "err", err)
			}
			return err
		})
	}

	for id := range done {
		processed[id] = struct{}{}
		i.metrics.SetCheckpointSize(len(processed))
		if fatal != nil {
			continue
		}
		if err := save(); err != nil {
			fatal = fmt.Errorf("failed to persist checkpoint: %w", err)
			logger.Error("[Checkpoint] Aborting run", "err", err)
			abort(fatal)
		}
	}
	if fatal != nil {
		return fatal
	}

	if ctx.Err() != nil {
		if err := save(); err != nil {
			return fmt.Errorf("failed to persist checkpoint: %w", err)
		}
		logger.Info("[Checkpoint] Progress flushed", "processed", len(processed))
	}
	return nil
}

func logProgress(chunkID string, res chunkResult, finished, total int, elapsed time.Duration) {
	if !logger.Enabled() {
		return
	}
	speed := 0.0
	if elapsed > 0 {
		speed = float64(finished) / elapsed.Seconds()
	}
	eta := time.Duration(0)
	if speed > 0 {
		eta = time.Duration(float64(total-finished)/speed) * time.Second
	}

	logger.Info("[Graph] Chunk ingested",
		"chunk_id", chunkID,
		"progress", fmt.Sprintf("%d/%d", finished, total),
		"entities", res.entities,
		"relationships", res.relationships,
		"speed", fmt.Sprintf("%.2f chunks/s", speed),
		"eta", util.FormatClock(eta),
	)
}
