package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/OFFIS-RIT/lexgraph/backend/internal/db"
	"github.com/OFFIS-RIT/lexgraph/backend/internal/queue"
	"github.com/OFFIS-RIT/lexgraph/backend/internal/setup"
	"github.com/OFFIS-RIT/lexgraph/backend/internal/util"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/ai"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/checkpoint"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/graph"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/index"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/leaselock"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/loader"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/metrics"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/store/neo4j"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
)

type worker struct {
	aiClient   ai.GraphAIClient
	graph      *neo4j.GraphStorage
	pool       *pgxpool.Pool
	locks      *leaselock.Client
	checkpoint checkpoint.Store
	source     loader.ChunkSource
	ingestor   *graph.Ingestor
}

func newWorker(ctx context.Context) (*worker, error) {
	objects := &setup.Objects{}
	w := &worker{}

	aiClient, err := setup.AIClient()
	if err != nil {
		return nil, err
	}
	w.aiClient = aiClient

	w.graph, err = setup.GraphStore()
	if err != nil {
		return nil, err
	}
	if err := w.graph.Verify(ctx); err != nil {
		w.Close()
		return nil, fmt.Errorf("graph store unreachable: %w", err)
	}
	if err := w.graph.EnsureSchema(ctx); err != nil {
		w.Close()
		return nil, err
	}

	if dbURL := util.GetEnv("DATABASE_URL"); dbURL != "" {
		if err := db.Migrate(dbURL, util.GetEnvString("MIGRATIONS_PATH", db.DefaultMigrationsPath)); err != nil {
			w.Close()
			return nil, err
		}
		w.pool, err = db.Connect(ctx, dbURL)
		if err != nil {
			w.Close()
			return nil, err
		}
		w.locks = leaselock.New(w.pool)
	} else {
		logger.Warn("DATABASE_URL is not set, running without lease lock and vector index")
	}

	if w.checkpoint, err = setup.Checkpoint(ctx, objects); err != nil {
		w.Close()
		return nil, err
	}
	if w.source, err = setup.ChunkSource(ctx, objects); err != nil {
		w.Close()
		return nil, err
	}

	policy, err := setup.Policy()
	if err != nil {
		w.Close()
		return nil, err
	}
	w.ingestor, err = graph.NewIngestor(graph.NewIngestorParams{
		Store:        w.graph,
		AI:           aiClient,
		Checkpoint:   w.checkpoint,
		Metrics:      metrics.Default(),
		Policy:       &policy,
		Concurrency:  util.GetEnvInt("INGEST_CONCURRENCY", 1),
		ChunkTimeout: util.GetEnvDuration("INGEST_CHUNK_TIMEOUT", 300*time.Second),
	})
	if err != nil {
		w.Close()
		return nil, err
	}

	return w, nil
}

func (w *worker) Close() {
	if w.pool != nil {
		w.pool.Close()
	}
	if w.graph != nil {
		_ = w.graph.Close(context.Background())
	}
}

// withLease runs fn as the only writer. Without a database there is no
// lock to take and fn runs directly.
func (w *worker) withLease(ctx context.Context, wait bool, fn func(ctx context.Context) error) error {
	if w.locks == nil {
		return fn(ctx)
	}
	host, _ := os.Hostname()
	return w.locks.WithLease(ctx, leaselock.IngestKey, leaselock.Options{
		Owner: host + "-",
		Wait:  wait,
	}, fn)
}

func (w *worker) ingest(ctx context.Context, msg queue.IngestMessage) error {
	return w.ingestPass(ctx, msg, false)
}

func (w *worker) ingestPass(ctx context.Context, msg queue.IngestMessage, wait bool) error {
	return w.withLease(ctx, wait, func(ctx context.Context) error {
		chunks, err := w.source.Chunks(ctx)
		if err != nil {
			return err
		}
		chunks = msg.Filter(chunks)
		logger.Info("Starting ingestion", "chunks", len(chunks), "sources", msg.Sources, "reason", msg.Reason)

		stats, runErr := w.ingestor.Run(ctx, chunks)
		logger.Info(
			"Ingestion finished",
			"run", stats.RunID,
			"total", stats.Total,
			"skipped", stats.Skipped,
			"processed", stats.Processed,
			"entities", stats.Entities,
			"relationships", stats.Relationships,
			"errors", stats.Errors,
			"timeouts", stats.Timeouts,
			"duration", util.FormatClock(stats.Duration),
			"chunks_per_sec", fmt.Sprintf("%.2f", stats.Speed()),
		)
		w.logAIMetrics()

		if err := w.printStats(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Could not read graph statistics", "err", err)
		}
		return runErr
	})
}

func (w *worker) index(ctx context.Context, msg queue.IngestMessage, reindex bool) error {
	if w.pool == nil {
		return errors.New("indexing needs DATABASE_URL")
	}
	vectors := pgx.NewVectorStorage(w.pool)
	indexer, err := index.NewIndexer(index.NewIndexerParams{
		AI:       w.aiClient,
		Vectors:  vectors,
		Parallel: util.GetEnvInt("AI_PARALLEL_REQ", 1),
	})
	if err != nil {
		return err
	}

	return w.withLease(ctx, false, func(ctx context.Context) error {
		if reindex {
			logger.Info("Dropping stored vectors")
			if err := vectors.Clear(ctx); err != nil {
				return err
			}
		}
		chunks, err := w.source.Chunks(ctx)
		if err != nil {
			return err
		}
		stats, err := indexer.Index(ctx, msg.Filter(chunks))
		logger.Info(
			"Indexing finished",
			"total", stats.Total,
			"skipped", stats.Skipped,
			"indexed", stats.Indexed,
			"duration", util.FormatClock(stats.Duration),
		)
		w.logAIMetrics()
		return err
	})
}

func (w *worker) clear(ctx context.Context) error {
	return w.withLease(ctx, false, func(ctx context.Context) error {
		if err := w.graph.Clear(ctx); err != nil {
			return err
		}
		if err := checkpoint.Clear(ctx, w.checkpoint); err != nil {
			return err
		}
		logger.Info("Graph and checkpoint cleared")
		return nil
	})
}

func (w *worker) printStats(ctx context.Context) error {
	stats, err := w.graph.Stats(ctx)
	if err != nil {
		return err
	}
	logger.Info("Graph statistics", "nodes", stats.Nodes, "relationships", stats.Relationships)
	for _, l := range stats.Labels {
		logger.Info("  label", "label", l.Label, "count", l.Count)
	}
	return nil
}

// listen consumes the ingest queue until ctx is done. Each message runs one
// ingestion pass; the lease is waited for so queued runs do not fail while
// a CLI run holds it.
func (w *worker) listen(ctx context.Context) error {
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.IngestQueue); err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		queue.IngestQueue,
		"lexgraph_worker",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue.IngestQueue, err)
	}

	logger.Info("Listening for messages", "queue", queue.IngestQueue)
	err = queue.Consume(ctx, ch, deliveries, queue.IngestQueue, func(ctx context.Context, msg queue.IngestMessage) error {
		return w.ingestPass(ctx, msg, true)
	})
	if errors.Is(err, queue.ErrDeliveriesClosed) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (w *worker) logAIMetrics() {
	m := w.aiClient.GetMetrics()
	logger.Info(
		"AI Metrics",
		"requests", m.Requests,
		"input_tokens", m.InputTokens,
		"output_tokens", m.OutputTokens,
		"total_tokens", m.TotalTokens,
		"duration", util.FormatClock(time.Duration(m.DurationMs)*time.Millisecond),
	)
	w.aiClient.ResetMetrics()
}
