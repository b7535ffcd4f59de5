// Package metrics provides Prometheus metrics for ingestion and serving.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Chunk outcomes recorded by the ingestor.
const (
	ChunkProcessed = "processed"
	ChunkSkipped   = "skipped"
	ChunkError     = "error"
	ChunkTimeout   = "timeout"
)

// Answer outcomes recorded by the synthesizer.
const (
	AnswerGenerated = "answered"
	AnswerFallback  = "fallback"
	AnswerError     = "error"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	ChunksTotal          *prometheus.CounterVec
	ChunkDuration        prometheus.Histogram
	EntitiesMerged       prometheus.Counter
	RelationshipsMerged  prometheus.Counter
	StoreWriteFailures   *prometheus.CounterVec
	CheckpointSize       prometheus.Gauge
	AnswersTotal         *prometheus.CounterVec
	AnswerDuration       prometheus.Histogram
	GraphContextRequests *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChunksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexgraph_ingest_chunks_total",
				Help: "Chunks handled by the ingestor by outcome",
			},
			[]string{"outcome"},
		),
		ChunkDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lexgraph_ingest_chunk_duration_seconds",
				Help:    "Time spent ingesting one chunk",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		EntitiesMerged: f.NewCounter(
			prometheus.CounterOpts{
				Name: "lexgraph_ingest_entities_merged_total",
				Help: "Entity merges sent to the graph store",
			},
		),
		RelationshipsMerged: f.NewCounter(
			prometheus.CounterOpts{
				Name: "lexgraph_ingest_relationships_merged_total",
				Help: "Relationship merges that matched both endpoints",
			},
		),
		StoreWriteFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexgraph_ingest_store_write_failures_total",
				Help: "Graph store writes that failed and were skipped",
			},
			[]string{"kind"},
		),
		CheckpointSize: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "lexgraph_ingest_checkpoint_chunks",
				Help: "Chunk ids recorded in the progress checkpoint",
			},
		),
		AnswersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexgraph_chat_answers_total",
				Help: "Answers produced by outcome",
			},
			[]string{"outcome"},
		),
		AnswerDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lexgraph_chat_answer_duration_seconds",
				Help:    "Time to produce an answer",
				Buckets: prometheus.DefBuckets,
			},
		),
		GraphContextRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexgraph_graph_context_requests_total",
				Help: "Graph context resolutions by mode and whether context was found",
			},
			[]string{"mode", "found"},
		),
	}
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns metrics registered with the default Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// RecordChunk records the outcome and duration of one chunk.
func (m *Metrics) RecordChunk(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ChunksTotal.WithLabelValues(outcome).Inc()
	if outcome != ChunkSkipped {
		m.ChunkDuration.Observe(duration.Seconds())
	}
}

// RecordMerges adds successful entity and relationship merges.
func (m *Metrics) RecordMerges(entities, relationships int) {
	if m == nil {
		return
	}
	m.EntitiesMerged.Add(float64(entities))
	m.RelationshipsMerged.Add(float64(relationships))
}

// RecordWriteFailure counts a skipped store write of kind.
func (m *Metrics) RecordWriteFailure(kind string) {
	if m == nil {
		return
	}
	m.StoreWriteFailures.WithLabelValues(kind).Inc()
}

// SetCheckpointSize records how many chunk ids are persisted.
func (m *Metrics) SetCheckpointSize(n int) {
	if m == nil {
		return
	}
	m.CheckpointSize.Set(float64(n))
}

// RecordAnswer records one answer.
func (m *Metrics) RecordAnswer(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.AnswersTotal.WithLabelValues(outcome).Inc()
	m.AnswerDuration.Observe(duration.Seconds())
}

// RecordGraphContext records one graph context resolution.
func (m *Metrics) RecordGraphContext(mode string, found bool) {
	if m == nil {
		return
	}
	f := "false"
	if found {
		f = "true"
	}
	m.GraphContextRequests.WithLabelValues(mode, f).Inc()
}
