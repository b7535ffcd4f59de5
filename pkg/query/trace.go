package query

import (
	"sort"
	"sync"
)

type TraceEventKind string

const (
	TraceEventRetrievedChunkIDs TraceEventKind = "retrieved_chunk_ids"
	TraceEventGraphQuery        TraceEventKind = "graph_query"
	TraceEventGraphRows         TraceEventKind = "graph_rows"
)

// TraceEvent is an extensible event envelope for query tracing.
type TraceEvent struct {
	Kind TraceEventKind

	ChunkIDs []string
	Mode     string
	Query    string
	Rows     int
}

// Tracer is a sink for query tracing events.
//
// Implementers can forward events to logs, telemetry, or custom post-processing
// pipelines.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

func RecordRetrievedChunkIDs(t Tracer, ids ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventRetrievedChunkIDs, ChunkIDs: ids})
}

func RecordGraphQuery(t Tracer, mode, query string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventGraphQuery, Mode: mode, Query: query})
}

func RecordGraphRows(t Tracer, rows int) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventGraphRows, Rows: rows})
}

// QueryTrace collects which chunks and graph queries contributed to an
// answer.
//
// QueryTrace is safe for concurrent use.
type QueryTrace struct {
	mu sync.Mutex

	retrievedChunkIDs map[string]struct{}
	graphQueries      []string
	graphMode         string
	graphRows         int
}

type QueryTraceSnapshot struct {
	RetrievedChunkIDs []string `json:"retrieved_chunk_ids"`
	GraphMode         string   `json:"graph_mode,omitempty"`
	GraphQueries      []string `json:"graph_queries,omitempty"`
	GraphRows         int      `json:"graph_rows"`
}

func NewQueryTrace() *QueryTrace {
	return &QueryTrace{
		retrievedChunkIDs: make(map[string]struct{}),
	}
}

func (t *QueryTrace) Record(event TraceEvent) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Kind {
	case TraceEventRetrievedChunkIDs:
		for _, id := range event.ChunkIDs {
			if id == "" {
				continue
			}
			t.retrievedChunkIDs[id] = struct{}{}
		}
	case TraceEventGraphQuery:
		t.graphMode = event.Mode
		if event.Query != "" {
			t.graphQueries = append(t.graphQueries, event.Query)
		}
	case TraceEventGraphRows:
		t.graphRows += event.Rows
	default:
		return
	}
}

func (t *QueryTrace) Snapshot() QueryTraceSnapshot {
	if t == nil {
		return QueryTraceSnapshot{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s := QueryTraceSnapshot{
		RetrievedChunkIDs: make([]string, 0, len(t.retrievedChunkIDs)),
		GraphMode:         t.graphMode,
		GraphQueries:      append([]string(nil), t.graphQueries...),
		GraphRows:         t.graphRows,
	}
	for id := range t.retrievedChunkIDs {
		s.RetrievedChunkIDs = append(s.RetrievedChunkIDs, id)
	}
	sort.Strings(s.RetrievedChunkIDs)

	return s
}
