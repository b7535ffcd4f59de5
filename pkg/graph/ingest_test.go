package graph

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/ai/aitest"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/checkpoint"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/store/storetest"
)

type memCheckpoint struct {
	mu      sync.Mutex
	set     map[string]struct{}
	saves   int
	saveErr error
	// failSaves makes the next n saves fail with errTransientSave.
	failSaves int
}

var errTransientSave = errors.New("transient write error")

func newMemCheckpoint(ids ...string) *memCheckpoint {
	set := map[string]struct{}{}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return &memCheckpoint{set: set}
}

func (m *memCheckpoint) Load(ctx context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.set))
	for id := range m.set {
		out[id] = struct{}{}
	}
	return out, nil
}

func (m *memCheckpoint) Save(ctx context.Context, processed map[string]struct{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.failSaves > 0 {
		m.failSaves--
		return errTransientSave
	}
	if m.saveErr != nil {
		return m.saveErr
	}
	m.set = make(map[string]struct{}, len(processed))
	for id := range processed {
		m.set[id] = struct{}{}
	}
	return nil
}

func (m *memCheckpoint) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return checkpoint.Sorted(m.set)
}

func chunk(id, text string) common.Chunk {
	return common.Chunk{ID: id, Source: "code", Text: text}
}

const article1Relations = `[{"source_id":"article_1","relationship":"régit","target_id":"contrat_contrat"}]`

func newTestIngestor(t *testing.T, g *storetest.Graph, client *aitest.Client, cp checkpoint.Store, mod func(*NewIngestorParams)) *Ingestor {
	t.Helper()
	params := NewIngestorParams{Store: g, AI: client, Checkpoint: cp, MaxRetries: 1}
	if mod != nil {
		mod(&params)
	}
	ing, err := NewIngestor(params)
	require.NoError(t, err)
	return ing
}

func TestNewIngestor_RequiresDependencies(t *testing.T) {
	_, err := NewIngestor(NewIngestorParams{AI: &aitest.Client{}})
	assert.Error(t, err)
	_, err = NewIngestor(NewIngestorParams{Store: storetest.NewGraph()})
	assert.Error(t, err)
}

func TestIngestChunk_MergesGraph(t *testing.T) {
	g := storetest.NewGraph()
	client := &aitest.Client{Completion: article1Relations}
	ing := newTestIngestor(t, g, client, nil, nil)

	n, err := ing.IngestChunk(context.Background(), chunk("c1", "Article 1 : le contrat lie chaque personne."))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.True(t, g.HasEdge("article_1", "REGIT", "contrat_contrat"))
	assert.True(t, g.HasEdge("article_1", common.RelExtractedFrom, "chunk:c1"))
	assert.True(t, g.HasEdge("personne_personne", common.RelExtractedFrom, "chunk:c1"))
	assert.Equal(t, "Article 1 : le contrat lie chaque personne.", g.Nodes["article_1"].Props["content"])
}

func TestIngestChunk_Idempotent(t *testing.T) {
	g := storetest.NewGraph()
	client := &aitest.Client{Completion: article1Relations}
	ing := newTestIngestor(t, g, client, nil, nil)
	c := chunk("c1", "Article 1 : le contrat lie chaque personne.")

	_, err := ing.IngestChunk(context.Background(), c)
	require.NoError(t, err)
	nodes, edges := g.Counts()

	_, err = ing.IngestChunk(context.Background(), c)
	require.NoError(t, err)
	nodes2, edges2 := g.Counts()
	assert.Equal(t, nodes, nodes2)
	assert.Equal(t, edges, edges2)
}

func TestIngestChunk_NoEntities(t *testing.T) {
	g := storetest.NewGraph()
	client := &aitest.Client{}
	ing := newTestIngestor(t, g, client, nil, nil)

	n, err := ing.IngestChunk(context.Background(), chunk("c1", "Rien à signaler ici."))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, client.CallCount())
	nodes, _ := g.Counts()
	assert.Equal(t, 0, nodes)
}

func TestIngestChunk_EntityWriteFailureIsSkipped(t *testing.T) {
	g := storetest.NewGraph()
	g.EntityErr = func(e common.Entity) error {
		if e.ID == "personne_personne" {
			return errors.New("write failed")
		}
		return nil
	}
	ing := newTestIngestor(t, g, &aitest.Client{Completion: article1Relations}, nil, nil)

	n, err := ing.IngestChunk(context.Background(), chunk("c1", "Article 1 : le contrat lie chaque personne."))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, g.HasEdge("article_1", "REGIT", "contrat_contrat"))
	assert.False(t, g.HasEdge("personne_personne", common.RelExtractedFrom, "chunk:c1"))
}

func TestIngestChunk_InfersContainment(t *testing.T) {
	g := storetest.NewGraph()
	policy := DefaultPolicy()
	policy.InferContainment = true
	ing := newTestIngestor(t, g, &aitest.Client{Completion: "[]"}, nil, func(p *NewIngestorParams) {
		p.Policy = &policy
	})

	_, err := ing.IngestChunk(context.Background(), chunk("c1", "Titre I, Chapitre II, Article 5."))
	require.NoError(t, err)
	assert.True(t, g.HasEdge("article_5", common.RelPartOf, "chapter_ii"))
	assert.True(t, g.HasEdge("chapter_ii", common.RelPartOf, "title_i"))

	rows, err := g.FindArticles(context.Background(), []string{"article"}, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Chapitre II", rows[0].Chapter)
	assert.Equal(t, "Titre I", rows[0].Title)
}

func TestRun_Resumes(t *testing.T) {
	g := storetest.NewGraph()
	client := &aitest.Client{Completion: article1Relations}
	cp := newMemCheckpoint("A", "B")
	ing := newTestIngestor(t, g, client, cp, nil)

	chunks := []common.Chunk{
		chunk("A", "Article 1 : le contrat."),
		chunk("B", "Article 2 : la personne."),
		chunk("C", "Article 1 : le contrat lie chaque personne."),
	}
	stats, err := ing.Run(context.Background(), chunks)
	require.NoError(t, err)

	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 3, stats.Entities)
	assert.Equal(t, 1, stats.Relationships)
	assert.Equal(t, 1, client.CallCount())
	assert.Contains(t, client.Calls[0].Prompt, "Article 1 : le contrat lie chaque personne.")
	assert.Equal(t, []string{"A", "B", "C"}, cp.ids())
}

func TestRun_Concurrent(t *testing.T) {
	g := storetest.NewGraph()
	cp := newMemCheckpoint()
	ing := newTestIngestor(t, g, &aitest.Client{Completion: article1Relations}, cp, func(p *NewIngestorParams) {
		p.Concurrency = 4
	})

	chunks := make([]common.Chunk, 0, 20)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		chunks = append(chunks, chunk(id, "Article 1 : le contrat lie chaque personne."))
	}
	stats, err := ing.Run(context.Background(), chunks)
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Processed)
	assert.Len(t, cp.ids(), 10)

	nodes, _ := g.Counts()
	assert.Equal(t, 3+10, nodes)
}

func TestRun_TimeoutIsCountedAndNotMarked(t *testing.T) {
	client := &aitest.Client{CompletionFunc: func(ctx context.Context, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	cp := newMemCheckpoint()
	ing := newTestIngestor(t, storetest.NewGraph(), client, cp, func(p *NewIngestorParams) {
		p.ChunkTimeout = 20 * time.Millisecond
	})

	stats, err := ing.Run(context.Background(), []common.Chunk{
		chunk("slow", "Article 1 : le contrat."),
		chunk("empty", "Rien."),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Timeouts)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, []string{"empty"}, cp.ids())
}

func TestRun_RecoversPanics(t *testing.T) {
	client := &aitest.Client{CompletionFunc: func(ctx context.Context, prompt string) (string, error) {
		panic("model exploded")
	}}
	cp := newMemCheckpoint()
	ing := newTestIngestor(t, storetest.NewGraph(), client, cp, nil)

	stats, err := ing.Run(context.Background(), []common.Chunk{
		chunk("boom", "Article 1 : le contrat."),
		chunk("ok", "Article 2."),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 0, stats.Timeouts)
	assert.Equal(t, []string{"ok"}, cp.ids())
}

func TestRun_CancelPersistsProgress(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	client := &aitest.Client{CompletionFunc: func(ctx context.Context, prompt string) (string, error) {
		calls++
		if calls == 2 {
			cancel()
			return "", ctx.Err()
		}
		return "[]", nil
	}}
	cp := newMemCheckpoint()
	ing := newTestIngestor(t, storetest.NewGraph(), client, cp, nil)

	stats, err := ing.Run(ctx, []common.Chunk{
		chunk("A", "Article 1 : le contrat."),
		chunk("B", "Article 2 : le contrat."),
		chunk("C", "Article 3 : le contrat."),
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, []string{"A"}, cp.ids())
}

func TestRun_FatalCheckpointAbortsAfterRetry(t *testing.T) {
	cp := newMemCheckpoint()
	cp.saveErr = errors.New("disk full")
	ing := newTestIngestor(t, storetest.NewGraph(), &aitest.Client{Completion: "[]"}, cp, nil)

	_, err := ing.Run(context.Background(), []common.Chunk{
		chunk("A", "Article 1."),
		chunk("B", "Article 2."),
		chunk("C", "Article 3."),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, cp.saveErr)

	cp.mu.Lock()
	defer cp.mu.Unlock()
	assert.Equal(t, 2, cp.saves)
}

func TestRun_CheckpointSaveRecoversOnRetry(t *testing.T) {
	cp := newMemCheckpoint()
	cp.failSaves = 1
	ing := newTestIngestor(t, storetest.NewGraph(), &aitest.Client{Completion: "[]"}, cp, nil)

	stats, err := ing.Run(context.Background(), []common.Chunk{chunk("A", "Article 1.")})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, []string{"A"}, cp.ids())

	cp.mu.Lock()
	defer cp.mu.Unlock()
	assert.Equal(t, 2, cp.saves)
}
