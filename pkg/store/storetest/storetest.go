// Package storetest provides in-memory graph and vector stores for tests.
package storetest

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/store"
)

// Node is a stored graph node.
type Node struct {
	Label string
	Props map[string]any
}

// Edge is a stored graph relationship.
type Edge struct {
	Source string
	Type   string
	Target string
}

// Graph is an in-memory store.GraphStorage with merge semantics. The *Err
// and *Func fields inject failures and query results.
type Graph struct {
	mu    sync.Mutex
	Nodes map[string]Node
	Edges map[Edge]struct{}

	VerifyErr     error
	EntityErr     func(common.Entity) error
	ReadQueryFunc func(query string) ([]map[string]any, error)
	SchemaValue   store.GraphSchema

	Queries []string
}

var _ store.GraphStorage = (*Graph)(nil)

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{Nodes: map[string]Node{}, Edges: map[Edge]struct{}{}}
}

func (g *Graph) Verify(ctx context.Context) error { return g.VerifyErr }

func (g *Graph) Close(ctx context.Context) error { return nil }

func (g *Graph) MergeEntity(ctx context.Context, e common.Entity) error {
	if !common.IsEntityType(e.Type) {
		return store.ErrUnknownLabel
	}
	if g.EntityErr != nil {
		if err := g.EntityErr(e); err != nil {
			return err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.Nodes[e.ID]; ok {
		return nil
	}
	props := map[string]any{"id": e.ID, "text": e.Text, "chunk_id": e.ChunkID}
	if e.Excerpt != "" {
		props["content"] = e.Excerpt
	}
	g.Nodes[e.ID] = Node{Label: e.Type, Props: props}
	return nil
}

func (g *Graph) MergeRelationship(ctx context.Context, rel common.Relationship) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, s := g.Nodes[rel.SourceID]
	_, t := g.Nodes[rel.TargetID]
	if !s || !t {
		return false, nil
	}
	g.Edges[Edge{Source: rel.SourceID, Type: rel.Type, Target: rel.TargetID}] = struct{}{}
	return true, nil
}

func (g *Graph) MergeChunkLink(ctx context.Context, chunk common.Chunk, ids []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := "chunk:" + chunk.ID
	if _, ok := g.Nodes[key]; !ok {
		g.Nodes[key] = Node{Label: common.LabelChunk, Props: map[string]any{"chunk_id": chunk.ID, "source": chunk.Source}}
	}
	for _, id := range ids {
		if _, ok := g.Nodes[id]; !ok {
			continue
		}
		g.Edges[Edge{Source: id, Type: common.RelExtractedFrom, Target: key}] = struct{}{}
	}
	return nil
}

func (g *Graph) FindArticles(ctx context.Context, keywords []string, limit int) ([]store.ArticleContext, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]string, 0)
	for id, n := range g.Nodes {
		if n.Label != common.TypeArticle {
			continue
		}
		text := strings.ToLower(str(n.Props["text"]) + " " + str(n.Props["content"]))
		for _, k := range keywords {
			if strings.Contains(text, k) {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]store.ArticleContext, 0, len(ids))
	for _, id := range ids {
		n := g.Nodes[id]
		row := store.ArticleContext{Article: str(n.Props["text"]), Content: str(n.Props["content"])}
		if c := g.parent(id, common.TypeChapter); c != "" {
			row.Chapter = str(g.Nodes[c].Props["text"])
			if t := g.parent(c, common.TypeTitle); t != "" {
				row.Title = str(g.Nodes[t].Props["text"])
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func (g *Graph) parent(id, label string) string {
	found := ""
	for e := range g.Edges {
		if e.Source == id && e.Type == common.RelPartOf && g.Nodes[e.Target].Label == label {
			if found == "" || e.Target < found {
				found = e.Target
			}
		}
	}
	return found
}

func (g *Graph) Schema(ctx context.Context) (store.GraphSchema, error) {
	return g.SchemaValue, nil
}

func (g *Graph) ReadQuery(ctx context.Context, query string, params map[string]any, limit int) ([]map[string]any, error) {
	g.mu.Lock()
	g.Queries = append(g.Queries, query)
	fn := g.ReadQueryFunc
	g.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	rows, err := fn(query)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (g *Graph) Stats(ctx context.Context) (store.GraphStats, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	counts := map[string]int64{}
	for _, n := range g.Nodes {
		counts[n.Label]++
	}
	stats := store.GraphStats{Nodes: int64(len(g.Nodes)), Relationships: int64(len(g.Edges))}
	for l, c := range counts {
		stats.Labels = append(stats.Labels, store.LabelCount{Label: l, Count: c})
	}
	sort.Slice(stats.Labels, func(i, j int) bool {
		if stats.Labels[i].Count != stats.Labels[j].Count {
			return stats.Labels[i].Count > stats.Labels[j].Count
		}
		return stats.Labels[i].Label < stats.Labels[j].Label
	})
	return stats, nil
}

func (g *Graph) Clear(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Nodes = map[string]Node{}
	g.Edges = map[Edge]struct{}{}
	return nil
}

// Counts returns the number of nodes and edges.
func (g *Graph) Counts() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Nodes), len(g.Edges)
}

// HasEdge reports whether the edge exists.
func (g *Graph) HasEdge(source, typ, target string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.Edges[Edge{Source: source, Type: typ, Target: target}]
	return ok
}

// Vectors is an in-memory store.VectorStorage using cosine similarity.
type Vectors struct {
	mu        sync.Mutex
	Records   map[string]common.VectorRecord
	SearchErr error
}

var _ store.VectorStorage = (*Vectors)(nil)

// NewVectors returns an empty vector store.
func NewVectors() *Vectors {
	return &Vectors{Records: map[string]common.VectorRecord{}}
}

func (v *Vectors) Search(ctx context.Context, embedding []float32, k int) ([]common.VectorRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.SearchErr != nil {
		return nil, v.SearchErr
	}
	out := make([]common.VectorRecord, 0, len(v.Records))
	for _, r := range v.Records {
		r.Score = cosine(embedding, r.Embedding)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if k >= 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (v *Vectors) Upsert(ctx context.Context, records []common.VectorRecord) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, r := range records {
		v.Records[r.ChunkID] = r
	}
	return nil
}

func (v *Vectors) ListChunkIDs(ctx context.Context) (map[string]struct{}, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	ids := make(map[string]struct{}, len(v.Records))
	for id := range v.Records {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (v *Vectors) Clear(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Records = map[string]common.VectorRecord{}
	return nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := 0; i < len(a) && i < len(b); i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
