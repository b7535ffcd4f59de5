package neo4j

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	query  string
	params map[string]any
	read   bool
}

type fakeRunner struct {
	mu      sync.Mutex
	calls   []call
	results map[string]*neo4j.EagerResult
	err     error
}

func (f *fakeRunner) respond(query string, params map[string]any, read bool) (*neo4j.EagerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{query: query, params: params, read: read})
	if f.err != nil {
		return nil, f.err
	}
	for needle, res := range f.results {
		if strings.Contains(query, needle) {
			return res, nil
		}
	}
	return &neo4j.EagerResult{}, nil
}

func (f *fakeRunner) Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return f.respond(query, params, false)
}

func (f *fakeRunner) ReadRun(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return f.respond(query, params, true)
}

func (f *fakeRunner) Verify(ctx context.Context) error { return f.err }
func (f *fakeRunner) Close(ctx context.Context) error  { return nil }

func rows(keys []string, values ...[]any) *neo4j.EagerResult {
	res := &neo4j.EagerResult{Keys: keys}
	for _, v := range values {
		res.Records = append(res.Records, &neo4j.Record{Keys: keys, Values: v})
	}
	return res
}

func TestMergeEntity_QuotesLabelAndSetsOnCreate(t *testing.T) {
	r := &fakeRunner{}
	s := NewGraphStorage(r)

	err := s.MergeEntity(context.Background(), common.Entity{
		ID: "article_862", Type: common.TypeArticle, Text: "Article 862", ChunkID: "c1", Excerpt: "Le contrat...",
	})
	require.NoError(t, err)
	require.Len(t, r.calls, 1)
	assert.Contains(t, r.calls[0].query, "MERGE (n:`Article` {id: $id})")
	assert.Contains(t, r.calls[0].query, "ON CREATE SET")
	assert.Equal(t, "article_862", r.calls[0].params["id"])
	assert.Equal(t, "Le contrat...", r.calls[0].params["content"])

	err = s.MergeEntity(context.Background(), common.Entity{ID: "x", Type: common.TypeSubtitle})
	require.NoError(t, err)
	assert.Contains(t, r.calls[1].query, "(n:`Sous-titre` {id: $id})")
	assert.Nil(t, r.calls[1].params["content"])
}

func TestMergeEntity_RejectsUnknownLabel(t *testing.T) {
	r := &fakeRunner{}
	s := NewGraphStorage(r)

	err := s.MergeEntity(context.Background(), common.Entity{ID: "x", Type: "Article` {id:1}) DETACH DELETE n //"})
	assert.ErrorIs(t, err, store.ErrUnknownLabel)
	assert.Empty(t, r.calls)
}

func TestMergeRelationship(t *testing.T) {
	r := &fakeRunner{results: map[string]*neo4j.EagerResult{
		"MERGE (s)-[r:`CITE`]": rows([]string{"merged"}, []any{int64(1)}),
	}}
	s := NewGraphStorage(r)

	ok, err := s.MergeRelationship(context.Background(), common.Relationship{
		SourceID: "article_1", Type: "CITE", TargetID: "code_code_civil", OriginalType: "cite",
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MergeRelationship(context.Background(), common.Relationship{
		SourceID: "article_1", Type: "REGIT", TargetID: "missing",
	})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.MergeRelationship(context.Background(), common.Relationship{Type: "bad type"})
	assert.Error(t, err)
}

func TestMergeChunkLink(t *testing.T) {
	r := &fakeRunner{}
	s := NewGraphStorage(r)

	err := s.MergeChunkLink(context.Background(), common.Chunk{ID: "code_chunk_1.txt", Source: "code"}, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, r.calls, 1)
	assert.Contains(t, r.calls[0].query, "MERGE (c:Chunk {chunk_id: $chunk_id})")
	assert.Contains(t, r.calls[0].query, "EXTRACTED_FROM")
	assert.Equal(t, []any{"a", "b"}, r.calls[0].params["ids"])
}

func TestFindArticles(t *testing.T) {
	r := &fakeRunner{results: map[string]*neo4j.EagerResult{
		"MATCH (a:Article)": rows(
			[]string{"title", "chapter", "article", "content"},
			[]any{"Titre I", "Chapitre 2", "Article 862", "Le contrat est..."},
		),
	}}
	s := NewGraphStorage(r)

	out, err := s.FindArticles(context.Background(), []string{"contrat"}, 5)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, store.ArticleContext{Title: "Titre I", Chapter: "Chapitre 2", Article: "Article 862", Content: "Le contrat est..."}, out[0])
	assert.True(t, r.calls[0].read)
	assert.Equal(t, int64(5), r.calls[0].params["limit"])

	out, err = s.FindArticles(context.Background(), nil, 5)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Len(t, r.calls, 1)
}

func TestReadQuery_ConvertsNodesAndLimitsRows(t *testing.T) {
	node := neo4j.Node{Labels: []string{"Article"}, Props: map[string]any{"text": "Article 1"}}
	r := &fakeRunner{results: map[string]*neo4j.EagerResult{
		"RETURN a": rows([]string{"a", "n"}, []any{node, int64(1)}, []any{node, int64(2)}, []any{node, int64(3)}),
	}}
	s := NewGraphStorage(r)

	out, err := s.ReadQuery(context.Background(), "MATCH (a:Article) RETURN a, 1 AS n", nil, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, map[string]any{"text": "Article 1"}, out[0]["a"])
	assert.Equal(t, int64(2), out[1]["n"])
}

func TestSchemaAndStats(t *testing.T) {
	r := &fakeRunner{results: map[string]*neo4j.EagerResult{
		"db.labels()":            rows([]string{"value"}, []any{"Titre"}, []any{"Article"}),
		"db.relationshipTypes()": rows([]string{"value"}, []any{"CITE"}),
		"db.propertyKeys()":      rows([]string{"value"}, []any{"id"}, []any{"content"}),
		"RETURN count(n)":        rows([]string{"total"}, []any{int64(42)}),
		"RETURN count(r)":        rows([]string{"total"}, []any{int64(7)}),
		"UNWIND labels(n)":       rows([]string{"label", "total"}, []any{"Article", int64(30)}),
	}}
	s := NewGraphStorage(r)

	schema, err := s.Schema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Article", "Titre"}, schema.Labels)
	assert.Equal(t, []string{"CITE"}, schema.RelationshipTypes)
	assert.Equal(t, []string{"content", "id"}, schema.PropertyKeys)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), stats.Nodes)
	assert.Equal(t, int64(7), stats.Relationships)
	assert.Equal(t, []store.LabelCount{{Label: "Article", Count: 30}}, stats.Labels)
}

func TestClear_DeletesEveryNode(t *testing.T) {
	r := &fakeRunner{}
	s := NewGraphStorage(r)

	require.NoError(t, s.Clear(context.Background()))
	require.Len(t, r.calls, 1)
	assert.Regexp(t, `^MATCH\s*\(n\)\s+DETACH DELETE n\s*$`, r.calls[0].query)
	assert.NotContains(t, r.calls[0].query, ":")

	r.err = errors.New("down")
	assert.Error(t, s.Clear(context.Background()))
}

func TestEnsureSchema(t *testing.T) {
	r := &fakeRunner{}
	s := NewGraphStorage(r)

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.Len(t, r.calls, len(common.EntityTypes)+1)
	assert.Contains(t, r.calls[len(r.calls)-1].query, "FOR (n:`Chunk`) REQUIRE n.chunk_id IS UNIQUE")
	assert.Contains(t, r.calls[5].query, "uniq_sous_titre_id")
}
