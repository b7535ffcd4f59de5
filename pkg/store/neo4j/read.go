package neo4j

import (
	"context"
	"fmt"
	"sort"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const findArticlesQuery = `MATCH (a:Article)
WHERE any(k IN $keys WHERE toLower(coalesce(a.name, a.text, '')) CONTAINS k
   OR toLower(coalesce(a.content, '')) CONTAINS k)
OPTIONAL MATCH (a)-[:FAIT_PARTIE_DE]->(c:Chapitre)
OPTIONAL MATCH (c)-[:FAIT_PARTIE_DE]->(t:Titre)
RETURN coalesce(t.text, '') AS title,
       coalesce(c.text, '') AS chapter,
       coalesce(a.text, '') AS article,
       coalesce(a.content, '') AS content
ORDER BY a.id
LIMIT $limit`

// FindArticles returns articles whose text or content contains one of the
// lower-cased keywords, with their chapter and title when linked.
func (s *GraphStorage) FindArticles(ctx context.Context, keywords []string, limit int) ([]store.ArticleContext, error) {
	if len(keywords) == 0 || limit <= 0 {
		return nil, nil
	}
	keys := make([]any, len(keywords))
	for i, k := range keywords {
		keys[i] = k
	}

	res, err := s.runner.ReadRun(ctx, findArticlesQuery, map[string]any{
		"keys":  keys,
		"limit": int64(limit),
	})
	if err != nil {
		return nil, err
	}

	out := make([]store.ArticleContext, 0, len(res.Records))
	for _, rec := range res.Records {
		out = append(out, store.ArticleContext{
			Title:   stringValue(rec, "title"),
			Chapter: stringValue(rec, "chapter"),
			Article: stringValue(rec, "article"),
			Content: stringValue(rec, "content"),
		})
	}
	return out, nil
}

// Schema lists labels, relationship types and property keys in use.
func (s *GraphStorage) Schema(ctx context.Context) (store.GraphSchema, error) {
	var schema store.GraphSchema
	queries := []struct {
		query string
		dst   *[]string
	}{
		{"CALL db.labels() YIELD label RETURN label AS value", &schema.Labels},
		{"CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType AS value", &schema.RelationshipTypes},
		{"CALL db.propertyKeys() YIELD propertyKey RETURN propertyKey AS value", &schema.PropertyKeys},
	}
	for _, q := range queries {
		res, err := s.runner.ReadRun(ctx, q.query, nil)
		if err != nil {
			return store.GraphSchema{}, err
		}
		for _, rec := range res.Records {
			if v := stringValue(rec, "value"); v != "" {
				*q.dst = append(*q.dst, v)
			}
		}
		sort.Strings(*q.dst)
	}
	return schema, nil
}

// ReadQuery runs query routed to readers and converts at most limit rows to
// plain Go values. Nodes become their property maps and relationships their
// type.
func (s *GraphStorage) ReadQuery(
	ctx context.Context,
	query string,
	params map[string]any,
	limit int,
) ([]map[string]any, error) {
	res, err := s.runner.ReadRun(ctx, query, params)
	if err != nil {
		return nil, err
	}
	n := len(res.Records)
	if limit > 0 && n > limit {
		n = limit
	}
	rows := make([]map[string]any, 0, n)
	for _, rec := range res.Records[:n] {
		row := make(map[string]any, len(rec.Keys))
		for i, key := range rec.Keys {
			row[key] = plainValue(rec.Values[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Stats counts nodes and relationships and returns the eight most frequent
// labels.
func (s *GraphStorage) Stats(ctx context.Context) (store.GraphStats, error) {
	var stats store.GraphStats

	res, err := s.runner.ReadRun(ctx, "MATCH (n) RETURN count(n) AS total", nil)
	if err != nil {
		return stats, fmt.Errorf("count nodes: %w", err)
	}
	stats.Nodes = firstInt(res, "total")

	res, err = s.runner.ReadRun(ctx, "MATCH ()-[r]->() RETURN count(r) AS total", nil)
	if err != nil {
		return stats, fmt.Errorf("count relationships: %w", err)
	}
	stats.Relationships = firstInt(res, "total")

	res, err = s.runner.ReadRun(ctx, `MATCH (n)
UNWIND labels(n) AS label
RETURN label, count(*) AS total
ORDER BY total DESC, label
LIMIT 8`, nil)
	if err != nil {
		return stats, fmt.Errorf("count labels: %w", err)
	}
	for _, rec := range res.Records {
		stats.Labels = append(stats.Labels, store.LabelCount{
			Label: stringValue(rec, "label"),
			Count: intValue(rec, "total"),
		})
	}
	return stats, nil
}

func stringValue(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func intValue(rec *neo4j.Record, key string) int64 {
	v, ok := rec.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func firstInt(res *neo4j.EagerResult, key string) int64 {
	if res == nil || len(res.Records) == 0 {
		return 0
	}
	return intValue(res.Records[0], key)
}

func plainValue(v any) any {
	switch t := v.(type) {
	case neo4j.Node:
		return t.Props
	case neo4j.Relationship:
		return t.Type
	case neo4j.Path:
		names := make([]any, 0, len(t.Nodes))
		for _, n := range t.Nodes {
			names = append(names, n.Props)
		}
		return names
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = plainValue(t[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = plainValue(val)
		}
		return out
	}
	return v
}
