package neo4j

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/common"

	"github.com/saulfrancisco-ruizacevedo/gocypher"
)

// MergeEntity creates the node keyed by entity.ID with label entity.Type.
// Properties are only written on creation, so an existing node keeps the
// text and chunk of its first occurrence.
func (s *GraphStorage) MergeEntity(ctx context.Context, entity common.Entity) error {
	label, err := quoteLabel(entity.Type)
	if err != nil {
		return err
	}
	if entity.ID == "" {
		return fmt.Errorf("entity id is empty")
	}

	q := fmt.Sprintf(`MERGE (n:%s {id: $id})
ON CREATE SET n.text = $text, n.chunk_id = $chunk_id, n.content = $content`, label)

	var content any
	if entity.Excerpt != "" {
		content = entity.Excerpt
	}
	_, err = s.runner.Run(ctx, q, map[string]any{
		"id":       entity.ID,
		"text":     entity.Text,
		"chunk_id": entity.ChunkID,
		"content":  content,
	})
	return err
}

// MergeRelationship creates the typed edge between two existing nodes.
// Nothing is created when an endpoint is missing.
func (s *GraphStorage) MergeRelationship(ctx context.Context, rel common.Relationship) (bool, error) {
	relType, err := quoteRelType(rel.Type)
	if err != nil {
		return false, err
	}

	q := fmt.Sprintf(`MATCH (s {id: $source_id})
MATCH (t {id: $target_id})
MERGE (s)-[r:%s]->(t)
ON CREATE SET r.original_type = $original_type
RETURN count(r) AS merged`, relType)

	res, err := s.runner.Run(ctx, q, map[string]any{
		"source_id":     rel.SourceID,
		"target_id":     rel.TargetID,
		"original_type": rel.OriginalType,
	})
	if err != nil {
		return false, err
	}
	return firstInt(res, "merged") > 0, nil
}

// MergeChunkLink creates the traceability node for chunk and links every
// listed entity to it.
func (s *GraphStorage) MergeChunkLink(ctx context.Context, chunk common.Chunk, entityIDs []string) error {
	q := `MERGE (c:Chunk {chunk_id: $chunk_id})
ON CREATE SET c.source = $source
WITH c
UNWIND $ids AS entity_id
MATCH (e {id: entity_id})
MERGE (e)-[:EXTRACTED_FROM]->(c)`

	ids := make([]any, len(entityIDs))
	for i, id := range entityIDs {
		ids[i] = id
	}
	_, err := s.runner.Run(ctx, q, map[string]any{
		"chunk_id": chunk.ID,
		"source":   chunk.Source,
		"ids":      ids,
	})
	return err
}

// Clear removes every node in the database together with its edges,
// including nodes without a known label.
func (s *GraphStorage) Clear(ctx context.Context) error {
	query, params, err := gocypher.NewQueryBuilder().
		Match(gocypher.NRef("n")).
		DetachDelete("n").
		Build()
	if err != nil {
		return err
	}
	if _, err := s.runner.Run(ctx, query, params); err != nil {
		return fmt.Errorf("clear graph: %w", err)
	}
	return nil
}
