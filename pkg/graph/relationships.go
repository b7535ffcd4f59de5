package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/lexgraph/backend/internal/util"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/ai"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/logger"
)

const (
	relationshipTextLimit = 1500
	relationshipTopP      = 0.8
)

type relationshipTriple struct {
	SourceID     string `json:"source_id"`
	Relationship string `json:"relationship"`
	TargetID     string `json:"target_id"`
}

// RelationshipExtractor asks the LLM for explicit relationships between the
// entities the pattern extractor already found in a chunk.
type RelationshipExtractor struct {
	client ai.GraphAIClient
}

// NewRelationshipExtractor returns an extractor backed by client.
func NewRelationshipExtractor(client ai.GraphAIClient) *RelationshipExtractor {
	return &RelationshipExtractor{client: client}
}

// Extract returns the relationships between entities that the model finds in
// text. Fewer than two entities never reach the model. Unparseable model
// output yields an empty result; only transport errors are returned.
func (r *RelationshipExtractor) Extract(
	ctx context.Context,
	text string,
	entities []common.Entity,
) ([]common.Relationship, error) {
	if len(entities) < 2 {
		return []common.Relationship{}, nil
	}

	ids := make(map[string]struct{}, len(entities))
	var list strings.Builder
	for _, e := range entities {
		ids[e.ID] = struct{}{}
		fmt.Fprintf(&list, "- %s: %s (ID: %s)\n", e.Type, e.Text, e.ID)
	}

	prompt := fmt.Sprintf(
		ai.RelationshipPrompt,
		strings.TrimRight(list.String(), "\n"),
		util.TruncateRunes(text, relationshipTextLimit),
		strings.Join(common.RelationshipVocabulary, ", "),
	)

	res, err := r.client.GenerateCompletion(
		ctx,
		prompt,
		ai.WithTemperature(0),
		ai.WithTopP(relationshipTopP),
	)
	if err != nil {
		return nil, fmt.Errorf("relationship completion: %w", err)
	}

	var triples []relationshipTriple
	if err := ai.UnmarshalFlexible(res, &triples); err != nil {
		logger.Debug("[Graph] Discarding unparseable relationship response", "err", err, "response", util.TruncateRunes(res, 200))
		return []common.Relationship{}, nil
	}

	out := make([]common.Relationship, 0, len(triples))
	seen := make(map[string]struct{}, len(triples))
	for _, t := range triples {
		source := strings.TrimSpace(t.SourceID)
		target := strings.TrimSpace(t.TargetID)
		if _, ok := ids[source]; !ok {
			continue
		}
		if _, ok := ids[target]; !ok {
			continue
		}

		rel := common.Relationship{
			SourceID:     source,
			Type:         SanitizeRelationType(t.Relationship),
			TargetID:     target,
			OriginalType: t.Relationship,
		}
		key := relationshipKey(rel)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rel)
	}

	return out, nil
}

func relationshipKey(r common.Relationship) string {
	return r.SourceID + "\x00" + r.Type + "\x00" + r.TargetID
}

// InferContainment returns FAIT_PARTIE_DE edges from every article to every
// chapter and from every chapter to every title found in the same chunk.
func InferContainment(entities []common.Entity) []common.Relationship {
	var articles, chapters, titles []string
	for _, e := range entities {
		switch e.Type {
		case common.TypeArticle:
			articles = append(articles, e.ID)
		case common.TypeChapter:
			chapters = append(chapters, e.ID)
		case common.TypeTitle:
			titles = append(titles, e.ID)
		}
	}

	out := make([]common.Relationship, 0, len(articles)*len(chapters)+len(chapters)*len(titles))
	link := func(from, to []string) {
		for _, s := range from {
			for _, t := range to {
				out = append(out, common.Relationship{
					SourceID:     s,
					Type:         common.RelPartOf,
					TargetID:     t,
					OriginalType: common.RelPartOf,
				})
			}
		}
	}
	link(articles, chapters)
	link(chapters, titles)
	return out
}

// mergeRelationships appends the relationships of extra that are not in
// base yet.
func mergeRelationships(base, extra []common.Relationship) []common.Relationship {
	seen := make(map[string]struct{}, len(base))
	for _, r := range base {
		seen[relationshipKey(r)] = struct{}{}
	}
	for _, r := range extra {
		key := relationshipKey(r)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		base = append(base, r)
	}
	return base
}
