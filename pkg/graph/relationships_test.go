package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/ai/aitest"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/common"
)

var article862Entities = []common.Entity{
	{ID: "article_862", Type: common.TypeArticle, Text: "Article 862"},
	{ID: "contrat_contrat", Type: common.TypeContract, Text: "contrat"},
	{ID: "code_code_civil", Type: common.TypeCode, Text: "Code civil"},
}

func TestRelationshipExtractor_SkipsSmallEntitySets(t *testing.T) {
	client := &aitest.Client{Completion: "[]"}
	r := NewRelationshipExtractor(client)

	got, err := r.Extract(context.Background(), "Article 862", article862Entities[:1])
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, client.CallCount())
}

func TestRelationshipExtractor_PromptAndSampling(t *testing.T) {
	client := &aitest.Client{Completion: "[]"}
	text := strings.Repeat("a", 1500) + "TAIL"

	_, err := NewRelationshipExtractor(client).Extract(context.Background(), text, article862Entities)
	require.NoError(t, err)
	require.Equal(t, 1, client.CallCount())

	call := client.Calls[0]
	assert.Contains(t, call.Prompt, "- Article: Article 862 (ID: article_862)")
	assert.Contains(t, call.Prompt, "- Code: Code civil (ID: code_code_civil)")
	assert.Contains(t, call.Prompt, "APPARTIENT_A, TRAITE_DE")
	assert.NotContains(t, call.Prompt, "TAIL")
	assert.Equal(t, 0.0, call.Options.Temperature)
	assert.Equal(t, 0.8, call.Options.TopP)
}

func TestRelationshipExtractor_ValidatesTriples(t *testing.T) {
	client := &aitest.Client{Completion: "```json\n" + `[
		{"source_id": "article_862", "relationship": "appartient à", "target_id": "code_code_civil"},
		{"source_id": "article_862", "relationship": "APPARTIENT_A", "target_id": "code_code_civil"},
		{"source_id": "article_862", "relationship": "CONCERNE", "target_id": "article_999"},
		{"source_id": "ghost", "relationship": "CITE", "target_id": "contrat_contrat"},
		{"source_id": "article_862", "relationship": "", "target_id": "contrat_contrat"}
	]` + "\n```"}

	got, err := NewRelationshipExtractor(client).Extract(context.Background(), "Article 862", article862Entities)
	require.NoError(t, err)
	assert.Equal(t, []common.Relationship{
		{SourceID: "article_862", Type: "APPARTIENT", TargetID: "code_code_civil", OriginalType: "appartient à"},
		{SourceID: "article_862", Type: "APPARTIENT_A", TargetID: "code_code_civil", OriginalType: "APPARTIENT_A"},
		{SourceID: "article_862", Type: "RELATION", TargetID: "contrat_contrat", OriginalType: ""},
	}, got)
}

func TestRelationshipExtractor_CollapsesDuplicates(t *testing.T) {
	client := &aitest.Client{Completion: `[
		{"source_id": "article_862", "relationship": "traite de", "target_id": "contrat_contrat"},
		{"source_id": "article_862", "relationship": "TRAITE_DE", "target_id": "contrat_contrat"}
	]`}

	got, err := NewRelationshipExtractor(client).Extract(context.Background(), "Article 862", article862Entities)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "TRAITE_DE", got[0].Type)
}

func TestRelationshipExtractor_ParseFailureIsEmpty(t *testing.T) {
	client := &aitest.Client{Completion: "Je ne trouve aucune relation."}

	got, err := NewRelationshipExtractor(client).Extract(context.Background(), "Article 862", article862Entities)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRelationshipExtractor_TransportError(t *testing.T) {
	boom := errors.New("connection refused")
	client := &aitest.Client{CompletionErr: boom}

	_, err := NewRelationshipExtractor(client).Extract(context.Background(), "Article 862", article862Entities)
	assert.ErrorIs(t, err, boom)
}

func TestInferContainment(t *testing.T) {
	entities := []common.Entity{
		{ID: "article_5", Type: common.TypeArticle},
		{ID: "chapter_ii", Type: common.TypeChapter},
		{ID: "title_i", Type: common.TypeTitle},
		{ID: "contrat_contrat", Type: common.TypeContract},
	}
	assert.Equal(t, []common.Relationship{
		{SourceID: "article_5", Type: common.RelPartOf, TargetID: "chapter_ii", OriginalType: common.RelPartOf},
		{SourceID: "chapter_ii", Type: common.RelPartOf, TargetID: "title_i", OriginalType: common.RelPartOf},
	}, InferContainment(entities))
}
