package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/common"
)

func ids(entities []common.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.ID
	}
	return out
}

func TestExtract_Article862(t *testing.T) {
	text := "Article 862 - Le contrat est conclu pour une période d'essai de quinze jours."
	got := NewExtractor(DefaultPolicy()).Extract(text, "code_travail_chunk_3.txt")

	require.Len(t, got, 2)
	assert.Equal(t, common.Entity{
		ID:      "article_862",
		Type:    common.TypeArticle,
		Text:    "Article 862",
		ChunkID: "code_travail_chunk_3.txt",
		Excerpt: text,
	}, got[0])
	assert.Equal(t, "contrat_contrat", got[1].ID)
	assert.Equal(t, common.TypeContract, got[1].Type)
}

func TestExtract_Deterministic(t *testing.T) {
	text := "Titre II, Chapitre IV. Article 12 du Code civil. Toute personne a le droit et le devoir d'agir. Art. 13 : la société."
	e := NewExtractor(DefaultPolicy())
	first := e.Extract(text, "c")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.Extract(text, "c"))
	}
	assert.Equal(t, []string{
		"article_12",
		"article_13",
		"code_code_civil",
		"chapter_iv",
		"title_ii",
		"obligation_devoir",
		"droit_droit",
		"personne_personne",
		"entreprise_société",
	}, ids(first))
}

func TestExtract_ArticleNumbers(t *testing.T) {
	text := "Art. 12-3, article 7A, Article 5bis et Article 40."
	got := NewExtractor(DefaultPolicy()).Extract(text, "c")
	assert.Equal(t, []string{"article_12-3", "article_7a", "article_40"}, ids(got))
	assert.Equal(t, "Article 7A", got[1].Text)
}

func TestExtract_UnicodeWordBoundaries(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "accented keyword",
			text: "La société exploite.",
			want: []string{"entreprise_société"},
		},
		{
			name: "plural does not match singular keyword",
			text: "Les sociétés et les actions.",
			want: []string{},
		},
		{
			name: "keyword inside a word",
			text: "Un geste adroit, un contrateur, une réaction.",
			want: []string{},
		},
		{
			name: "accented letter before keyword",
			text: "édroit",
			want: []string{},
		},
		{
			name: "shorter keyword after rejected longer one",
			text: "Des action juridiques.",
			want: []string{"action_action"},
		},
		{
			name: "multi word keyword",
			text: "Une action juridique est possible.",
			want: []string{"action_action_juridique"},
		},
		{
			name: "code name trimmed at punctuation",
			text: "Selon le Code des obligations et des contrats, chacun.",
			want: []string{"code_code_des_obligations_et_des_contrats"},
		},
	}
	e := NewExtractor(DefaultPolicy())
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ids(e.Extract(tc.text, "c")))
		})
	}
}

func TestExtract_IntraChunkDedup(t *testing.T) {
	text := "Article 5. Voir l'article 5 et le contrat, le Contrat."
	got := NewExtractor(DefaultPolicy()).Extract(text, "c")
	assert.Equal(t, []string{"article_5", "contrat_contrat"}, ids(got))
	assert.Equal(t, "contrat", got[1].Text)
}

func TestExtract_ExcerptLength(t *testing.T) {
	text := "Article 1 " + strings.Repeat("é", 600)
	got := NewExtractor(DefaultPolicy()).Extract(text, "c")
	require.NotEmpty(t, got)
	assert.Equal(t, 500, len([]rune(got[0].Excerpt)))
}

func TestExtract_EmptyText(t *testing.T) {
	assert.Empty(t, NewExtractor(DefaultPolicy()).Extract("", "c"))
}

func TestParseNormalizationPolicy(t *testing.T) {
	policy, err := ParseNormalizationPolicy([]byte(`
aliases:
  Droits: droit
excerpt_length: 10
infer_containment: true
`))
	require.NoError(t, err)
	assert.True(t, policy.InferContainment)
	assert.Equal(t, 10, policy.ExcerptLength)
	assert.Equal(t, DefaultLexicon, policy.Lexicon)

	got := NewExtractor(policy).Extract("Les droits et le droit.", "c")
	assert.Equal(t, []string{"droit_droit"}, ids(got))
}

func TestParseNormalizationPolicy_CustomLexicon(t *testing.T) {
	policy, err := ParseNormalizationPolicy([]byte(`
lexicon:
  - category: Organisation
    keywords: [ministère, tribunal]
`))
	require.NoError(t, err)
	got := NewExtractor(policy).Extract("Le tribunal et le contrat.", "c")
	assert.Equal(t, []string{"organisation_tribunal"}, ids(got))
}

func TestParseNormalizationPolicy_UnknownCategory(t *testing.T) {
	_, err := ParseNormalizationPolicy([]byte("lexicon:\n  - category: Planet\n    keywords: [mars]\n"))
	assert.ErrorIs(t, err, errUnknownCategory)
}

func TestLoadNormalizationPolicy_EmptyPath(t *testing.T) {
	policy, err := LoadNormalizationPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), policy)
}
