package ai

import (
	"testing"
)

type triple struct {
	SourceID     string `json:"source_id"`
	Relationship string `json:"relationship"`
	TargetID     string `json:"target_id"`
}

func TestUnmarshalFlexible_ObjectVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  triple
	}{
		{
			name:  "valid json object",
			input: `{"source_id":"article_862","relationship":"CONCERNE","target_id":"obligation_obligation"}`,
			want:  triple{"article_862", "CONCERNE", "obligation_obligation"},
		},
		{
			name:  "unquoted keys and single quotes",
			input: `{source_id: 'article_1', relationship: 'CITE', target_id: 'code_code_civil'}`,
			want:  triple{"article_1", "CITE", "code_code_civil"},
		},
		{
			name:  "trailing comma",
			input: `{"source_id":"a","relationship":"REGIT","target_id":"b",}`,
			want:  triple{"a", "REGIT", "b"},
		},
		{
			name:  "missing end bracket",
			input: `{"source_id":"a","relationship":"REGIT","target_id":"b"`,
			want:  triple{"a", "REGIT", "b"},
		},
		{
			name:  "stringified invalid json object",
			input: `"{source_id: 'a', relationship: 'OBLIGE', target_id: 'b'}"`,
			want:  triple{"a", "OBLIGE", "b"},
		},
		{
			name:  "duplicate leading brace",
			input: "{\n{\n  \"source_id\": \"a\", \"relationship\": \"PERMET\", \"target_id\": \"b\"\n}\n",
			want:  triple{"a", "PERMET", "b"},
		},
		{
			name:  "markdown fence",
			input: "```json\n{\"source_id\":\"a\",\"relationship\":\"CITE\",\"target_id\":\"b\"}\n```",
			want:  triple{"a", "CITE", "b"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got triple
			if err := UnmarshalFlexible(tc.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("UnmarshalFlexible() got = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestUnmarshalFlexible_ArrayVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{
			name:  "repaired array",
			input: `[{source_id:'a',relationship:'CITE',target_id:'b'},{source_id:'b',relationship:'REGIT',target_id:'c',}]`,
			want:  2,
		},
		{
			name:  "prose around array",
			input: "Voici les relations :\n[{\"source_id\":\"a\",\"relationship\":\"CITE\",\"target_id\":\"b\"}]\nFin.",
			want:  1,
		},
		{
			name:  "empty array",
			input: `[]`,
			want:  0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got []triple
			if err := UnmarshalFlexible(tc.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if len(got) != tc.want {
				t.Fatalf("UnmarshalFlexible() got %d triples, want %d (%+v)", len(got), tc.want, got)
			}
		})
	}
}

func TestUnmarshalFlexible_Unrecoverable(t *testing.T) {
	var got []triple
	if err := UnmarshalFlexible("hello", &got); err == nil {
		t.Fatalf("UnmarshalFlexible() expected error for unrecoverable input")
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "```cypher\nMATCH (n) RETURN n\n```", want: "MATCH (n) RETURN n"},
		{input: "  MATCH (n) RETURN n  ", want: "MATCH (n) RETURN n"},
		{input: "```\n[]\n```", want: "[]"},
	}
	for _, tc := range tests {
		if got := StripCodeFence(tc.input); got != tc.want {
			t.Fatalf("StripCodeFence(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestGenerateSchema_DisallowsAdditionalProperties(t *testing.T) {
	type cypher struct {
		Query string `json:"query"`
	}
	schema := GenerateSchema(&cypher{})
	if schema == nil {
		t.Fatal("expected schema")
	}
}
