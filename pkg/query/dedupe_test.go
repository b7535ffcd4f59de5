package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupe(t *testing.T) {
	p1 := "Article 862 : la période d'essai est de quinze jours."
	p2 := "Article 863 : le contrat peut être résolu en cas d'inexécution."

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "keeps distinct paragraphs",
			input: p1 + "\n\n" + p2,
			want:  p1 + "\n\n" + p2,
		},
		{
			name:  "drops normalized duplicates",
			input: p1 + "\n\n" + p2 + "\n \n" + strings.ToUpper(p1) + "\n\n  " + strings.ReplaceAll(p1, " ", "   "),
			want:  p1 + "\n\n" + p2,
		},
		{
			name:  "drops short noise",
			input: "Page 12\n\n" + p1 + "\n\n---",
			want:  p1,
		},
		{
			name:  "same prefix counts as duplicate",
			input: strings.Repeat("a", 200) + " fin un\n\n" + strings.Repeat("a", 200) + " fin deux",
			want:  strings.Repeat("a", 200) + " fin un",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Dedupe(tc.input))
		})
	}
}
