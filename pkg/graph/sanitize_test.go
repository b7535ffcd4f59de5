package graph

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeRelationType(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"REGIT", "REGIT"},
		{"  traite de ", "TRAITE_DE"},
		{"fait-partie-de", "FAIT_PARTIE_DE"},
		{"l'article", "L_ARTICLE"},
		{"appartient à", "APPARTIENT_A"},
		{"régit", "REGIT"},
		{"Définit l'obligation", "DEFINIT_L_OBLIGATION"},
		{"cite  --  article", "CITE_ARTICLE"},
		{"a__b", "A_B"},
		{"", "RELATION"},
		{"!!!", "RELATION"},
		{"___", "RELATION"},
		{"éé", "EE"},
		{"\u0301", "RELATION"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, SanitizeRelationType(tc.input), tc.input)
	}
}

func TestSanitizeRelationType_Total(t *testing.T) {
	valid := regexp.MustCompile(`^[A-Z0-9_]+$`)
	inputs := []string{
		"", " ", "\t\n", "-", "'", "`)-[r]->(", "DELETE n //", "关系", "Ωmega", "x\x00y",
		"concerne", "CONCERNE", "Obligé de", "12 mois", " permet ",
	}
	for _, in := range inputs {
		out := SanitizeRelationType(in)
		assert.Regexp(t, valid, out, "input %q", in)
		assert.NotRegexp(t, `^_|_$|__`, out, "input %q", in)
	}
}
