package graph

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const fallbackRelationType = "RELATION"

// SanitizeRelationType turns an LLM-produced relation label into a string
// that is safe to place into a query as a relationship type. The result is
// never empty and always matches ^[A-Z0-9_]+$.
func SanitizeRelationType(raw string) string {
	upper := strings.ToUpper(stripAccents(strings.TrimSpace(raw)))

	var b strings.Builder
	b.Grow(len(upper))
	lastUnderscore := true
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		// whitespace, apostrophes, dashes and anything else
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	out := strings.Trim(b.String(), "_")
	if out == "" {
		return fallbackRelationType
	}
	return out
}

// stripAccents decomposes s and drops combining marks, so "régit" reads
// "regit".
func stripAccents(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
