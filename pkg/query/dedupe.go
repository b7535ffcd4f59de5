package query

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/OFFIS-RIT/lexgraph/backend/internal/util"
)

const (
	dedupeKeyLength = 200
	minUnitLength   = 30
)

var blankLines = regexp.MustCompile(`\n[ \t\r]*\n`)

// Dedupe splits text into paragraphs, drops paragraphs shorter than 30
// runes and paragraphs already seen (compared case-insensitively on their
// first 200 runes with whitespace collapsed), and joins the rest with blank
// lines in their original order.
func Dedupe(text string) string {
	units := blankLines.Split(strings.ReplaceAll(text, "\r\n", "\n"), -1)

	seen := make(map[string]struct{}, len(units))
	kept := make([]string, 0, len(units))
	for _, u := range units {
		u = strings.TrimSpace(u)
		if utf8.RuneCountInString(u) < minUnitLength {
			continue
		}
		key := dedupeKey(u)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, u)
	}
	return strings.Join(kept, "\n\n")
}

func dedupeKey(s string) string {
	return util.TruncateRunes(strings.Join(strings.Fields(strings.ToLower(s)), " "), dedupeKeyLength)
}
