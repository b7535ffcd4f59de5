package query

import (
	"regexp"
	"strings"

	"github.com/OFFIS-RIT/lexgraph/backend/internal/util"
)

const bulletKeyLength = 60

var (
	sentenceBreak = regexp.MustCompile(`([.!?])[ \t]+(\p{Lu})`)
	inlineBullet  = regexp.MustCompile(`([:.;!?])[ \t]+([-*•])[ \t]+`)
	inlineNumber  = regexp.MustCompile(`([:.;!?])[ \t]+(\d+[.)])[ \t]+`)
	bulletLine    = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
)

// FormatAnswer normalizes model output for display: one sentence per line,
// list markers at the start of their own line, repeated bullets removed and
// runs of blank lines collapsed.
func FormatAnswer(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = sentenceBreak.ReplaceAllString(text, "$1\n$2")
	text = inlineNumber.ReplaceAllString(text, "$1\n$2 ")
	text = inlineBullet.ReplaceAllString(text, "$1\n$2 ")

	seen := make(map[string]struct{})
	out := make([]string, 0)
	blank := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			if len(out) > 0 {
				blank = true
			}
			continue
		}

		if loc := bulletLine.FindStringIndex(line); loc != nil {
			key := util.TruncateRunes(strings.Join(strings.Fields(strings.ToLower(line[loc[1]:])), " "), bulletKeyLength)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
		}

		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
