package graph

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/OFFIS-RIT/lexgraph/backend/internal/util"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/common"
)

var errUnknownCategory = errors.New("unknown entity type")

// Spaces in legal texts are often non-breaking.
const space = `[\s\x{00A0}]+`

var (
	articleRe = regexp.MustCompile(`(?i)(?:article|art\.)` + space + `(\d+)`)
	codeRe    = regexp.MustCompile(`(?i)code` + space +
		`(?:civil|pénal|de` + space + `commerce|des` + space + `obligations|des` + space +
		`sociétés|du` + space + `travail|du` + space + `droit` + space + `international)[^,.\n]*`)
	chapterRe = regexp.MustCompile(`(?i)(?:chapitre|chapter)` + space + `([ivx]+|\d+)`)
	titleRe   = regexp.MustCompile(`(?i)(?:titre|title)` + space + `([ivx]+|\d+)`)
)

type concept struct {
	category string
	keywords []*regexp.Regexp
}

// Extractor finds legal entities in chunk text with a fixed, ordered set of
// patterns. It performs no I/O and is safe for concurrent use.
type Extractor struct {
	policy   NormalizationPolicy
	concepts []concept
}

// NewExtractor compiles the concept lexicon of policy.
func NewExtractor(policy NormalizationPolicy) *Extractor {
	e := &Extractor{policy: policy}
	for _, entry := range policy.Lexicon {
		c := concept{category: entry.Category}
		for _, k := range entry.Keywords {
			words := strings.Fields(k)
			if len(words) == 0 {
				continue
			}
			for j, w := range words {
				words[j] = regexp.QuoteMeta(w)
			}
			c.keywords = append(c.keywords, regexp.MustCompile(`(?i)`+strings.Join(words, space)))
		}
		if len(c.keywords) > 0 {
			e.concepts = append(e.concepts, c)
		}
	}
	return e
}

// Extract returns the entities found in text in pattern order: articles,
// codes, chapters, titles, then concepts. Entities are deduplicated by id
// within the call. The same input always yields the same output.
func (e *Extractor) Extract(text, chunkID string) []common.Entity {
	entities := make([]common.Entity, 0)
	seen := make(map[string]struct{})
	add := func(ent common.Entity) {
		if _, ok := seen[ent.ID]; ok {
			return
		}
		seen[ent.ID] = struct{}{}
		ent.ChunkID = chunkID
		entities = append(entities, ent)
	}

	excerpt := util.TruncateRunes(text, e.policy.excerptLength())
	for _, m := range findWords(articleRe, text, articleEnd) {
		num := strings.ToLower(text[m[2]:m[3]])
		add(common.Entity{
			ID:      "article_" + e.policy.Normalize(num),
			Type:    common.TypeArticle,
			Text:    "Article " + text[m[2]:m[3]],
			Excerpt: excerpt,
		})
	}

	for _, m := range findWords(codeRe, text, codeEnd) {
		name := collapseSpaces(text[m[0]:m[1]])
		add(common.Entity{
			ID:   "code_" + e.policy.Normalize(name),
			Type: common.TypeCode,
			Text: name,
		})
	}

	for _, m := range findWords(chapterRe, text, nil) {
		num := text[m[2]:m[3]]
		add(common.Entity{
			ID:   "chapter_" + e.policy.Normalize(num),
			Type: common.TypeChapter,
			Text: "Chapitre " + num,
		})
	}

	for _, m := range findWords(titleRe, text, nil) {
		num := text[m[2]:m[3]]
		add(common.Entity{
			ID:   "title_" + e.policy.Normalize(num),
			Type: common.TypeTitle,
			Text: "Titre " + num,
		})
	}

	for _, c := range e.concepts {
		for _, m := range findKeywords(c.keywords, text) {
			word := collapseSpaces(text[m[0]:m[1]])
			add(common.Entity{
				ID:   strings.ToLower(c.category) + "_" + e.policy.Normalize(word),
				Type: c.category,
				Text: word,
			})
		}
	}

	return entities
}

// endFunc adjusts the end of a raw match so that it sits on a word
// boundary. It returns the new match indices and false if no boundary can
// be reached.
type endFunc func(text string, m []int) ([]int, bool)

// findWords returns all matches of re that start and end on a Unicode word
// boundary. Rejected candidates are retried one rune further so that
// overlapping valid matches are not lost.
func findWords(re *regexp.Regexp, text string, end endFunc) [][]int {
	var out [][]int
	pos := 0
	for pos < len(text) {
		loc := re.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		for i := range loc {
			if loc[i] >= 0 {
				loc[i] += pos
			}
		}

		ok := isBoundary(text, loc[0])
		if ok {
			if end != nil {
				loc, ok = end(text, loc)
			} else {
				ok = isBoundary(text, loc[1])
			}
		}
		if ok {
			out = append(out, loc)
			pos = loc[1]
			continue
		}
		_, size := utf8.DecodeRuneInString(text[loc[0]:])
		pos = loc[0] + max(size, 1)
	}
	return out
}

// findKeywords returns the word matches of all keywords in text order. Where
// matches overlap the earliest, then longest, wins.
func findKeywords(keywords []*regexp.Regexp, text string) [][]int {
	var all [][]int
	for _, re := range keywords {
		all = append(all, findWords(re, text, nil)...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i][0] != all[j][0] {
			return all[i][0] < all[j][0]
		}
		return all[i][1] > all[j][1]
	})

	out := make([][]int, 0, len(all))
	end := 0
	for _, m := range all {
		if m[0] < end {
			continue
		}
		out = append(out, m)
		end = m[1]
	}
	return out
}

// articleEnd extends an article number by an optional single letter or a
// "-<digits>" suffix, preferring the longest form that ends on a boundary.
func articleEnd(text string, m []int) ([]int, bool) {
	digitsEnd := m[3]
	rest := text[digitsEnd:]

	if r, size := utf8.DecodeRuneInString(rest); size > 0 && r < utf8.RuneSelf && unicode.IsLetter(r) {
		if isBoundary(text, digitsEnd+size) {
			return withEnd(m, digitsEnd+size), true
		}
	}
	if strings.HasPrefix(rest, "-") {
		n := 1
		for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
			n++
		}
		if n > 1 && isBoundary(text, digitsEnd+n) {
			return withEnd(m, digitsEnd+n), true
		}
	}
	if isBoundary(text, digitsEnd) {
		return m, true
	}
	return nil, false
}

// codeEnd trims the free-text tail of a code name back to its last word
// character.
func codeEnd(text string, m []int) ([]int, bool) {
	end := m[1]
	for end > m[0] {
		r, size := utf8.DecodeLastRuneInString(text[m[0]:end])
		if isWordRune(r) {
			break
		}
		end -= size
	}
	if end <= m[0] {
		return nil, false
	}
	out := append([]int(nil), m...)
	out[1] = end
	return out, true
}

func withEnd(m []int, end int) []int {
	out := append([]int(nil), m...)
	out[1] = end
	out[3] = end
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

// isBoundary reports whether the byte offset i of text lies between a word
// character and a non-word character (or the text edge).
func isBoundary(text string, i int) bool {
	before, after := false, false
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:i])
		before = isWordRune(r)
	}
	if i < len(text) {
		r, _ := utf8.DecodeRuneInString(text[i:])
		after = isWordRune(r)
	}
	return before != after
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
