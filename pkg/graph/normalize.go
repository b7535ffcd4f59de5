package graph

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/common"
)

const defaultExcerptLength = 500

// LexiconEntry maps one concept category to the keywords that denote it.
type LexiconEntry struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// NormalizationPolicy controls how matched text is turned into entity ids
// and which optional enrichments the ingestor applies.
//
// Aliases map a normalized surface form to its canonical text, so that for
// example "droits" and "droit" resolve to the same node. Keys and values are
// normalized when the policy is loaded.
type NormalizationPolicy struct {
	Aliases          map[string]string `yaml:"aliases"`
	Lexicon          []LexiconEntry    `yaml:"lexicon"`
	ExcerptLength    int               `yaml:"excerpt_length"`
	InferContainment bool              `yaml:"infer_containment"`
}

// DefaultLexicon is the built-in concept lexicon.
var DefaultLexicon = []LexiconEntry{
	{Category: common.TypeObligation, Keywords: []string{"obligation", "duty", "devoir"}},
	{Category: common.TypeRight, Keywords: []string{"droit", "right", "droits"}},
	{Category: common.TypeContract, Keywords: []string{"contrat", "contract", "accord"}},
	{Category: common.TypePerson, Keywords: []string{"personne", "person", "individu"}},
	{Category: common.TypeCompany, Keywords: []string{"entreprise", "company", "société"}},
	{Category: common.TypeAction, Keywords: []string{"action", "act", "action juridique"}},
}

// DefaultPolicy returns the policy used when no policy file is configured:
// lower-case ids with whitespace collapsed to "_", no aliases and no
// containment inference.
func DefaultPolicy() NormalizationPolicy {
	lexicon := make([]LexiconEntry, len(DefaultLexicon))
	for i, e := range DefaultLexicon {
		lexicon[i] = LexiconEntry{Category: e.Category, Keywords: append([]string(nil), e.Keywords...)}
	}
	return NormalizationPolicy{
		Aliases:       map[string]string{},
		Lexicon:       lexicon,
		ExcerptLength: defaultExcerptLength,
	}
}

// LoadNormalizationPolicy reads a YAML policy file. Missing fields fall back
// to the defaults. An empty path returns DefaultPolicy.
//
// Example file:
//
//	aliases:
//	  droits: droit
//	excerpt_length: 400
//	infer_containment: true
func LoadNormalizationPolicy(path string) (NormalizationPolicy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return NormalizationPolicy{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParseNormalizationPolicy(data)
}

// ParseNormalizationPolicy decodes a YAML policy document.
func ParseNormalizationPolicy(data []byte) (NormalizationPolicy, error) {
	var p NormalizationPolicy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return NormalizationPolicy{}, fmt.Errorf("decode policy: %w", err)
	}

	def := DefaultPolicy()
	if p.ExcerptLength <= 0 {
		p.ExcerptLength = def.ExcerptLength
	}
	if len(p.Lexicon) == 0 {
		p.Lexicon = def.Lexicon
	}
	for _, e := range p.Lexicon {
		if !common.IsEntityType(e.Category) {
			return NormalizationPolicy{}, fmt.Errorf("lexicon category %q: %w", e.Category, errUnknownCategory)
		}
	}

	aliases := make(map[string]string, len(p.Aliases))
	for k, v := range p.Aliases {
		aliases[normalizeKey(k)] = normalizeKey(v)
	}
	p.Aliases = aliases
	return p, nil
}

// Normalize turns matched text into the id suffix of an entity.
func (p NormalizationPolicy) Normalize(text string) string {
	key := normalizeKey(text)
	if canonical, ok := p.Aliases[key]; ok && canonical != "" {
		return canonical
	}
	return key
}

func (p NormalizationPolicy) excerptLength() int {
	if p.ExcerptLength <= 0 {
		return defaultExcerptLength
	}
	return p.ExcerptLength
}

func normalizeKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), "_")
}
