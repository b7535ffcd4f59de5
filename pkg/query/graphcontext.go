package query

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/ai"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/metrics"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/store"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/telemetry"
)

// Graph context modes.
const (
	ModeFixed     = "fixed"
	ModeGenerated = "generated"
)

const (
	fixedRowLimit     = 5
	generatedRowLimit = 25
	minKeywordLength  = 4
)

var (
	readOnlyPrefixes = []string{"MATCH", "OPTIONAL MATCH", "WITH", "UNWIND", "RETURN"}
	writeKeywords    = regexp.MustCompile(`(?i)\b(CREATE|MERGE|SET|DELETE|DETACH|REMOVE|DROP|FOREACH|CALL|LOAD\s+CSV|GRANT|REVOKE|DENY)\b`)
	trailingLimit    = regexp.MustCompile(`(?i)\s+LIMIT\s+([^\s()]+)$`)
)

type cypherQuery struct {
	Query string `json:"query" jsonschema_description:"A single read-only Cypher query"`
}

// GraphContextResolver turns a question into structural context from the
// knowledge graph. If the graph store is unavailable when the resolver is
// built, every Resolve returns an empty string.
type GraphContextResolver struct {
	store    store.GraphStorage
	aiClient ai.GraphAIClient
	mode     string
	metrics  *metrics.Metrics
}

// NewGraphContextResolverParams configures a GraphContextResolver.
//
// Mode is ModeFixed (the default) or ModeGenerated. AI is only used in
// generated mode.
type NewGraphContextResolverParams struct {
	Store   store.GraphStorage
	AI      ai.GraphAIClient
	Mode    string
	Metrics *metrics.Metrics
}

// NewGraphContextResolver verifies the graph store and returns a resolver.
// An unreachable store is logged and disables graph context.
func NewGraphContextResolver(ctx context.Context, params NewGraphContextResolverParams) *GraphContextResolver {
	mode := strings.ToLower(strings.TrimSpace(params.Mode))
	if mode != ModeGenerated {
		mode = ModeFixed
	}
	if mode == ModeGenerated && params.AI == nil {
		logger.Warn("[Query] Generated graph context needs an AI client, using fixed mode")
		mode = ModeFixed
	}

	r := &GraphContextResolver{
		aiClient: params.AI,
		mode:     mode,
		metrics:  params.Metrics,
	}
	if params.Store == nil {
		logger.Warn("[Query] No graph store configured, graph context disabled")
		return r
	}
	if err := params.Store.Verify(ctx); err != nil {
		logger.Warn("[Query] Graph store unreachable, graph context disabled", "err", err)
		return r
	}
	r.store = params.Store
	return r
}

// Available reports whether the resolver has a reachable graph store.
func (r *GraphContextResolver) Available() bool {
	return r != nil && r.store != nil
}

// Mode returns the active mode.
func (r *GraphContextResolver) Mode() string {
	return r.mode
}

// Resolve returns graph context for question, or "" when nothing was found
// or anything failed.
func (r *GraphContextResolver) Resolve(ctx context.Context, question string) string {
	return r.ResolveWithTrace(ctx, question, nil)
}

// ResolveWithTrace is Resolve reporting the executed query to t.
func (r *GraphContextResolver) ResolveWithTrace(ctx context.Context, question string, t Tracer) string {
	if !r.Available() {
		return ""
	}

	ctx, span := telemetry.Start(ctx, "query.graph_context", attribute.String("graph.mode", r.mode))
	defer span.End()

	var out string
	switch r.mode {
	case ModeGenerated:
		out = r.resolveGenerated(ctx, question, t)
	default:
		out = r.resolveFixed(ctx, question, t)
	}

	r.metrics.RecordGraphContext(r.mode, out != "")
	span.SetAttributes(attribute.Bool("graph.found", out != ""))
	return out
}

func (r *GraphContextResolver) resolveFixed(ctx context.Context, question string, t Tracer) string {
	keys := Keywords(question)
	if len(keys) == 0 {
		return ""
	}
	RecordGraphQuery(t, ModeFixed, strings.Join(keys, " "))

	rows, err := r.store.FindArticles(ctx, keys, fixedRowLimit)
	if err != nil {
		logger.Warn("[Query] Fixed graph query failed", "err", err)
		return ""
	}
	RecordGraphRows(t, len(rows))

	blocks := make([]string, 0, len(rows))
	for _, row := range rows {
		lines := make([]string, 0, 4)
		if row.Title != "" {
			lines = append(lines, row.Title)
		}
		if row.Chapter != "" {
			lines = append(lines, row.Chapter)
		}
		lines = append(lines, row.Article+" :")
		if row.Content != "" {
			lines = append(lines, row.Content)
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.TrimSpace(strings.Join(blocks, "\n\n"))
}

func (r *GraphContextResolver) resolveGenerated(ctx context.Context, question string, t Tracer) string {
	schema, err := r.store.Schema(ctx)
	if err != nil {
		logger.Warn("[Query] Failed to load graph schema", "err", err)
		return ""
	}

	prompt := fmt.Sprintf(ai.CypherPrompt, FormatSchema(schema), question)
	var res cypherQuery
	err = r.aiClient.GenerateCompletionWithFormat(
		ctx,
		"cypher_query",
		"A read-only Cypher query answering the question",
		prompt,
		&res,
		ai.WithTemperature(0),
	)
	if err != nil {
		logger.Warn("[Query] Failed to generate graph query", "err", err)
		return ""
	}

	query, err := CleanReadQuery(res.Query, generatedRowLimit)
	if err != nil {
		logger.Debug("[Query] Rejected generated graph query", "query", res.Query, "err", err)
		return ""
	}
	RecordGraphQuery(t, ModeGenerated, query)

	rows, err := r.store.ReadQuery(ctx, query, nil, generatedRowLimit)
	if err != nil {
		logger.Debug("[Query] Generated graph query failed", "query", query, "err", err)
		return ""
	}
	RecordGraphRows(t, len(rows))
	return formatRows(rows)
}

// Keywords returns the distinct lower-case tokens of question longer than
// three runes, in order of appearance.
func Keywords(question string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	long := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) >= minKeywordLength {
			long = append(long, tok)
		}
	}
	return store.DedupeStrings(long)
}

// FormatSchema renders the graph schema for the query prompt.
func FormatSchema(s store.GraphSchema) string {
	return fmt.Sprintf(
		"Node labels: %s\nRelationship types: %s\nProperty keys: %s",
		strings.Join(s.Labels, ", "),
		strings.Join(s.RelationshipTypes, ", "),
		strings.Join(s.PropertyKeys, ", "),
	)
}

// CleanReadQuery strips code fences and a trailing semicolon from a
// generated query and rejects anything that is not a single read-only
// query. When limit is positive the final LIMIT is capped at limit, or
// added if missing.
func CleanReadQuery(raw string, limit int) (string, error) {
	q := strings.TrimSpace(ai.StripCodeFence(raw))
	q = strings.TrimSpace(strings.TrimRight(q, "; \n\t"))
	if q == "" {
		return "", fmt.Errorf("empty query")
	}
	if strings.Contains(q, ";") {
		return "", fmt.Errorf("multiple statements")
	}

	upper := strings.ToUpper(q)
	allowed := false
	for _, p := range readOnlyPrefixes {
		if strings.HasPrefix(upper, p) {
			rest := upper[len(p):]
			if rest == "" || !isIdentRune(rest) {
				allowed = true
				break
			}
		}
	}
	if !allowed {
		return "", fmt.Errorf("query must start with one of %s", strings.Join(readOnlyPrefixes, ", "))
	}
	if kw := writeKeywords.FindString(q); kw != "" {
		return "", fmt.Errorf("write keyword %q not allowed", strings.ToUpper(kw))
	}
	if limit > 0 {
		q = capLimit(q, limit)
	}
	return q, nil
}

func capLimit(q string, limit int) string {
	m := trailingLimit.FindStringSubmatchIndex(q)
	if m == nil {
		return fmt.Sprintf("%s LIMIT %d", q, limit)
	}
	if n, err := strconv.Atoi(q[m[2]:m[3]]); err == nil && n >= 0 && n <= limit {
		return q
	}
	return fmt.Sprintf("%s LIMIT %d", q[:m[0]], limit)
}

func isIdentRune(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func formatRows(rows []map[string]any) string {
	blocks := make([]string, 0, len(rows))
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			v := row[k]
			if v == nil {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: %v", k, v))
		}
		if len(lines) > 0 {
			blocks = append(blocks, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(blocks, "\n\n")
}
