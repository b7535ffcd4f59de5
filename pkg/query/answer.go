// Package query answers legal questions from the hybrid context of the
// knowledge graph and the vector store.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/ai"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/metrics"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/store"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/telemetry"
)

// FallbackAnswer is returned whenever no grounded answer can be produced.
const FallbackAnswer = "Cette information n'est pas disponible dans les documents fournis."

var errEmptyAnswer = errors.New("model returned an empty answer")

// Synthesizer produces the final answer to a question. It never returns an
// empty string.
type Synthesizer struct {
	aiClient  ai.GraphAIClient
	retriever *Retriever
	graph     *GraphContextResolver
	metrics   *metrics.Metrics

	model     string
	maxTokens int
}

// NewSynthesizerParams configures a Synthesizer.
//
// Graph may be nil, in which case only vector context is used. K is the
// number of retrieved chunks; zero selects DefaultK.
type NewSynthesizerParams struct {
	AI      ai.GraphAIClient
	Vectors store.VectorStorage
	Graph   *GraphContextResolver
	Metrics *metrics.Metrics

	K         int
	Model     string
	MaxTokens int
}

// NewSynthesizer creates a Synthesizer.
//
// Example:
//
//	resolver := query.NewGraphContextResolver(ctx, query.NewGraphContextResolverParams{
//		Store: graphStore,
//		Mode:  query.ModeFixed,
//	})
//	s, err := query.NewSynthesizer(query.NewSynthesizerParams{
//		AI:      aiClient,
//		Vectors: vectorStore,
//		Graph:   resolver,
//	})
func NewSynthesizer(params NewSynthesizerParams) (*Synthesizer, error) {
	if params.AI == nil {
		return nil, errors.New("ai client is required")
	}
	if params.Vectors == nil {
		return nil, errors.New("vector store is required")
	}

	return &Synthesizer{
		aiClient:  params.AI,
		retriever: NewRetriever(params.AI, params.Vectors, params.K),
		graph:     params.Graph,
		metrics:   params.Metrics,
		model:     params.Model,
		maxTokens: params.MaxTokens,
	}, nil
}

// Answer answers question. On failure the fallback sentence is returned
// together with the error, so callers can log it and still respond.
func (s *Synthesizer) Answer(ctx context.Context, question string) (string, error) {
	return s.AnswerWithTrace(ctx, question, nil)
}

// AnswerWithTrace is Answer reporting retrieved chunks and graph queries to t.
func (s *Synthesizer) AnswerWithTrace(ctx context.Context, question string, t Tracer) (answer string, err error) {
	start := time.Now()
	ctx, span := telemetry.Start(ctx, "query.answer")
	outcome := metrics.AnswerGenerated
	defer func() {
		if err != nil {
			outcome = metrics.AnswerError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("answer.outcome", outcome))
		span.End()
		s.metrics.RecordAnswer(outcome, time.Since(start))
	}()

	question = strings.TrimSpace(question)

	var vectorContext string
	records, rErr := s.retriever.Retrieve(ctx, question, 0)
	if rErr != nil {
		logger.Warn("[Query] Vector retrieval failed", "err", rErr)
	} else {
		ids := make([]string, 0, len(records))
		texts := make([]string, 0, len(records))
		for _, r := range records {
			ids = append(ids, r.ChunkID)
			texts = append(texts, r.Text)
		}
		RecordRetrievedChunkIDs(t, ids...)
		vectorContext = Dedupe(strings.Join(texts, "\n\n"))
	}

	graphContext := ""
	if s.graph != nil {
		graphContext = s.graph.ResolveWithTrace(ctx, question, t)
	}

	span.SetAttributes(
		attribute.Int("context.graph_length", len(graphContext)),
		attribute.Int("context.vector_length", len(vectorContext)),
	)

	if graphContext == "" && vectorContext == "" {
		outcome = metrics.AnswerFallback
		return FallbackAnswer, nil
	}

	prompt := fmt.Sprintf(ai.AnswerPrompt, graphContext, vectorContext, question)
	opts := []ai.GenerateOption{
		ai.WithSystemPrompts(fmt.Sprintf(ai.AnswerSystemPrompt, FallbackAnswer)),
		ai.WithTemperature(0),
	}
	if s.model != "" {
		opts = append(opts, ai.WithModel(s.model))
	}
	if s.maxTokens > 0 {
		opts = append(opts, ai.WithMaxTokens(s.maxTokens))
	}

	res, err := s.aiClient.GenerateCompletion(ctx, prompt, opts...)
	if err != nil {
		return FallbackAnswer, fmt.Errorf("failed to generate answer: %w", err)
	}

	formatted := FormatAnswer(res)
	if formatted == "" {
		return FallbackAnswer, errEmptyAnswer
	}
	return formatted, nil
}
