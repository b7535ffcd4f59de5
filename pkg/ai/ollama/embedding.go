package ollama

import (
	"context"
	"strings"
	"time"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/ai"

	"github.com/ollama/ollama/api"
)

const defaultDimensions = 1024

// GenerateEmbedding creates a vector embedding for the given input text
// using the configured embedding model on Ollama.
//
// Blank input yields a zero vector. The result always has the configured
// number of dimensions.
func (c *GraphOllamaClient) GenerateEmbedding(
	ctx context.Context,
	input []byte,
) ([]float32, error) {
	out, err := c.GenerateEmbeddings(ctx, [][]byte{input})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// GenerateEmbeddings embeds several inputs with a single request.
func (c *GraphOllamaClient) GenerateEmbeddings(
	ctx context.Context,
	inputs [][]byte,
) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	texts := make([]string, 0, len(inputs))
	pos := make([]int, 0, len(inputs))
	for i, in := range inputs {
		s := strings.TrimSpace(string(in))
		if s == "" {
			out[i] = make([]float32, c.dimensions)
			continue
		}
		texts = append(texts, s)
		pos = append(pos, i)
	}
	if len(texts) == 0 {
		return out, nil
	}

	rCtx, cancel := context.WithTimeout(ctx, time.Minute*time.Duration(c.timeoutMin))
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	res, err := c.Client.Embed(rCtx, &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: texts,
	})
	if err != nil {
		return nil, err
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens: res.PromptEvalCount,
		TotalTokens: res.PromptEvalCount,
		DurationMs:  res.TotalDuration.Milliseconds(),
	})

	for j, i := range pos {
		vec := make([]float32, c.dimensions)
		if j < len(res.Embeddings) {
			copy(vec, res.Embeddings[j])
		}
		out[i] = vec
	}
	return out, nil
}
