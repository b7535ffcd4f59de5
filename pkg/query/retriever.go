package query

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/ai"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/store"
)

// DefaultK is the number of chunks retrieved per question.
const DefaultK = 5

// Retriever finds the chunks most similar to a question.
type Retriever struct {
	aiClient ai.GraphAIClient
	vectors  store.VectorStorage
	k        int
}

// NewRetriever returns a retriever that embeds questions with aiC and
// searches vs. A k of zero or less selects DefaultK.
func NewRetriever(aiC ai.GraphAIClient, vs store.VectorStorage, k int) *Retriever {
	if k <= 0 {
		k = DefaultK
	}
	return &Retriever{aiClient: aiC, vectors: vs, k: k}
}

// Retrieve returns the k chunks closest to question, most similar first. A k
// of zero or less uses the retriever's default.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]common.VectorRecord, error) {
	if k <= 0 {
		k = r.k
	}

	embedding, err := r.aiClient.GenerateEmbedding(ctx, []byte(question))
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	records, err := r.vectors.Search(ctx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}
	return records, nil
}
