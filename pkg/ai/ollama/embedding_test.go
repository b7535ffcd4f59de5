package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		*calls++
		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		embeddings := make([][]float32, len(body.Input))
		for i := range body.Input {
			embeddings[i] = []float32{float32(i + 1), 0.5, 0.25, 0.125, 9}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":             body.Model,
			"embeddings":        embeddings,
			"prompt_eval_count": 7,
		})
	}))
}

func TestGenerateEmbeddings_TruncatesToDimensions(t *testing.T) {
	calls := 0
	srv := newTestServer(t, &calls)
	defer srv.Close()

	c, err := NewGraphOllamaClient(NewGraphOllamaClientParams{
		EmbeddingModel: "bge-m3",
		BaseURL:        srv.URL,
		Dimensions:     4,
	})
	require.NoError(t, err)

	out, err := c.GenerateEmbeddings(context.Background(), [][]byte{
		[]byte("Article 862"),
		[]byte("   "),
		[]byte("Code civil"),
	})
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, []float32{1, 0.5, 0.25, 0.125}, out[0])
	assert.Equal(t, []float32{0, 0, 0, 0}, out[1])
	assert.Equal(t, []float32{2, 0.5, 0.25, 0.125}, out[2])
	assert.Equal(t, 1, calls)
	assert.Equal(t, 7, c.GetMetrics().InputTokens)
}

func TestGenerateEmbedding_BlankInputSkipsRequest(t *testing.T) {
	calls := 0
	srv := newTestServer(t, &calls)
	defer srv.Close()

	c, err := NewGraphOllamaClient(NewGraphOllamaClientParams{BaseURL: srv.URL, Dimensions: 3})
	require.NoError(t, err)

	vec, err := c.GenerateEmbedding(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0}, vec)
	assert.Zero(t, calls)

	c.ResetMetrics()
	assert.Zero(t, c.GetMetrics().Requests)
}
