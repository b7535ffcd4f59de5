// Package aitest provides a scriptable ai.GraphAIClient for tests.
package aitest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/ai"
)

// Call records one completion request.
type Call struct {
	Prompt  string
	Options ai.GenerateOptions
}

// Client is an in-memory ai.GraphAIClient. Completion answers come from
// CompletionFunc when set, otherwise from Completion. Embeddings come from
// EmbedFunc when set, otherwise a fixed vector of length Dim is returned.
type Client struct {
	mu sync.Mutex

	Completion     string
	CompletionErr  error
	CompletionFunc func(ctx context.Context, prompt string) (string, error)

	// Format is marshalled into the out argument of
	// GenerateCompletionWithFormat.
	Format    any
	FormatErr error

	EmbedFunc func(input string) ([]float32, error)
	Dim       int

	Calls      []Call
	EmbedCalls []string
}

var _ ai.GraphAIClient = (*Client)(nil)

func (c *Client) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, Call{Prompt: prompt, Options: ai.ApplyOptions(ai.GenerateOptions{}, opts...)})
	fn := c.CompletionFunc
	out, err := c.Completion, c.CompletionErr
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt)
	}
	return out, err
}

func (c *Client) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	c.mu.Lock()
	c.Calls = append(c.Calls, Call{Prompt: prompt, Options: ai.ApplyOptions(ai.GenerateOptions{}, opts...)})
	format, err := c.Format, c.FormatErr
	c.mu.Unlock()

	if err != nil {
		return err
	}
	b, err := json.Marshal(format)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (c *Client) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	c.mu.Lock()
	c.EmbedCalls = append(c.EmbedCalls, string(input))
	fn := c.EmbedFunc
	dim := c.Dim
	c.mu.Unlock()

	if fn != nil {
		return fn(string(input))
	}
	if dim <= 0 {
		dim = 3
	}
	vec := make([]float32, dim)
	vec[0] = 1
	return vec, nil
}

func (c *Client) ResetMetrics() {}

func (c *Client) GetMetrics() ai.ModelMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ai.ModelMetrics{Requests: len(c.Calls) + len(c.EmbedCalls)}
}

// CallCount returns the number of completion requests seen so far.
func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}
