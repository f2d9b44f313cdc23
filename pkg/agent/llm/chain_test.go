package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticClient struct {
	reply string
	seen  []CompletionRequest
}

func (s *staticClient) Complete(_ context.Context, in CompletionRequest) (CompletionResponse, error) {
	s.seen = append(s.seen, in)
	return CompletionResponse{Content: s.reply}, nil
}

func (s *staticClient) GetModelName() string { return "static" }

func tag(name string, order *[]string) Middleware {
	return func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				*order = append(*order, name)
				return next.Complete(ctx, req)
			},
			next.GetModelName,
		)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	base := &staticClient{reply: "ok"}
	client := Chain(base, tag("outer", &order), tag("inner", &order))

	resp, err := client.Complete(context.Background(), NewCompletionRequest([]CompletionMessage{NewUserMessage("hi")}))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, []string{"outer", "inner"}, order)
	assert.Equal(t, "static", client.GetModelName())
	require.Len(t, base.seen, 1)
	assert.Equal(t, DefaultMaxTokens, base.seen[0].MaxTokens)
}

func TestChainWithoutMiddlewareReturnsBase(t *testing.T) {
	base := &staticClient{}
	assert.Same(t, base, Chain(base))
}

func TestLLMConfigValidate(t *testing.T) {
	valid := LLMConfig{APIKey: "k", ModelName: "m", MaxTokens: 10, Temperature: 0.2}
	require.NoError(t, valid.Validate())

	tests := map[string]func(c *LLMConfig){
		"no key":       func(c *LLMConfig) { c.APIKey = "" },
		"no model":     func(c *LLMConfig) { c.ModelName = "" },
		"zero tokens":  func(c *LLMConfig) { c.MaxTokens = 0 },
		"hot":          func(c *LLMConfig) { c.Temperature = 2.5 },
		"negative tmp": func(c *LLMConfig) { c.Temperature = -1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
