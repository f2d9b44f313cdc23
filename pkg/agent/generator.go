package agent

import (
	"context"
	"fmt"
	"strings"

	"devloop/pkg/agent/llm"
	"devloop/pkg/contextmgr"
	"devloop/pkg/logx"
)

// Generator is the remote generation call.
type Generator interface {
	Generate(ctx context.Context, roleInstruction string, state *contextmgr.State, turn string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, roleInstruction string, state *contextmgr.State, turn string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, roleInstruction string, state *contextmgr.State, turn string) (string, error) {
	return f(ctx, roleInstruction, state, turn)
}

// statePreamble introduces the rendered state in the first user message.
const statePreamble = "Context gathered so far (labelled command outputs and notes):\n\n"

// LLMGenerator implements Generator over an llm.LLMClient.
type LLMGenerator struct {
	client      llm.LLMClient
	maxTokens   int
	temperature float32
	logger      *logx.Logger
}

// Option configures an LLMGenerator.
type Option func(*LLMGenerator)

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int) Option {
	return func(g *LLMGenerator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(g *LLMGenerator) { g.temperature = t }
}

// NewLLMGenerator returns a Generator backed by client.
func NewLLMGenerator(client llm.LLMClient, opts ...Option) *LLMGenerator {
	g := &LLMGenerator{
		client:      client,
		maxTokens:   llm.DefaultMaxTokens,
		temperature: llm.TemperatureDeterministic,
		logger:      logx.NewLogger("generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Messages builds the request messages: the role instruction as system, the
// rendered state, the exchanges of the current round, then the turn.
func Messages(roleInstruction string, state *contextmgr.State, turn string) []llm.CompletionMessage {
	history := state.History()
	msgs := make([]llm.CompletionMessage, 0, 3+2*len(history))
	msgs = append(msgs,
		llm.NewSystemMessage(roleInstruction),
		llm.NewUserMessage(statePreamble+state.Render()),
	)
	for _, ex := range history {
		msgs = append(msgs, llm.NewUserMessage(ex.Request), llm.NewAssistantMessage(ex.Reply))
	}
	return append(msgs, llm.NewUserMessage(turn))
}

// Generate implements Generator.
func (g *LLMGenerator) Generate(ctx context.Context, roleInstruction string, state *contextmgr.State, turn string) (string, error) {
	req := llm.NewCompletionRequest(Messages(roleInstruction, state, turn))
	req.MaxTokens = g.maxTokens
	req.Temperature = g.temperature
	req.JSON = true

	logx.Debug(ctx, "generator", "%s: %d messages, ~%d state tokens", g.client.GetModelName(), len(req.Messages), state.Tokens())

	resp, err := g.client.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generate with %s: %w", g.client.GetModelName(), err)
	}
	if resp.StopReason == "max_tokens" {
		g.logger.Warn("%s reply truncated at %d tokens", g.client.GetModelName(), g.maxTokens)
	}
	return strings.TrimSpace(resp.Content), nil
}
