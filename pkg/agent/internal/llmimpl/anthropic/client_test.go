package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devloop/pkg/agent/llm"
)

func TestEnsureAlternationMergesAndExtractsSystem(t *testing.T) {
	system, msgs, err := ensureAlternation([]llm.CompletionMessage{
		llm.NewSystemMessage("role"),
		llm.NewUserMessage("context"),
		llm.NewUserMessage("first turn"),
		llm.NewAssistantMessage("reply"),
		llm.NewUserMessage("second turn"),
	})
	require.NoError(t, err)
	assert.Equal(t, "role", system)
	assert.Equal(t, []llm.CompletionMessage{
		llm.NewUserMessage("context\n\nfirst turn"),
		llm.NewAssistantMessage("reply"),
		llm.NewUserMessage("second turn"),
	}, msgs)
}

func TestEnsureAlternationRejects(t *testing.T) {
	tests := map[string][]llm.CompletionMessage{
		"empty":             nil,
		"system only":       {llm.NewSystemMessage("s")},
		"assistant first":   {llm.NewAssistantMessage("a"), llm.NewUserMessage("u")},
		"ends on assistant": {llm.NewUserMessage("u"), llm.NewAssistantMessage("a")},
	}
	for name, msgs := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := ensureAlternation(msgs)
			assert.Error(t, err)
		})
	}
}

func TestConsecutiveAssistantMessagesAreMerged(t *testing.T) {
	_, msgs, err := ensureAlternation([]llm.CompletionMessage{
		llm.NewUserMessage("u"),
		llm.NewAssistantMessage("a1"),
		llm.NewAssistantMessage("a2"),
		llm.NewUserMessage("u2"),
	})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "a1\n\na2", msgs[1].Content)
}
