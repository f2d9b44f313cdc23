package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devloop/pkg/agent/llm"
	"devloop/pkg/agent/llmerrors"
)

func TestCompleteAgainstFakeServer(t *testing.T) {
	var got api.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.ChatResponse{ //nolint:errcheck // test server
			Model:      "qwen",
			Message:    api.Message{Role: "assistant", Content: `{"status":"need_more_info","commands":["ls ."]}`},
			Done:       true,
			DoneReason: "stop",
		})
	}))
	defer srv.Close()

	client := NewOllamaClientWithModel(srv.URL, "ollama:qwen")
	assert.Equal(t, "qwen", client.GetModelName())

	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewSystemMessage("s"), llm.NewUserMessage("u")})
	req.JSON = true
	resp, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"status":"need_more_info","commands":["ls ."]}`, resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)

	assert.Equal(t, "qwen", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.JSONEq(t, `"json"`, string(got.Format))
}

func TestClassifyError(t *testing.T) {
	assert.True(t, llmerrors.Is(classifyError(errors.New("dial tcp: connection refused")), llmerrors.ErrorTypeTransient))
	assert.True(t, llmerrors.Is(classifyError(errors.New(`model "x" not found, try pulling it first`)), llmerrors.ErrorTypeBadPrompt))
}

func TestStopReason(t *testing.T) {
	assert.Equal(t, "incomplete", stopReason(&api.ChatResponse{}))
	assert.Equal(t, "max_tokens", stopReason(&api.ChatResponse{Done: true, DoneReason: "length"}))
}
