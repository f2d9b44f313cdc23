package mocks

import (
	"context"
	"strings"
	"sync"

	"devloop/pkg/agent/llm"
)

// MockLLMClient is an llm.LLMClient for testing LLMGenerator and the
// middleware chain. By default Complete returns "{}".
type MockLLMClient struct {
	respond   func(req llm.CompletionRequest) (llm.CompletionResponse, error)
	modelName string
	calls     []llm.CompletionRequest
	mu        sync.Mutex
}

// NewMockLLMClient creates a client answering "{}" as "mock-model".
func NewMockLLMClient() *MockLLMClient {
	m := &MockLLMClient{modelName: "mock-model"}
	m.RespondWith("{}")
	return m
}

// Complete records req and returns the configured response.
func (m *MockLLMClient) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	respond := m.respond
	m.mu.Unlock()
	return respond(req)
}

// GetModelName implements llm.LLMClient.
func (m *MockLLMClient) GetModelName() string {
	return m.modelName
}

// SetModelName sets the name GetModelName reports.
func (m *MockLLMClient) SetModelName(name string) {
	m.modelName = name
}

// RespondWith makes every call return content with a normal stop.
func (m *MockLLMClient) RespondWith(content string) {
	m.set(func(llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Content: content, StopReason: "end_turn"}, nil
	})
}

// RespondTruncated makes every call return content cut off at the token limit.
func (m *MockLLMClient) RespondTruncated(content string) {
	m.set(func(llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Content: content, StopReason: "max_tokens"}, nil
	})
}

// FailCompleteWith makes every call fail with err.
func (m *MockLLMClient) FailCompleteWith(err error) {
	m.set(func(llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{}, err
	})
}

func (m *MockLLMClient) set(fn func(llm.CompletionRequest) (llm.CompletionResponse, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.respond = fn
}

// LastCompleteCall returns the most recent request, or nil.
func (m *MockLLMClient) LastCompleteCall() *llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	last := m.calls[len(m.calls)-1]
	return &last
}

// AssertCompleteCalledWith reports whether any message of any request
// contained substr.
func (m *MockLLMClient) AssertCompleteCalledWith(substr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, call := range m.calls {
		for _, msg := range call.Messages {
			if strings.Contains(msg.Content, substr) {
				return true
			}
		}
	}
	return false
}
