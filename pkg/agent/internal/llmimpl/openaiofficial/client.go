// Package openaiofficial implements llm.LLMClient on the OpenAI Responses API
// using the official Go SDK.
package openaiofficial

import (
	"context"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"devloop/pkg/agent/llm"
	"devloop/pkg/agent/llmerrors"
	"devloop/pkg/config"
)

// OfficialClient wraps the official OpenAI client.
type OfficialClient struct {
	client openai.Client
	model  string
}

// NewOfficialClientWithModel creates a raw client; middleware is applied by the caller.
func NewOfficialClientWithModel(apiKey, model string) llm.LLMClient {
	return &OfficialClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// buildInput flattens the conversation into the single input string the
// Responses API accepts.
func buildInput(messages []llm.CompletionMessage) string {
	var b strings.Builder
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			b.WriteString("System: ")
		case llm.RoleAssistant:
			b.WriteString("Assistant: ")
		}
		b.WriteString(msg.Content)
		b.WriteString("\n\n")
	}
	return strings.TrimSuffix(b.String(), "\n\n")
}

// capTokens limits maxTokens to the model's known output limit.
func capTokens(model string, maxTokens int) int {
	if info, ok := config.KnownModels[model]; ok && info.MaxOutputTokens > 0 && maxTokens > info.MaxOutputTokens {
		return info.MaxOutputTokens
	}
	return maxTokens
}

// Complete implements llm.LLMClient.
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if len(in.Messages) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "message list cannot be empty")
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(capTokens(o.model, in.MaxTokens))),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(buildInput(in.Messages))},
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.Classify(err, "openai")
	}
	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI Responses API")
	}

	content := resp.OutputText()
	if content == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "OpenAI response has no text output")
	}
	return llm.CompletionResponse{Content: content}, nil
}

// GetModelName returns the model name for this client.
func (o *OfficialClient) GetModelName() string {
	return o.model
}
