package agent

import (
	"fmt"
	"time"

	"devloop/pkg/agent/internal/llmimpl/anthropic"
	"devloop/pkg/agent/internal/llmimpl/google"
	"devloop/pkg/agent/internal/llmimpl/ollama"
	"devloop/pkg/agent/internal/llmimpl/openaiofficial"
	"devloop/pkg/agent/llm"
	"devloop/pkg/agent/middleware/metrics"
	"devloop/pkg/agent/middleware/resilience/retry"
	"devloop/pkg/config"
	"devloop/pkg/logx"
)

// ClientOptions configures NewClient.
type ClientOptions struct {
	Role     string // metrics label, e.g. "developer"
	Recorder metrics.Recorder
	Retry    config.RetryConfig
	// APIKey overrides the config.GetAPIKey lookup when set.
	APIKey string
}

// NewRawClient builds the provider client for model without middleware.
func NewRawClient(model, apiKey string) (llm.LLMClient, error) {
	provider, err := config.GetModelProvider(model)
	if err != nil {
		return nil, fmt.Errorf("resolve provider: %w", err)
	}
	switch provider {
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClientWithModel(apiKey, model), nil
	case config.ProviderOpenAI:
		return openaiofficial.NewOfficialClientWithModel(apiKey, model), nil
	case config.ProviderGoogle:
		return google.NewGeminiClientWithModel(apiKey, model), nil
	case config.ProviderOllama:
		return ollama.NewOllamaClientWithModel(apiKey, model), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q for model %s", provider, model)
	}
}

// NewClient builds the client for model wrapped in metrics and retry
// middleware.
func NewClient(model string, opts ClientOptions) (llm.LLMClient, error) {
	provider, err := config.GetModelProvider(model)
	if err != nil {
		return nil, fmt.Errorf("resolve provider: %w", err)
	}

	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey, err = config.GetAPIKey(provider)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", model, err)
		}
	}

	raw, err := NewRawClient(model, apiKey)
	if err != nil {
		return nil, err
	}

	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.Nop()
	}
	logger := logx.NewLogger("llm-" + opts.Role)

	policy := retry.NewPolicy(retryConfig(opts.Retry), nil)

	return llm.Chain(raw,
		metrics.Middleware(recorder, nil, opts.Role, logger),
		retry.Middleware(policy, logger),
	), nil
}

func retryConfig(rc config.RetryConfig) retry.Config {
	cfg := retry.DefaultConfig
	if rc.MaxAttempts > 0 {
		cfg.MaxAttempts = rc.MaxAttempts
	}
	if rc.InitialDelayMs > 0 {
		cfg.InitialDelay = time.Duration(rc.InitialDelayMs) * time.Millisecond
	}
	if rc.MaxDelayMs > 0 {
		cfg.MaxDelay = time.Duration(rc.MaxDelayMs) * time.Millisecond
	}
	return cfg
}
