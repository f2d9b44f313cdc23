// Package config provides configuration loading, validation, model registry,
// and encrypted secrets for devloop.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Project layout constants.
const (
	ProjectConfigDir      = ".devloop"
	ProjectConfigFilename = "config.json"
	DatabaseFilename      = "devloop.db"
	TaskIDPlaceholder     = "{TASK_ID}"
)

// Model name constants.
const (
	ModelClaudeSonnet4 = "claude-sonnet-4-5"
	ModelClaudeOpus45  = "claude-opus-4-5"
	ModelGPT4o         = "gpt-4o"
	ModelGPT4oMini     = "gpt-4o-mini"
	ModelGPT5          = "gpt-5"
	ModelGemini25Flash = "gemini-2.5-flash"

	DefaultDeveloperModel = ModelClaudeSonnet4
	DefaultReviewerModel  = ModelGPT4oMini
)

// Provider constants.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"

	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"

	defaultOllamaHost = "http://localhost:11434"
)

// Defaults applied by Load when a field is unset.
const (
	DefaultMaxStepsDeveloper = 60
	DefaultMaxStepsReviewer  = 60
	DefaultMaxOutputTokens   = 8192
	DefaultBranchPattern     = "task-" + TaskIDPlaceholder
	DefaultRetryAttempts     = 3
	DefaultRetryInitialMs    = 500
	DefaultRetryMaxMs        = 10000
)

// ModelInfo is static information about a known model.
type ModelInfo struct {
	Provider         string
	InputCPM         float64 // USD per million input tokens
	OutputCPM        float64 // USD per million output tokens
	MaxContextTokens int
	MaxOutputTokens  int
}

// KnownModels maps model names to provider and limits. Unknown models fall
// back to ProviderPatterns.
//
//nolint:gochecknoglobals // static registry
var KnownModels = map[string]ModelInfo{
	ModelClaudeSonnet4: {Provider: ProviderAnthropic, InputCPM: 3.0, OutputCPM: 15.0, MaxContextTokens: 200000, MaxOutputTokens: 8192},
	ModelClaudeOpus45:  {Provider: ProviderAnthropic, InputCPM: 15.0, OutputCPM: 75.0, MaxContextTokens: 200000, MaxOutputTokens: 16384},
	ModelGPT4o:         {Provider: ProviderOpenAI, InputCPM: 2.5, OutputCPM: 10.0, MaxContextTokens: 128000, MaxOutputTokens: 4096},
	ModelGPT4oMini:     {Provider: ProviderOpenAI, InputCPM: 0.15, OutputCPM: 0.6, MaxContextTokens: 128000, MaxOutputTokens: 16384},
	ModelGPT5:          {Provider: ProviderOpenAI, InputCPM: 20.0, OutputCPM: 60.0, MaxContextTokens: 128000, MaxOutputTokens: 4096},
	ModelGemini25Flash: {Provider: ProviderGoogle, InputCPM: 0.30, OutputCPM: 2.50, MaxContextTokens: 1048576, MaxOutputTokens: 65536},
}

// ProviderPattern infers a provider from a model-name prefix.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

//nolint:gochecknoglobals // static inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"deepseek", ProviderOllama},
	{"phi", ProviderOllama},
	{"ollama:", ProviderOllama},
}

// GetModelProvider returns the provider for modelName, consulting KnownModels
// then ProviderPatterns.
func GetModelProvider(modelName string) (string, error) {
	if info, ok := KnownModels[modelName]; ok {
		return info.Provider, nil
	}
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}
	return "", fmt.Errorf("unknown model '%s': no known provider mapping or pattern match", modelName)
}

// GetModelInfo returns registry info, or conservative defaults and false.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, ok := KnownModels[modelName]; ok {
		return info, true
	}
	provider, _ := GetModelProvider(modelName) //nolint:errcheck // empty provider is fine here
	return ModelInfo{Provider: provider, MaxContextTokens: 32000, MaxOutputTokens: 4096}, false
}

// CalculateCost returns the USD cost of a call; unknown models cost 0.
func CalculateCost(modelName string, promptTokens, completionTokens int) float64 {
	info, ok := KnownModels[modelName]
	if !ok {
		return 0
	}
	return float64(promptTokens)/1_000_000.0*info.InputCPM + float64(completionTokens)/1_000_000.0*info.OutputCPM
}

// GetAPIKey returns the credential for provider: decrypted secrets first,
// then environment. Ollama returns its host URL.
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		if host := os.Getenv(EnvOllamaHost); host != "" {
			return host, nil
		}
		return defaultOllamaHost, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	key, err := GetSecret(envVar)
	if err == nil && key != "" {
		return key, nil
	}
	return "", fmt.Errorf("API key not found: %s not found in secrets file or environment variables", envVar)
}

// Config is the contents of .devloop/config.json after defaults.
type Config struct {
	Models      ModelsConfig      `json:"models"`
	Loop        LoopConfig        `json:"loop"`
	Git         GitConfig         `json:"git"`
	Sandbox     SandboxConfig     `json:"sandbox"`
	Paths       PathsConfig       `json:"paths"`
	Retry       RetryConfig       `json:"retry"`
	Metrics     MetricsConfig     `json:"metrics"`
	Persistence PersistenceConfig `json:"persistence"`
}

// ModelsConfig names the model used for each role.
type ModelsConfig struct {
	Developer       string `json:"developer" validate:"required"`
	Reviewer        string `json:"reviewer" validate:"required"`
	MaxOutputTokens int    `json:"max_output_tokens" validate:"gte=256,lte=200000"`
}

// LoopConfig bounds the execution loop and the convergence cycle.
type LoopConfig struct {
	MaxStepsDeveloper int `json:"max_steps_developer" validate:"gte=1,lte=1000"`
	MaxStepsReviewer  int `json:"max_steps_reviewer" validate:"gte=1,lte=1000"`
	MaxRounds         int `json:"max_rounds" validate:"gte=0"` // 0 = unbounded
}

// GitConfig controls branch naming.
type GitConfig struct {
	BranchPattern string `json:"branch_pattern" validate:"required"`
}

// BranchName renders the branch pattern for taskID.
func (g GitConfig) BranchName(taskID string) string {
	return strings.ReplaceAll(g.BranchPattern, TaskIDPlaceholder, taskID)
}

// SandboxConfig extends the accessor's noise set.
type SandboxConfig struct {
	ExtraNoise []string `json:"extra_noise" validate:"dive,required"`
}

// PathsConfig locates backlog and project files relative to the repository.
type PathsConfig struct {
	Facts    string `json:"facts" validate:"required"`
	Backlog  string `json:"backlog" validate:"required"`
	Done     string `json:"done" validate:"required"`
	Problems string `json:"problems" validate:"required"`
	Checks   string `json:"checks" validate:"required"`
	TaskLogs string `json:"task_logs" validate:"required"`
}

// RetryConfig tunes the generator retry middleware.
type RetryConfig struct {
	MaxAttempts    int `json:"max_attempts" validate:"gte=1,lte=10"`
	InitialDelayMs int `json:"initial_delay_ms" validate:"gte=0"`
	MaxDelayMs     int `json:"max_delay_ms" validate:"gtefield=InitialDelayMs"`
}

// MetricsConfig enables the Prometheus endpoint when ListenAddr is set.
type MetricsConfig struct {
	ListenAddr string `json:"listen_addr" validate:"omitempty,hostname_port"`
}

// PersistenceConfig locates the run journal. Empty means .devloop/devloop.db.
type PersistenceConfig struct {
	DBPath string `json:"db_path"`
}
