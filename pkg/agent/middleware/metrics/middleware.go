package metrics

import (
	"context"
	"strings"
	"time"

	"devloop/pkg/agent/llm"
	"devloop/pkg/agent/llmerrors"
	"devloop/pkg/config"
	"devloop/pkg/logx"
	"devloop/pkg/utils"
)

// UsageExtractor derives token usage from a request and its response.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor counts tokens with the tiktoken-based counter.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	var prompt strings.Builder
	for i := range req.Messages {
		prompt.WriteString(req.Messages[i].Content)
		prompt.WriteByte('\n')
	}
	return utils.CountTokensSimple(prompt.String()), utils.CountTokensSimple(resp.Content)
}

// Middleware records latency, token usage, and cost for every call made by
// the client serving role. The task id is taken from the context.
func Middleware(recorder Recorder, usageExtractor UsageExtractor, role string, logger *logx.Logger) llm.Middleware {
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.GetModelName()

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				r := Request{
					Model:    model,
					Role:     role,
					TaskID:   logx.TaskFrom(ctx),
					Success:  err == nil,
					Duration: duration,
				}
				if err == nil {
					r.PromptTokens, r.CompletionTokens = usageExtractor(req, resp)
					r.Cost = config.CalculateCost(model, r.PromptTokens, r.CompletionTokens)
				} else {
					r.ErrorType = errorType(err)
				}
				recorder.ObserveRequest(r)

				if logger != nil {
					status := "success"
					if err != nil {
						status = "error"
					}
					logger.Info("LLM request: model=%s role=%s task=%s tokens=%d+%d status=%s duration=%dms",
						model, role, r.TaskID, r.PromptTokens, r.CompletionTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // middleware passes errors through unchanged
			},
			next.GetModelName,
		)
	}
}

func errorType(err error) string {
	switch {
	case err == nil:
		return ""
	case strings.Contains(err.Error(), context.DeadlineExceeded.Error()):
		return "timeout"
	case strings.Contains(err.Error(), context.Canceled.Error()):
		return "canceled"
	default:
		return llmerrors.TypeOf(err).String()
	}
}
