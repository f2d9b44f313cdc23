package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		msg    string
		want   ErrorType
		status int
	}{
		{`POST "https://api.anthropic.com/v1/messages": 429 Too Many Requests`, ErrorTypeRateLimit, 429},
		{`POST "https://api.openai.com/v1/responses": 401 Unauthorized`, ErrorTypeAuth, 401},
		{"status code: 503", ErrorTypeTransient, 503},
		{"HTTP 400 Bad Request", ErrorTypeBadPrompt, 400},
		{"read tcp: connection reset by peer", ErrorTypeTransient, 0},
		{"unexpected EOF", ErrorTypeTransient, 0},
		{"quota exhausted for project", ErrorTypeRateLimit, 0},
		{"invalid api key", ErrorTypeAuth, 0},
		{"prompt is too long: 250000 tokens", ErrorTypeBadPrompt, 0},
		{"something odd", ErrorTypeUnknown, 0},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			cause := errors.New(tt.msg)
			got := Classify(cause, "test")
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Type)
			assert.Equal(t, tt.status, got.StatusCode)
			assert.ErrorIs(t, got, cause)
		})
	}
}

func TestClassifyPassesThroughClassified(t *testing.T) {
	inner := NewError(ErrorTypeEmptyResponse, "no content")
	got := Classify(fmt.Errorf("wrapped: %w", inner), "test")
	assert.Same(t, inner, got)
	assert.Nil(t, Classify(nil, "test"))
}

func TestRetryableTypes(t *testing.T) {
	assert.True(t, NewError(ErrorTypeRateLimit, "").IsRetryable())
	assert.True(t, NewError(ErrorTypeTransient, "").IsRetryable())
	assert.True(t, NewError(ErrorTypeUnknown, "").IsRetryable())
	assert.False(t, NewError(ErrorTypeAuth, "").IsRetryable())
	assert.False(t, NewError(ErrorTypeBadPrompt, "").IsRetryable())
	assert.False(t, NewServiceUnavailableError(context.DeadlineExceeded, 3).IsRetryable())
}

func TestIsAndTypeOf(t *testing.T) {
	err := fmt.Errorf("call: %w", NewServiceUnavailableError(errors.New("boom"), 3))
	assert.True(t, IsServiceUnavailable(err))
	assert.Equal(t, ErrorTypeServiceUnavailable, TypeOf(err))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
	assert.Contains(t, err.Error(), "service unavailable after 3 attempts")
}

func TestSanitizePrompt(t *testing.T) {
	assert.Equal(t, "short", SanitizePrompt("short", 50))

	long := strings.Repeat("a", 300) + strings.Repeat("z", 300)
	got := SanitizePrompt(long, 200)
	assert.True(t, strings.HasPrefix(got, strings.Repeat("a", 100)+"...[600 chars, hash:"))
	assert.True(t, strings.HasSuffix(got, "]..."+strings.Repeat("z", 100)))
}
