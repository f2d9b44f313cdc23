// Package utils provides tiktoken-based token counting.
package utils

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts tokens with a tiktoken codec. Every supported provider
// is approximated with the GPT-4 encoding.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a counter for model.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the token count of text, or len/4 if the codec fails.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

var (
	sharedOnce    sync.Once
	sharedCounter *TokenCounter
)

// CountTokensSimple counts with a lazily built shared GPT-4 counter.
func CountTokensSimple(text string) int {
	sharedOnce.Do(func() {
		sharedCounter, _ = NewTokenCounter("gpt-4") //nolint:errcheck // nil counter falls back to len/4
	})
	return sharedCounter.CountTokens(text)
}
