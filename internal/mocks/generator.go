package mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"devloop/pkg/contextmgr"
)

// ErrScriptExhausted is returned when a scripted generator runs out of replies.
var ErrScriptExhausted = errors.New("mock generator: no scripted reply left")

// GenerateCall records one Generate invocation.
type GenerateCall struct {
	RoleInstruction string
	Turn            string
	// Labels is a snapshot of the state's labels at call time.
	Labels []string
	// History is the number of exchanges in the state at call time.
	History int
}

// MockGenerator implements agent.Generator for testing.
type MockGenerator struct {
	// GenerateFunc is called for every Generate. Override to customize behavior.
	GenerateFunc func(ctx context.Context, roleInstruction string, state *contextmgr.State, turn string) (string, error)

	// Calls tracks all calls for verification.
	Calls []GenerateCall

	mu sync.Mutex
}

// NewMockGenerator returns a generator with no scripted replies.
func NewMockGenerator() *MockGenerator {
	return NewScriptedGenerator()
}

// NewScriptedGenerator returns the replies in order, then ErrScriptExhausted.
func NewScriptedGenerator(replies ...string) *MockGenerator {
	m := &MockGenerator{}
	m.Script(replies...)
	return m
}

// Generate implements agent.Generator.
func (m *MockGenerator) Generate(ctx context.Context, roleInstruction string, state *contextmgr.State, turn string) (string, error) {
	call := GenerateCall{RoleInstruction: roleInstruction, Turn: turn}
	if state != nil {
		for _, e := range state.Entries() {
			call.Labels = append(call.Labels, e.Label)
		}
		call.History = len(state.History())
	}
	m.mu.Lock()
	m.Calls = append(m.Calls, call)
	fn := m.GenerateFunc
	m.mu.Unlock()
	return fn(ctx, roleInstruction, state, turn)
}

// Script replaces the reply sequence.
func (m *MockGenerator) Script(replies ...string) {
	idx := 0
	var mu sync.Mutex
	m.GenerateFunc = func(ctx context.Context, _ string, _ *contextmgr.State, _ string) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		mu.Lock()
		defer mu.Unlock()
		if idx >= len(replies) {
			return "", fmt.Errorf("%w (after %d)", ErrScriptExhausted, len(replies))
		}
		reply := replies[idx]
		idx++
		return reply, nil
	}
}

// Repeat returns reply on every call.
func (m *MockGenerator) Repeat(reply string) {
	m.GenerateFunc = func(_ context.Context, _ string, _ *contextmgr.State, _ string) (string, error) {
		return reply, nil
	}
}

// FailWith configures Generate to return err.
func (m *MockGenerator) FailWith(err error) {
	m.GenerateFunc = func(_ context.Context, _ string, _ *contextmgr.State, _ string) (string, error) {
		return "", err
	}
}

// CallCount returns the number of Generate calls.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Turns returns the turn text of every call.
func (m *MockGenerator) Turns() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		turns[i] = c.Turn
	}
	return turns
}

// LastCall returns the most recent call, or nil if none.
func (m *MockGenerator) LastCall() *GenerateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	return &m.Calls[len(m.Calls)-1]
}
