package mocks

import (
	"context"
	"strings"
	"sync"
)

// GitRunCall records the parameters of a git command call.
type GitRunCall struct {
	Dir  string
	Args []string
}

// Command returns the call's arguments joined by spaces.
func (c GitRunCall) Command() string {
	return strings.Join(c.Args, " ")
}

// MockGitRunner implements git.GitRunner for testing.
type MockGitRunner struct {
	// RunFunc is called when Run is invoked. Override to customize behavior.
	RunFunc func(ctx context.Context, dir string, args ...string) ([]byte, error)

	// RunCalls tracks all calls to Run for verification.
	RunCalls []GitRunCall

	// mu protects call tracking slices
	mu sync.Mutex
}

// NewMockGitRunner creates a mock whose commands all succeed with empty output.
func NewMockGitRunner() *MockGitRunner {
	m := &MockGitRunner{}
	m.RunFunc = func(_ context.Context, _ string, _ ...string) ([]byte, error) {
		return []byte{}, nil
	}
	return m
}

// Run implements git.GitRunner.
func (m *MockGitRunner) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.RunCalls = append(m.RunCalls, GitRunCall{Dir: dir, Args: args})
	fn := m.RunFunc
	m.mu.Unlock()
	return fn(ctx, dir, args...)
}

// FailCommandWith configures Run to fail when the subcommand (first
// argument) matches. Other commands succeed with empty output.
func (m *MockGitRunner) FailCommandWith(command string, err error) {
	m.RunFunc = func(_ context.Context, _ string, args ...string) ([]byte, error) {
		if len(args) > 0 && args[0] == command {
			return nil, err
		}
		return []byte{}, nil
	}
}

// RespondWithMap configures Run to return outputs by full command line
// ("rev-parse HEAD") or, failing that, by subcommand ("status").
// Unmatched commands return empty output.
func (m *MockGitRunner) RespondWithMap(responses map[string]string) {
	m.RunFunc = func(_ context.Context, _ string, args ...string) ([]byte, error) {
		if output, ok := responses[strings.Join(args, " ")]; ok {
			return []byte(output), nil
		}
		if len(args) > 0 {
			if output, ok := responses[args[0]]; ok {
				return []byte(output), nil
			}
		}
		return []byte{}, nil
	}
}

// WasCommandCalled returns true if Run was called with the subcommand.
func (m *MockGitRunner) WasCommandCalled(command string) bool {
	return len(m.GetCallsForCommand(command)) > 0
}

// GetCallsForCommand returns all Run calls for a subcommand.
func (m *MockGitRunner) GetCallsForCommand(command string) []GitRunCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var calls []GitRunCall
	for _, call := range m.RunCalls {
		if len(call.Args) > 0 && call.Args[0] == command {
			calls = append(calls, call)
		}
	}
	return calls
}
