// Package git wraps the git command line for checkpointing task results:
// one branch per task, one commit per converged change set.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"devloop/pkg/logx"
)

// GitRunner runs git commands. Tests inject a mock.
type GitRunner interface { //nolint:revive // name mirrors the command
	// Run executes git with args in dir and returns its standard output.
	// Standard error only appears in the returned error.
	Run(ctx context.Context, dir string, args ...string) ([]byte, error)
}

// DefaultGitRunner implements GitRunner using the system git binary.
type DefaultGitRunner struct {
	logger *logx.Logger
}

// NewDefaultGitRunner creates a new DefaultGitRunner.
func NewDefaultGitRunner() *DefaultGitRunner {
	return &DefaultGitRunner{logger: logx.NewLogger("git")}
}

// Run executes a git command using exec.CommandContext.
func (g *DefaultGitRunner) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	g.logger.Debug("cd %s && git %s", dir, strings.Join(args, " "))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		g.logger.Debug("git stderr: %s", stderr.String())
		return stdout.Bytes(), fmt.Errorf("git %s failed in %s: %w\nOutput: %s",
			strings.Join(args, " "), dir, err, strings.TrimSpace(stderr.String()))
	}
	if stderr.Len() > 0 {
		g.logger.Debug("git stderr: %s", strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
