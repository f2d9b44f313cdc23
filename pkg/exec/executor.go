// Package exec runs project commands on the host. The checks runner uses it
// to run the test and lint commands configured for a repository.
package exec

import (
	"context"
	"time"
)

// ExecutorType represents the type of executor.
type ExecutorType string

// ExecutorTypeLocal runs commands directly on the host.
const ExecutorTypeLocal ExecutorType = "local"

// DefaultTimeout bounds a command when Opts.Timeout is zero.
const DefaultTimeout = 5 * time.Minute

// Executor defines the interface for executing commands.
type Executor interface {
	// Run executes a command and returns its result. A non-zero exit code
	// is reported in Result, not as an error.
	Run(ctx context.Context, cmd []string, opts *Opts) (Result, error)

	// Name returns the executor type name for logging.
	Name() ExecutorType
}

// Opts contains options for command execution.
type Opts struct {
	// Env holds extra KEY=VALUE pairs added to the current environment.
	Env []string

	// Timeout is the maximum duration for command execution.
	Timeout time.Duration

	// WorkDir is the working directory for the command.
	WorkDir string
}

// Result contains the result of command execution.
type Result struct {
	Stdout       string
	Stderr       string
	ExecutorUsed ExecutorType
	Duration     time.Duration
	// ExitCode is -1 when the command could not be started.
	ExitCode int
}

// Output returns stdout followed by stderr.
func (r Result) Output() string {
	switch {
	case r.Stderr == "":
		return r.Stdout
	case r.Stdout == "":
		return r.Stderr
	default:
		return r.Stdout + "\n" + r.Stderr
	}
}

// DefaultExecOpts returns default execution options.
func DefaultExecOpts() Opts {
	return Opts{Timeout: DefaultTimeout}
}
