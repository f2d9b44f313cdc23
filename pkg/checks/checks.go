// Package checks runs a repository's verification commands (tests, linters)
// after a task converges and before it is committed.
package checks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"devloop/pkg/config"
	"devloop/pkg/exec"
	"devloop/pkg/logx"
)

// ErrChecksFailed is returned when a check exits non-zero.
var ErrChecksFailed = errors.New("project checks failed")

// maxReportedOutput caps the command output kept in a failure summary.
const maxReportedOutput = 4000

// Result is the outcome of one check.
type Result struct {
	Name     string
	Cmd      []string
	ExitCode int
	Output   string
	Duration time.Duration
}

// Passed reports a zero exit code.
func (r Result) Passed() bool {
	return r.ExitCode == 0
}

// Report lists the checks that ran, in order.
type Report struct {
	Results []Result
}

// Failed returns the first failing check, if any.
func (r *Report) Failed() (Result, bool) {
	for _, res := range r.Results {
		if !res.Passed() {
			return res, true
		}
	}
	return Result{}, false
}

// Summary renders the report for logs and problem entries.
func (r *Report) Summary() string {
	var b strings.Builder
	for _, res := range r.Results {
		status := "ok"
		if !res.Passed() {
			status = fmt.Sprintf("failed (exit %d)", res.ExitCode)
		}
		fmt.Fprintf(&b, "%s: %s [%s]\n", res.Name, status, strings.Join(res.Cmd, " "))
	}
	if failed, ok := r.Failed(); ok && failed.Output != "" {
		out := failed.Output
		if len(out) > maxReportedOutput {
			out = "..." + out[len(out)-maxReportedOutput:]
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(out))
	}
	return strings.TrimSpace(b.String())
}

// Runner executes checks in a repository directory.
type Runner struct {
	executor exec.Executor
	dir      string
	timeout  time.Duration
	logger   *logx.Logger
}

// NewRunner creates a Runner. A nil executor runs commands on the host;
// a zero timeout uses exec.DefaultTimeout.
func NewRunner(executor exec.Executor, dir string, timeout time.Duration) *Runner {
	if executor == nil {
		executor = exec.NewLocalExec()
	}
	return &Runner{executor: executor, dir: dir, timeout: timeout, logger: logx.NewLogger("checks")}
}

// Run executes checks in order and stops at the first failure, which is
// reported as ErrChecksFailed alongside the partial report.
func (r *Runner) Run(ctx context.Context, checks []config.Check) (*Report, error) {
	report := &Report{}
	for _, c := range checks {
		opts := &exec.Opts{WorkDir: r.dir, Timeout: r.timeout}
		res, err := r.executor.Run(ctx, c.Cmd, opts)
		if err != nil {
			return report, fmt.Errorf("check %s: %w", c.Name, err)
		}
		result := Result{
			Name:     c.Name,
			Cmd:      c.Cmd,
			ExitCode: res.ExitCode,
			Output:   res.Output(),
			Duration: res.Duration,
		}
		report.Results = append(report.Results, result)
		if !result.Passed() {
			r.logger.Warn("check %s failed with exit code %d", c.Name, res.ExitCode)
			return report, fmt.Errorf("%w: %s exited with %d", ErrChecksFailed, c.Name, res.ExitCode)
		}
		r.logger.Info("check %s passed in %s", c.Name, res.Duration.Round(time.Millisecond))
	}
	return report, nil
}
