package checks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devloop/pkg/config"
	"devloop/pkg/exec"
)

type scriptedExecutor struct {
	results map[string]exec.Result
	err     error
	ran     []string
	dirs    []string
}

func (s *scriptedExecutor) Run(_ context.Context, cmd []string, opts *exec.Opts) (exec.Result, error) {
	s.ran = append(s.ran, cmd[0])
	s.dirs = append(s.dirs, opts.WorkDir)
	if s.err != nil {
		return exec.Result{}, s.err
	}
	return s.results[cmd[0]], nil
}

func (s *scriptedExecutor) Name() exec.ExecutorType { return "scripted" }

func TestRunAllPass(t *testing.T) {
	ex := &scriptedExecutor{results: map[string]exec.Result{"test": {}, "lint": {}}}
	r := NewRunner(ex, "/repo", 0)

	report, err := r.Run(context.Background(), []config.Check{
		{Name: "test", Cmd: []string{"test"}},
		{Name: "lint", Cmd: []string{"lint"}},
	})
	require.NoError(t, err)
	assert.Len(t, report.Results, 2)
	_, failed := report.Failed()
	assert.False(t, failed)
	assert.Equal(t, []string{"/repo", "/repo"}, ex.dirs)
	assert.Contains(t, report.Summary(), "test: ok [test]")
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	ex := &scriptedExecutor{results: map[string]exec.Result{
		"test": {ExitCode: 1, Stdout: "FAIL: TestGreeting"},
		"lint": {},
	}}
	r := NewRunner(ex, "/repo", 0)

	report, err := r.Run(context.Background(), []config.Check{
		{Name: "test", Cmd: []string{"test", "./..."}},
		{Name: "lint", Cmd: []string{"lint"}},
	})
	require.ErrorIs(t, err, ErrChecksFailed)
	assert.Equal(t, []string{"test"}, ex.ran)

	failed, ok := report.Failed()
	require.True(t, ok)
	assert.Equal(t, "test", failed.Name)
	assert.Contains(t, report.Summary(), "test: failed (exit 1) [test ./...]")
	assert.Contains(t, report.Summary(), "FAIL: TestGreeting")
}

func TestRunExecutorError(t *testing.T) {
	boom := errors.New("cannot start")
	r := NewRunner(&scriptedExecutor{err: boom}, "/repo", 0)

	_, err := r.Run(context.Background(), []config.Check{{Name: "test", Cmd: []string{"test"}}})
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrChecksFailed)
}

func TestRunNoChecks(t *testing.T) {
	report, err := NewRunner(nil, t.TempDir(), 0).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Empty(t, report.Summary())
}

func TestSummaryTruncatesOutput(t *testing.T) {
	long := make([]byte, maxReportedOutput+100)
	for i := range long {
		long[i] = 'x'
	}
	report := &Report{Results: []Result{{Name: "t", Cmd: []string{"t"}, ExitCode: 2, Output: string(long)}}}
	assert.Less(t, len(report.Summary()), maxReportedOutput+100)
}
