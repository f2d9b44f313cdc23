package toolloop_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devloop/internal/mocks"
	"devloop/pkg/agent/middleware/metrics"
	"devloop/pkg/agent/toolloop"
	"devloop/pkg/contextmgr"
	"devloop/pkg/eventlog"
	"devloop/pkg/proto"
	"devloop/pkg/sandbox"
)

const (
	initialTurn = "Solve the task"
	done        = `{"status":"complete","answer":"42"}`
)

func decodeAnswer(raw []byte) (string, error) {
	var v struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	if v.Answer == "" {
		return "", errors.New(`"answer" is required`)
	}
	return v.Answer, nil
}

// countingExecutor wraps the sandbox executor and counts executions.
type countingExecutor struct {
	inner *toolloop.SandboxExecutor
	runs  []string
}

func (c *countingExecutor) Execute(ctx context.Context, cmd proto.Command) string {
	c.runs = append(c.runs, cmd.Raw)
	return c.inner.Execute(ctx, cmd)
}

type countingRecorder struct {
	metrics.NoopRecorder
	steps    map[string]int
	outcomes map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{steps: map[string]int{}, outcomes: map[string]int{}}
}

func (c *countingRecorder) IncStep(role, kind string) { c.steps[role+"/"+kind]++ }
func (c *countingRecorder) IncOutcome(role, outcome string) { c.outcomes[role+"/"+outcome]++ }

type fixture struct {
	gen   *mocks.MockGenerator
	exec  *countingExecutor
	sink  *eventlog.Memory
	rec   *countingRecorder
	state *contextmgr.State
	loop  *toolloop.ToolLoop
}

func newFixture(t *testing.T, replies ...string) *fixture {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("alpha\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("beta\n"), 0o644))

	acc, err := sandbox.New(root)
	require.NoError(t, err)

	f := &fixture{
		gen:   mocks.NewScriptedGenerator(replies...),
		exec:  &countingExecutor{inner: toolloop.NewSandboxExecutor(acc)},
		sink:  &eventlog.Memory{},
		rec:   newCountingRecorder(),
		state: contextmgr.NewState(),
	}
	f.loop = toolloop.New(f.gen, f.exec, f.sink, nil).WithRecorder(f.rec)
	return f
}

func (f *fixture) run(maxSteps int) (toolloop.Outcome[string], error) {
	return toolloop.Run(context.Background(), f.loop, toolloop.Config[string]{
		Role:               "developer",
		RoleInstruction:    "You are a developer.",
		InitialInstruction: initialTurn,
		State:              f.state,
		MaxSteps:           maxSteps,
		Decode:             decodeAnswer,
	})
}

func TestRunCompletesImmediately(t *testing.T) {
	f := newFixture(t, done)

	out, err := f.run(5)
	require.NoError(t, err)
	assert.Equal(t, toolloop.OutcomeComplete, out.Kind)
	assert.Equal(t, "42", out.Value)
	assert.Equal(t, 1, out.Steps)
	assert.Equal(t, 1, f.rec.outcomes["developer/complete"])
	assert.Equal(t, []string{"developer_step01_turn.txt", "developer_step01_reply.txt"}, f.sink.Names())
}

func TestRunExecutesCommandsIntoState(t *testing.T) {
	f := newFixture(t,
		`{"status":"need_more_info","commands":["ls .","cat a.txt","tree . 1","grep sub bet"]}`,
		done,
	)

	out, err := f.run(5)
	require.NoError(t, err)
	assert.Equal(t, toolloop.OutcomeComplete, out.Kind)
	assert.Equal(t, 2, out.Steps)

	text, ok := f.state.Get("CAT_OUTPUT a.txt")
	require.True(t, ok)
	assert.Equal(t, "alpha\n", text)

	grep, ok := f.state.Get("GREP_OUTPUT sub bet")
	require.True(t, ok)
	assert.Equal(t, "sub/b.txt:1:beta", grep)

	_, ok = f.state.Get("TREE_OUTPUT . 1")
	assert.True(t, ok)
	_, ok = f.state.Get("LS_OUTPUT .")
	assert.True(t, ok)

	// The round's exchange is dropped and the next call gets the base turn.
	second := f.gen.Calls[1]
	assert.Equal(t, initialTurn, second.Turn)
	assert.Equal(t, 0, second.History)
	assert.Len(t, second.Labels, 4)
}

func TestRunForbiddenPathIsData(t *testing.T) {
	f := newFixture(t, `{"status":"need_more_info","commands":["cat ../outside.txt"]}`, done)

	out, err := f.run(5)
	require.NoError(t, err)
	assert.Equal(t, toolloop.OutcomeComplete, out.Kind)
	text, ok := f.state.Get("CAT_OUTPUT ../outside.txt")
	require.True(t, ok)
	assert.Equal(t, sandbox.Forbidden, text)
	assert.Zero(t, out.Corrections)
}

func TestRunMalformedReplyRetries(t *testing.T) {
	f := newFixture(t, "I think I need to look at a.txt", `{"status":"complete"}`, done)

	out, err := f.run(5)
	require.NoError(t, err)
	assert.Equal(t, toolloop.OutcomeComplete, out.Kind)
	assert.Equal(t, 3, out.Steps)
	assert.Equal(t, 2, out.Corrections)
	assert.Zero(t, f.state.Len())
	assert.Empty(t, f.exec.runs)

	turns := f.gen.Turns()
	assert.Equal(t, initialTurn, turns[0])
	assert.Contains(t, turns[1], "no JSON object found")
	assert.Contains(t, turns[2], `"answer" is required`)
	assert.Equal(t, 2, f.gen.Calls[2].History)
	assert.Equal(t, 2, f.rec.steps["developer/malformed"])
	assert.Empty(t, f.state.History(), "exchanges do not outlive the run")
}

func TestRunStartsWithoutEarlierExchanges(t *testing.T) {
	f := newFixture(t, done)
	f.state.AppendExchange("old turn", "old reply")

	_, err := f.run(5)
	require.NoError(t, err)
	assert.Equal(t, 0, f.gen.Calls[0].History)
}

func TestRunExceedsBudgetWithoutCompleting(t *testing.T) {
	decodes := 0
	f := newFixture(t)
	f.gen.Repeat("not json")

	out, err := toolloop.Run(context.Background(), f.loop, toolloop.Config[string]{
		Role:               "reviewer",
		InitialInstruction: initialTurn,
		State:              f.state,
		MaxSteps:           3,
		Decode: func(raw []byte) (string, error) {
			decodes++
			return decodeAnswer(raw)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, toolloop.OutcomeExceeded, out.Kind)
	assert.Equal(t, 3, out.Steps)
	assert.Equal(t, 3, f.gen.CallCount())
	assert.Zero(t, decodes)
	assert.Empty(t, out.Value)
	assert.Equal(t, 1, f.rec.outcomes["reviewer/exceeded"])
	assert.Empty(t, f.state.History())
}

func TestRunDefaultBudget(t *testing.T) {
	f := newFixture(t)
	f.gen.Repeat(`{"status":"bogus"}`)

	out, err := f.run(0)
	require.NoError(t, err)
	assert.Equal(t, toolloop.OutcomeExceeded, out.Kind)
	assert.Equal(t, toolloop.DefaultMaxSteps, out.Steps)
}

func TestRunUnknownCommandIsCorrected(t *testing.T) {
	f := newFixture(t,
		`{"status":"need_more_info","commands":["cat a.txt","rm -rf /","ls ."]}`,
		done,
	)

	out, err := f.run(5)
	require.NoError(t, err)
	assert.Equal(t, toolloop.OutcomeComplete, out.Kind)
	assert.Equal(t, 1, out.Corrections)

	// Commands before the bad one ran, the ones after did not.
	assert.Equal(t, []string{"cat a.txt"}, f.exec.runs)
	_, ok := f.state.Get("LS_OUTPUT .")
	assert.False(t, ok)

	second := f.gen.Calls[1]
	assert.Contains(t, second.Turn, `"rm -rf /"`)
	assert.Contains(t, second.Turn, proto.CommandUsage)
	assert.Equal(t, 1, second.History)
}

func TestRunBadArgumentCountIsCorrected(t *testing.T) {
	f := newFixture(t, `{"status":"need_more_info","commands":["tree ."]}`, done)

	out, err := f.run(5)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Corrections)
	assert.Contains(t, f.gen.Calls[1].Turn, "tree takes a path and a depth")
}

func TestRunReadsOncePerRevision(t *testing.T) {
	cat := `{"status":"need_more_info","commands":["cat a.txt"]}`
	f := newFixture(t, cat, cat, done)

	_, err := f.run(5)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat a.txt"}, f.exec.runs)

	f.state.BumpEpoch()
	f.gen.Script(cat, done)
	_, err = f.run(5)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat a.txt", "cat a.txt"}, f.exec.runs)
	_, ok := f.state.Get("CAT_OUTPUT a.txt @rev1")
	assert.True(t, ok)
	assert.Equal(t, 2, f.state.Len())
}

func TestRunGeneratorError(t *testing.T) {
	boom := errors.New("upstream down")
	f := newFixture(t)
	f.gen.FailWith(boom)

	out, err := f.run(5)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, toolloop.OutcomeGeneratorError, out.Kind)
	assert.ErrorIs(t, out.Err, boom)
	assert.Equal(t, 1, out.Steps)
}

func TestRunCancelledContext(t *testing.T) {
	f := newFixture(t, done)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := toolloop.Run(ctx, f.loop, toolloop.Config[string]{State: f.state, Decode: decodeAnswer})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, toolloop.OutcomeGeneratorError, out.Kind)
	assert.Zero(t, f.gen.CallCount())
}

func TestRunInvalidConfig(t *testing.T) {
	f := newFixture(t, done)
	_, err := toolloop.Run(context.Background(), f.loop, toolloop.Config[string]{Decode: decodeAnswer})
	assert.ErrorIs(t, err, toolloop.ErrInvalidConfig)
	assert.Zero(t, f.gen.CallCount())
}

func TestOutcomeKindString(t *testing.T) {
	assert.Equal(t, "complete", toolloop.OutcomeComplete.String())
	assert.Equal(t, "exceeded", toolloop.OutcomeExceeded.String())
	assert.Equal(t, "generator_error", toolloop.OutcomeGeneratorError.String())
	assert.Equal(t, "OutcomeKind(9)", toolloop.OutcomeKind(9).String())
}
