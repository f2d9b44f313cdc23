// Package toolloop drives one agent role to a terminal structured reply:
// each step sends the role instruction, the conversation state and the
// current turn to the generator, then either runs the requested exploration
// commands or returns the decoded result.
package toolloop

import (
	"context"
	"errors"
	"fmt"

	"devloop/pkg/agent"
	"devloop/pkg/agent/middleware/metrics"
	"devloop/pkg/contextmgr"
	"devloop/pkg/eventlog"
	"devloop/pkg/logx"
	"devloop/pkg/proto"
)

// DefaultMaxSteps bounds a run when Config.MaxSteps is zero.
const DefaultMaxSteps = 60

// ToolLoop holds the collaborators shared by every run.
type ToolLoop struct {
	gen      agent.Generator
	exec     CommandExecutor
	sink     eventlog.Sink
	logger   *logx.Logger
	recorder metrics.Recorder
}

// New creates a ToolLoop. A nil sink discards artifacts.
func New(gen agent.Generator, exec CommandExecutor, sink eventlog.Sink, logger *logx.Logger) *ToolLoop {
	if sink == nil {
		sink = eventlog.Discard
	}
	if logger == nil {
		logger = logx.NewLogger("toolloop")
	}
	return &ToolLoop{
		gen:      gen,
		exec:     exec,
		sink:     sink,
		logger:   logger,
		recorder: metrics.Nop(),
	}
}

// WithRecorder sets the recorder for step and outcome counters.
func (tl *ToolLoop) WithRecorder(r metrics.Recorder) *ToolLoop {
	if r != nil {
		tl.recorder = r
	}
	return tl
}

// Config describes one run.
//
//nolint:govet // fieldalignment: ordered for readability
type Config[T any] struct {
	// Role names the agent in logs, artifacts and metrics ("developer", "reviewer").
	Role string

	// RoleInstruction is the fixed system text for the role.
	RoleInstruction string

	// InitialInstruction is the first turn. It is also the turn sent after
	// every successful command round.
	InitialInstruction string

	// State is shared with the caller and accumulates command output.
	State *contextmgr.State

	// MaxSteps caps remote calls. Zero means DefaultMaxSteps.
	MaxSteps int

	// Decode validates a complete reply into T.
	Decode proto.Decoder[T]
}

// Run executes the loop until the role completes, the budget runs out, or
// the generator fails.
func Run[T any](ctx context.Context, tl *ToolLoop, cfg Config[T]) (Outcome[T], error) {
	if cfg.State == nil || cfg.Decode == nil {
		return Outcome[T]{Kind: OutcomeGeneratorError, Err: ErrInvalidConfig}, ErrInvalidConfig
	}
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	// Exchanges are private to one run; the next role starts without them.
	cfg.State.ClearHistory()
	defer cfg.State.ClearHistory()

	var out Outcome[T]
	turn := cfg.InitialInstruction

	for out.Steps < maxSteps {
		if err := ctx.Err(); err != nil {
			return fail(tl, cfg.Role, out, err)
		}

		out.Steps++
		step := out.Steps

		raw, err := tl.gen.Generate(ctx, cfg.RoleInstruction, cfg.State, turn)
		tl.artifact(cfg.Role, step, "turn.txt", turn)
		if err != nil {
			return fail(tl, cfg.Role, out, err)
		}
		tl.artifact(cfg.Role, step, "reply.txt", raw)

		reply, err := proto.ParseReply(raw, cfg.Decode)
		if err != nil {
			tl.logger.Warn("%s step %d: %v", cfg.Role, step, err)
			tl.recorder.IncStep(cfg.Role, "malformed")
			cfg.State.AppendExchange(turn, raw)
			turn = correctiveForReply(err)
			out.Corrections++
			continue
		}

		switch r := reply.(type) {
		case proto.Complete[T]:
			tl.recorder.IncStep(cfg.Role, "complete")
			tl.recorder.IncOutcome(cfg.Role, OutcomeComplete.String())
			tl.logger.Info("%s completed after %d steps (%d corrections)", cfg.Role, step, out.Corrections)
			out.Kind = OutcomeComplete
			out.Value = r.Result
			return out, nil

		case proto.NeedMoreInfo[T]:
			tl.recorder.IncStep(cfg.Role, "commands")
			if cmdErr := tl.runCommands(ctx, cfg.Role, step, cfg.State, r.Commands); cmdErr != nil {
				tl.logger.Warn("%s step %d: %v", cfg.Role, step, cmdErr)
				cfg.State.AppendExchange(turn, raw)
				turn = correctiveForCommand(cmdErr)
				out.Corrections++
				continue
			}
			cfg.State.ClearHistory()
			turn = cfg.InitialInstruction

		default:
			return fail(tl, cfg.Role, out, fmt.Errorf("unexpected reply type %T", reply))
		}
	}

	tl.logger.Warn("%s exceeded %d steps", cfg.Role, maxSteps)
	tl.recorder.IncOutcome(cfg.Role, OutcomeExceeded.String())
	tl.artifact(cfg.Role, out.Steps, "exceeded.txt", fmt.Sprintf("no terminal reply within %d steps", maxSteps))
	out.Kind = OutcomeExceeded
	return out, nil
}

func fail[T any](tl *ToolLoop, role string, out Outcome[T], err error) (Outcome[T], error) {
	tl.logger.Error("%s generator failed at step %d: %v", role, out.Steps, err)
	tl.recorder.IncOutcome(role, OutcomeGeneratorError.String())
	out.Kind = OutcomeGeneratorError
	out.Err = err
	return out, err
}

// runCommands parses and executes commands in order, storing each output in
// state under its revision-qualified label. A label already present in state
// is not re-executed. The first invalid command stops the round; commands
// before it keep their results.
func (tl *ToolLoop) runCommands(ctx context.Context, role string, step int, state *contextmgr.State, lines []string) error {
	for _, line := range lines {
		cmd, err := proto.ParseCommand(line)
		if err != nil {
			return err
		}
		label := state.Label(cmd.Label())
		if _, seen := state.Get(label); seen {
			logx.Debug(ctx, "toolloop", "%s step %d: %q already in context", role, step, label)
			continue
		}
		output := tl.exec.Execute(ctx, cmd)
		state.Put(label, output)
		tl.artifact(role, step, string(cmd.Kind)+".txt", cmd.Raw+"\n"+output)
	}
	return nil
}

func (tl *ToolLoop) artifact(role string, step int, name, text string) {
	if err := tl.sink.WriteText(fmt.Sprintf("%s_step%02d_%s", role, step, name), text); err != nil {
		tl.logger.Warn("failed to record artifact: %v", err)
	}
}

func correctiveForReply(err error) string {
	return fmt.Sprintf(
		"Your previous reply could not be used: %v\n"+
			"Reply with a single JSON object and nothing else: either "+
			`{"status":"need_more_info","commands":[...]} or the complete result described in your instructions.`,
		err)
}

func correctiveForCommand(err error) string {
	var unknown *proto.UnknownCommandError
	if errors.As(err, &unknown) {
		return fmt.Sprintf(
			"Command %q was rejected: %s.\nAllowed commands: %s. "+
				"Output of the commands listed before it has been added to the context.",
			unknown.Command, unknown.Reason, proto.CommandUsage)
	}
	return fmt.Sprintf("Your commands could not be run: %v. Allowed commands: %s.", err, proto.CommandUsage)
}
