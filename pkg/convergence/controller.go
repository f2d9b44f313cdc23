// Package convergence alternates the developer and reviewer roles over one
// shared conversation state until a review has no error-severity comments.
//
// Each developer invocation is a round. A change set the patch engine
// rejects is not fatal: the rejection text becomes the next developer
// instruction. An applied change set bumps the state epoch, is summarized
// under APPLIED_CHANGES #n, and is reviewed. Blocking comments are summarized
// under REVIEW_SUMMARY #n and the developer is asked to address them.
package convergence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"devloop/pkg/agent/middleware/metrics"
	"devloop/pkg/agent/toolloop"
	"devloop/pkg/backlog"
	"devloop/pkg/contextmgr"
	"devloop/pkg/eventlog"
	"devloop/pkg/logx"
	"devloop/pkg/patch"
	"devloop/pkg/proto"
	"devloop/pkg/templates"
)

// TaskLabel is the state label holding the task brief.
const TaskLabel = "TASK"

// FactsLabel is the state label holding the project facts.
const FactsLabel = "FACTS"

// recorderRole is the metrics role for controller events.
const recorderRole = "convergence"

// Role runs one agent role from an instruction to an outcome.
type Role[T any] interface {
	Run(ctx context.Context, state *contextmgr.State, instruction string) (toolloop.Outcome[T], error)
}

// ChangeApplier writes a developer's changes to the working tree.
type ChangeApplier interface {
	Apply(ctx context.Context, changes []proto.FileChange) (*patch.Result, error)
}

// Result describes a converged task.
type Result struct {
	// Rounds is the number of developer invocations.
	Rounds int
	// CommitMessage is the message of the first applied change set.
	CommitMessage string
	// ChangeSets holds every applied change set in order.
	ChangeSets []proto.ChangeSet
	// Applied lists every file written, across rounds.
	Applied []patch.FileResult
	// Review is the final, non-blocking review.
	Review proto.Review
}

// Controller runs the developer/reviewer cycle.
type Controller struct {
	dev       Role[proto.ChangeSet]
	rev       Role[proto.Review]
	applier   ChangeApplier
	logger    *logx.Logger
	sink      eventlog.Sink
	recorder  metrics.Recorder
	renderer  *templates.Renderer
	facts     string
	maxRounds int
}

// Option configures a Controller.
type Option func(*Controller)

// WithSink records change sets, patch feedback and reviews.
func WithSink(s eventlog.Sink) Option {
	return func(c *Controller) {
		if s != nil {
			c.sink = s
		}
	}
}

// WithMaxRounds caps developer invocations. Zero means unbounded.
func WithMaxRounds(n int) Option {
	return func(c *Controller) {
		if n >= 0 {
			c.maxRounds = n
		}
	}
}

// WithFacts seeds every run with the project facts under FactsLabel.
func WithFacts(facts string) Option {
	return func(c *Controller) {
		c.facts = strings.TrimSpace(facts)
	}
}

// WithRecorder counts rounds, rejected patches and convergence.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.recorder = r
		}
	}
}

// New creates a Controller.
func New(dev Role[proto.ChangeSet], rev Role[proto.Review], applier ChangeApplier, logger *logx.Logger, opts ...Option) (*Controller, error) {
	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, logx.Wrap(err, "failed to load prompt templates")
	}
	if logger == nil {
		logger = logx.NewLogger("convergence")
	}
	c := &Controller{
		dev:      dev,
		rev:      rev,
		applier:  applier,
		logger:   logger,
		sink:     eventlog.Discard,
		recorder: metrics.Nop(),
		renderer: renderer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run drives task to convergence. The task brief is put into state under
// TaskLabel before the first round, next to the project facts if any.
func (c *Controller) Run(ctx context.Context, state *contextmgr.State, task backlog.Task) (*Result, error) {
	if c.facts != "" {
		state.Put(FactsLabel, c.facts)
	}
	state.Put(TaskLabel, task.Brief())

	instruction, err := c.render(templates.DeveloperTaskTemplate, &templates.TemplateData{TaskID: task.ID})
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for {
		if c.maxRounds > 0 && res.Rounds >= c.maxRounds {
			c.logger.Warn("task %s: no convergence after %d rounds", task.ID, res.Rounds)
			c.recorder.IncOutcome(recorderRole, "round_limit")
			return res, fmt.Errorf("%w (%d)", ErrRoundLimit, c.maxRounds)
		}
		res.Rounds++
		round := res.Rounds
		c.recorder.IncStep(recorderRole, "round")
		c.logger.Info("task %s: developer round %d", task.ID, round)

		devOut, err := c.dev.Run(ctx, state, instruction)
		if err != nil {
			return res, fmt.Errorf("developer round %d: %w", round, err)
		}
		if devOut.Kind != toolloop.OutcomeComplete {
			c.recorder.IncOutcome(recorderRole, "no_implementation")
			return res, fmt.Errorf("%w after %d steps in round %d", ErrNoImplementation, devOut.Steps, round)
		}
		cs := devOut.Value
		c.json(fmt.Sprintf("round%02d_changeset.json", round), cs)

		applied, err := c.applier.Apply(ctx, cs.Changes)
		if err != nil {
			var failure *patch.Failure
			if !errors.As(err, &failure) {
				return res, fmt.Errorf("apply round %d: %w", round, err)
			}
			c.logger.Warn("task %s: round %d patch rejected: %v", task.ID, round, failure)
			c.recorder.IncStep(recorderRole, "patch_rejected")
			instruction = failure.Feedback()
			c.text(fmt.Sprintf("round%02d_patch_feedback.txt", round), instruction)
			continue
		}

		if len(applied.Files) > 0 {
			state.BumpEpoch()
		}
		if res.CommitMessage == "" {
			res.CommitMessage = cs.CommitMessage
		}
		res.ChangeSets = append(res.ChangeSets, cs)
		res.Applied = append(res.Applied, applied.Files...)
		changesLabel := fmt.Sprintf("APPLIED_CHANGES #%d", round)
		state.Put(changesLabel, summarizeChanges(cs, applied))

		reviewInstruction, err := c.render(templates.ReviewRequestTemplate, &templates.TemplateData{
			TaskID:       task.ID,
			Round:        round,
			ChangesLabel: changesLabel,
		})
		if err != nil {
			return res, err
		}
		revOut, err := c.rev.Run(ctx, state, reviewInstruction)
		if err != nil {
			return res, fmt.Errorf("reviewer round %d: %w", round, err)
		}
		if revOut.Kind != toolloop.OutcomeComplete {
			c.recorder.IncOutcome(recorderRole, "no_review")
			return res, fmt.Errorf("%w after %d steps in round %d", ErrNoReview, revOut.Steps, round)
		}
		review := revOut.Value
		c.json(fmt.Sprintf("round%02d_review.json", round), review)

		if !review.Blocking() {
			c.logger.Info("task %s: converged after %d round(s), %d comment(s)", task.ID, round, len(review.Comments))
			c.recorder.IncOutcome(recorderRole, "converged")
			res.Review = review
			return res, nil
		}

		reviewLabel := fmt.Sprintf("REVIEW_SUMMARY #%d", round)
		state.Put(reviewLabel, summarizeReview(review))
		c.logger.Info("task %s: round %d review has %d blocking comment(s)", task.ID, round, len(review.Errors()))

		instruction, err = c.render(templates.DeveloperRevisionTemplate, &templates.TemplateData{
			TaskID:      task.ID,
			ReviewLabel: reviewLabel,
		})
		if err != nil {
			return res, err
		}
	}
}

func (c *Controller) render(name templates.StateTemplate, data *templates.TemplateData) (string, error) {
	out, err := c.renderer.Render(name, data)
	if err != nil {
		return "", logx.Wrap(err, "failed to render instruction")
	}
	return out, nil
}

func (c *Controller) json(name string, v any) {
	if err := c.sink.WriteJSON(name, v); err != nil {
		c.logger.Warn("failed to record %s: %v", name, err)
	}
}

func (c *Controller) text(name, body string) {
	if err := c.sink.WriteText(name, body); err != nil {
		c.logger.Warn("failed to record %s: %v", name, err)
	}
}

// summarizeReview lists only the error-severity comments.
func summarizeReview(r proto.Review) string {
	errs := r.Errors()
	return fmt.Sprintf("Reviewer finished with %d blocking comment(s):\n%s", len(errs), r.ErrorSummary())
}

func summarizeChanges(cs proto.ChangeSet, applied *patch.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Commit message: %s\n", cs.CommitMessage)
	if len(applied.Files) == 0 {
		b.WriteString("No files changed.")
		return b.String()
	}
	for _, f := range applied.Files {
		verb := "modified"
		if f.Created {
			verb = "created"
		}
		fmt.Fprintf(&b, "- %s (%s, %s): %d -> %d lines\n", f.Path, verb, f.Kind, f.LinesBefore, f.LinesAfter)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
