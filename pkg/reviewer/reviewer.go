// Package reviewer implements the reviewer role: it reads the developer's
// applied changes through the same exploration commands and returns
// line-anchored comments. Error-severity comments block convergence.
package reviewer

import (
	"context"

	"devloop/pkg/agent/toolloop"
	"devloop/pkg/contextmgr"
	"devloop/pkg/logx"
	"devloop/pkg/proto"
	"devloop/pkg/sandbox"
	"devloop/pkg/templates"
)

// RoleName identifies the reviewer in logs, artifacts and metrics.
const RoleName = "reviewer"

// Reviewer produces a review of the working tree.
type Reviewer struct {
	loop     *toolloop.ToolLoop
	prompt   string
	maxSteps int
}

// New renders the reviewer prompt. maxSteps of zero uses the loop default.
func New(loop *toolloop.ToolLoop, maxSteps int) (*Reviewer, error) {
	r, err := templates.NewRenderer()
	if err != nil {
		return nil, logx.Wrap(err, "failed to load prompt templates")
	}
	prompt, err := r.Render(templates.ReviewerSystemTemplate, &templates.TemplateData{
		CommandUsage: proto.CommandUsage,
		Forbidden:    sandbox.Forbidden,
	})
	if err != nil {
		return nil, logx.Wrap(err, "failed to render reviewer prompt")
	}
	return &Reviewer{loop: loop, prompt: prompt, maxSteps: maxSteps}, nil
}

// Prompt returns the role instruction sent with every step.
func (r *Reviewer) Prompt() string {
	return r.prompt
}

// Run drives the loop from instruction to a review.
func (r *Reviewer) Run(ctx context.Context, state *contextmgr.State, instruction string) (toolloop.Outcome[proto.Review], error) {
	out, err := toolloop.Run(ctx, r.loop, toolloop.Config[proto.Review]{
		Role:               RoleName,
		RoleInstruction:    r.prompt,
		InitialInstruction: instruction,
		State:              state,
		MaxSteps:           r.maxSteps,
		Decode:             proto.DecodeReview,
	})
	if err != nil {
		return out, logx.Wrap(err, "reviewer run failed")
	}
	if out.Kind == toolloop.OutcomeComplete {
		logx.Debug(ctx, "reviewer", "%d comment(s), blocking=%t", len(out.Value.Comments), out.Value.Blocking())
	}
	return out, nil
}
