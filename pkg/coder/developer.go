package coder

import (
	"context"

	"devloop/pkg/agent/toolloop"
	"devloop/pkg/contextmgr"
	"devloop/pkg/logx"
	"devloop/pkg/proto"
	"devloop/pkg/sandbox"
	"devloop/pkg/templates"
)

// RoleName identifies the developer in logs, artifacts and metrics.
const RoleName = "developer"

// Developer produces change sets for a task.
type Developer struct {
	loop     *toolloop.ToolLoop
	prompt   string
	maxSteps int
}

// New renders the developer prompt. maxSteps of zero uses the loop default.
func New(loop *toolloop.ToolLoop, maxSteps int) (*Developer, error) {
	r, err := templates.NewRenderer()
	if err != nil {
		return nil, logx.Wrap(err, "failed to load prompt templates")
	}
	prompt, err := r.Render(templates.DeveloperSystemTemplate, &templates.TemplateData{
		CommandUsage: proto.CommandUsage,
		Forbidden:    sandbox.Forbidden,
	})
	if err != nil {
		return nil, logx.Wrap(err, "failed to render developer prompt")
	}
	return &Developer{loop: loop, prompt: prompt, maxSteps: maxSteps}, nil
}

// Prompt returns the role instruction sent with every step.
func (d *Developer) Prompt() string {
	return d.prompt
}

// Run drives the loop from instruction to a change set.
func (d *Developer) Run(ctx context.Context, state *contextmgr.State, instruction string) (toolloop.Outcome[proto.ChangeSet], error) {
	out, err := toolloop.Run(ctx, d.loop, toolloop.Config[proto.ChangeSet]{
		Role:               RoleName,
		RoleInstruction:    d.prompt,
		InitialInstruction: instruction,
		State:              state,
		MaxSteps:           d.maxSteps,
		Decode:             proto.DecodeChangeSet,
	})
	if err != nil {
		return out, logx.Wrap(err, "developer run failed")
	}
	return out, nil
}
