package toolloop

import (
	"context"

	"devloop/pkg/proto"
	"devloop/pkg/sandbox"
)

// CommandExecutor runs one parsed exploration command and returns its
// output. Failures are reported as data in the output.
type CommandExecutor interface {
	Execute(ctx context.Context, cmd proto.Command) string
}

// SandboxExecutor runs commands against a sandbox.Accessor.
type SandboxExecutor struct {
	acc *sandbox.Accessor
}

// NewSandboxExecutor returns an executor over acc.
func NewSandboxExecutor(acc *sandbox.Accessor) *SandboxExecutor {
	return &SandboxExecutor{acc: acc}
}

// Execute implements CommandExecutor.
func (e *SandboxExecutor) Execute(_ context.Context, cmd proto.Command) string {
	switch cmd.Kind {
	case proto.CommandList:
		return e.acc.List(cmd.Path)
	case proto.CommandRead:
		return e.acc.Read(cmd.Path)
	case proto.CommandTree:
		return e.acc.Tree(cmd.Path, cmd.Depth)
	case proto.CommandGrep:
		return e.acc.Grep(cmd.Path, cmd.Pattern)
	default:
		return sandbox.Forbidden
	}
}
