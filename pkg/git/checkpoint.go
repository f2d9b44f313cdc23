package git

import (
	"context"
	"errors"
	"fmt"

	"devloop/pkg/logx"
)

var (
	// ErrDirtyWorkingTree is returned by Begin when the tree has changes.
	ErrDirtyWorkingTree = errors.New("working tree is not clean")

	// ErrBranchAlreadyExists is returned by Begin when the task branch exists.
	ErrBranchAlreadyExists = errors.New("task branch already exists")

	// ErrNothingToCommit is returned by Commit when nothing is staged.
	ErrNothingToCommit = errors.New("no changes to commit")

	// ErrNotStarted is returned by Commit before a successful Begin.
	ErrNotStarted = errors.New("checkpoint not started")
)

// CommitResult describes a checkpoint commit.
type CommitResult struct {
	Branch string
	Base   string
	Head   string
	Files  []FileStat
}

// Checkpoint isolates one task on its own branch and commits its result.
type Checkpoint struct {
	repo       *Repo
	branchName func(taskID string) string
	logger     *logx.Logger

	branch string
	base   string
}

// NewCheckpoint returns a checkpoint manager. branchName maps a task ID to
// its branch, e.g. config.GitConfig.BranchName.
func NewCheckpoint(repo *Repo, branchName func(taskID string) string) *Checkpoint {
	return &Checkpoint{repo: repo, branchName: branchName, logger: logx.NewLogger("checkpoint")}
}

// Branch returns the task branch after Begin.
func (c *Checkpoint) Branch() string {
	return c.branch
}

// Base returns the commit the task branch started from, after Begin.
func (c *Checkpoint) Base() string {
	return c.base
}

// Begin verifies the preconditions and switches to a fresh task branch.
// Nothing is mutated when a precondition fails.
func (c *Checkpoint) Begin(ctx context.Context, taskID string) error {
	dirty, err := c.repo.DirtyPaths(ctx)
	if err != nil {
		return err
	}
	if len(dirty) > 0 {
		return fmt.Errorf("%w: %d changed paths (first: %s)", ErrDirtyWorkingTree, len(dirty), dirty[0])
	}

	name := c.branchName(taskID)
	exists, err := c.repo.BranchExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrBranchAlreadyExists, name)
	}

	base, err := c.repo.Head(ctx)
	if err != nil {
		return err
	}
	if err := c.repo.CheckoutNewBranch(ctx, name); err != nil {
		return err
	}
	c.branch, c.base = name, base
	c.logger.Info("task %s on branch %s from %s", taskID, name, shortHash(base))
	return nil
}

// Commit stages everything and commits it on the task branch.
func (c *Checkpoint) Commit(ctx context.Context, message string) (*CommitResult, error) {
	if c.branch == "" {
		return nil, ErrNotStarted
	}
	if err := c.repo.AddAll(ctx); err != nil {
		return nil, err
	}
	files, err := c.repo.DiffNumstat(ctx)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNothingToCommit
	}
	if err := c.repo.Commit(ctx, message); err != nil {
		return nil, err
	}
	head, err := c.repo.Head(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Info("committed %s on %s (%d files)", shortHash(head), c.branch, len(files))
	return &CommitResult{Branch: c.branch, Base: c.base, Head: head, Files: files}, nil
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
