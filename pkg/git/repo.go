package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"devloop/pkg/logx"
)

// FileStat is one line of `git diff --numstat`. Binary files report -1.
type FileStat struct {
	Path    string
	Added   int
	Deleted int
}

// Repo runs the version-control operations the task flow consumes.
type Repo struct {
	runner   GitRunner
	dir      string
	excludes []string
	logger   *logx.Logger
}

// NewRepo returns a Repo rooted at dir. Paths in excludes (repo-relative
// directories such as "logs") are ignored by IsClean and never staged.
func NewRepo(dir string, runner GitRunner, excludes ...string) *Repo {
	if runner == nil {
		runner = NewDefaultGitRunner()
	}
	return &Repo{
		runner:   runner,
		dir:      dir,
		excludes: excludes,
		logger:   logx.NewLogger("git"),
	}
}

// Dir returns the working tree root.
func (r *Repo) Dir() string {
	return r.dir
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	out, err := r.runner.Run(ctx, r.dir, args...)
	return string(out), err
}

// Head returns the commit hash HEAD points to.
func (r *Repo) Head(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve current branch: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// IsClean reports whether the working tree has no staged, unstaged or
// untracked changes outside the excluded paths.
func (r *Repo) IsClean(ctx context.Context) (bool, error) {
	dirty, err := r.DirtyPaths(ctx)
	if err != nil {
		return false, err
	}
	return len(dirty) == 0, nil
}

// DirtyPaths lists changed or untracked paths outside the excluded paths.
func (r *Repo) DirtyPaths(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, "status", "--porcelain", "--untracked-files=all")
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	var dirty []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		path := line[3:]
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}
		path = strings.Trim(path, `"`)
		if !r.excluded(path) {
			dirty = append(dirty, path)
		}
	}
	return dirty, nil
}

func (r *Repo) excluded(path string) bool {
	for _, ex := range r.excludes {
		ex = strings.TrimSuffix(ex, "/")
		if path == ex || strings.HasPrefix(path, ex+"/") {
			return true
		}
	}
	return false
}

// BranchExists reports whether a local branch called name exists.
func (r *Repo) BranchExists(ctx context.Context, name string) (bool, error) {
	out, err := r.run(ctx, "branch", "--list", name)
	if err != nil {
		return false, fmt.Errorf("list branches: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// CheckoutNewBranch creates name at HEAD and switches to it.
func (r *Repo) CheckoutNewBranch(ctx context.Context, name string) error {
	if _, err := r.run(ctx, "switch", "-c", name); err != nil {
		return fmt.Errorf("create branch %s: %w", name, err)
	}
	return nil
}

// AddAll stages every change outside the excluded paths.
func (r *Repo) AddAll(ctx context.Context) error {
	args := []string{"add", "-A", "--", "."}
	for _, ex := range r.excludes {
		args = append(args, ":(exclude)"+strings.TrimSuffix(ex, "/"))
	}
	if _, err := r.run(ctx, args...); err != nil {
		return fmt.Errorf("stage changes: %w", err)
	}
	return nil
}

// Commit records the staged changes with message.
func (r *Repo) Commit(ctx context.Context, message string) error {
	if _, err := r.run(ctx, "commit", "-m", message); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// DiffNumstat summarises the staged changes.
func (r *Repo) DiffNumstat(ctx context.Context) ([]FileStat, error) {
	out, err := r.run(ctx, "diff", "--cached", "--numstat")
	if err != nil {
		return nil, fmt.Errorf("read staged diff: %w", err)
	}
	return ParseNumstat(out)
}

// ParseNumstat parses `git diff --numstat` output.
func ParseNumstat(out string) ([]FileStat, error) {
	var stats []FileStat
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("unexpected numstat line %q", line)
		}
		added, err := numstatCount(fields[0])
		if err != nil {
			return nil, err
		}
		deleted, err := numstatCount(fields[1])
		if err != nil {
			return nil, err
		}
		stats = append(stats, FileStat{Path: fields[2], Added: added, Deleted: deleted})
	}
	return stats, nil
}

func numstatCount(s string) (int, error) {
	if s == "-" {
		return -1, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("unexpected numstat count %q: %w", s, err)
	}
	return n, nil
}
