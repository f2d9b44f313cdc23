package patch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"devloop/pkg/logx"
	"devloop/pkg/proto"
)

// Resolver maps a repository path to the absolute file a write touches.
type Resolver interface {
	Resolve(path string) (string, error)
}

// FileResult describes one file written by Apply.
type FileResult struct {
	Path        string
	AbsPath     string
	Kind        proto.PatchKind
	Created     bool
	LinesBefore int
	LinesAfter  int
}

// Result lists the files written by one Apply.
type Result struct {
	Files []FileResult
}

// Engine applies change sets. A round is validated in full before any file
// is written, so a rejected round leaves the tree untouched.
type Engine struct {
	resolver Resolver
	logger   *logx.Logger
}

// New returns an engine writing through resolver.
func New(resolver Resolver) *Engine {
	return &Engine{resolver: resolver, logger: logx.NewLogger("patch")}
}

type planned struct {
	result  FileResult
	content string
	mode    fs.FileMode
	orig    []byte
}

type group struct {
	path    string
	abs     string
	changes []proto.FileChange
}

// Apply validates every change, then writes all affected files. On any
// validation error it returns a *Failure and writes nothing.
func (e *Engine) Apply(ctx context.Context, changes []proto.FileChange) (*Result, error) {
	plans, failure := e.plan(changes)
	if failure != nil {
		e.logger.Warn("rejected change set: %s", failure.Error())
		return nil, failure
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("apply cancelled: %w", err)
	}

	written := make([]planned, 0, len(plans))
	for _, p := range plans {
		if err := writeFile(p); err != nil {
			rollback(written)
			return nil, fmt.Errorf("write %s: %w", p.result.Path, err)
		}
		written = append(written, p)
		logx.Debug(ctx, "patch", "wrote %s (%s, %d -> %d lines)", p.result.Path, p.result.Kind, p.result.LinesBefore, p.result.LinesAfter)
	}

	res := &Result{Files: make([]FileResult, 0, len(plans))}
	for _, p := range plans {
		res.Files = append(res.Files, p.result)
	}
	e.logger.Info("applied %d file change(s)", len(res.Files))
	return res, nil
}

// Check validates changes against the working tree without writing.
func (e *Engine) Check(changes []proto.FileChange) error {
	if _, failure := e.plan(changes); failure != nil {
		return failure
	}
	return nil
}

func (e *Engine) plan(changes []proto.FileChange) ([]planned, *Failure) {
	var failure Failure
	groups := make([]*group, 0, len(changes))
	byAbs := make(map[string]*group, len(changes))

	for _, c := range changes {
		abs, err := e.resolver.Resolve(c.Path)
		if err != nil {
			failure.Files = append(failure.Files, FileFailure{Path: c.Path, Err: fmt.Errorf("%s: %w", c.Path, err)})
			continue
		}
		g, ok := byAbs[abs]
		if !ok {
			g = &group{path: c.Path, abs: abs}
			byAbs[abs] = g
			groups = append(groups, g)
		}
		g.changes = append(g.changes, c)
	}

	plans := make([]planned, 0, len(groups))
	for _, g := range groups {
		p, err := planFile(g)
		if err != nil {
			failure.Files = append(failure.Files, FileFailure{Path: g.path, Err: err})
			continue
		}
		plans = append(plans, p)
	}

	if len(failure.Files) > 0 {
		return nil, &failure
	}
	return plans, nil
}

func planFile(g *group) (planned, error) {
	p := planned{mode: 0o644}
	p.result = FileResult{Path: g.path, AbsPath: g.abs}

	info, err := os.Stat(g.abs)
	switch {
	case err == nil && info.IsDir():
		return p, fmt.Errorf("%s: is a directory", g.path)
	case err == nil:
		p.mode = info.Mode().Perm()
		data, readErr := os.ReadFile(g.abs)
		if readErr != nil {
			return p, fmt.Errorf("%s: read: %w", g.path, readErr)
		}
		p.orig = data
	case errors.Is(err, fs.ErrNotExist):
		p.result.Created = true
	default:
		return p, fmt.Errorf("%s: stat: %w", g.path, err)
	}

	doc := SplitLines(string(p.orig))
	p.result.LinesBefore = len(doc.Lines)

	if len(g.changes) > 1 {
		for _, c := range g.changes {
			if c.Patch.Kind() != proto.PatchHunks {
				return p, fmt.Errorf("%s: %d changes target this file; only hunk patches can be combined", g.path, len(g.changes))
			}
		}
	}

	first := g.changes[0].Patch
	p.result.Kind = first.Kind()
	switch first.Kind() {
	case proto.PatchContent:
		p.content = *first.Content
		p.result.LinesAfter = len(SplitLines(p.content).Lines)
		return p, nil
	case proto.PatchDiff:
		hunks, err := hunksFromDiff(g.path, first.Diff, doc.Lines)
		if err != nil {
			return p, err
		}
		return finishHunks(p, doc, g.path, hunks)
	default:
		var hunks []proto.Hunk
		for _, c := range g.changes {
			hunks = append(hunks, c.Patch.Hunks...)
		}
		return finishHunks(p, doc, g.path, hunks)
	}
}

func finishHunks(p planned, doc Document, path string, hunks []proto.Hunk) (planned, error) {
	lines, err := ApplyHunks(path, doc.Lines, hunks)
	if err != nil {
		return p, err
	}
	doc.Lines = lines
	p.content = doc.String()
	p.result.LinesAfter = len(lines)
	return p, nil
}

func writeFile(p planned) error {
	if err := os.MkdirAll(filepath.Dir(p.result.AbsPath), 0o755); err != nil {
		return fmt.Errorf("create parent: %w", err)
	}
	if err := os.WriteFile(p.result.AbsPath, []byte(p.content), p.mode); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// rollback restores files already written in a round whose later write failed.
func rollback(written []planned) {
	for i := len(written) - 1; i >= 0; i-- {
		p := written[i]
		if p.result.Created {
			_ = os.Remove(p.result.AbsPath) //nolint:errcheck // best effort
			continue
		}
		_ = os.WriteFile(p.result.AbsPath, p.orig, p.mode) //nolint:errcheck // best effort
	}
}
