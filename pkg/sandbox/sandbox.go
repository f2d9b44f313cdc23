// Package sandbox provides read-only repository access confined to a root
// directory. Every lookup is resolved through symlinks and must land on the
// root or one of its descendants; anything else reads as Forbidden.
package sandbox

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"devloop/pkg/logx"
)

// Forbidden is returned in place of output for out-of-bounds, missing, or
// wrong-kind paths.
const Forbidden = "<FORBIDDEN>"

// ErrForbiddenPath is returned by Resolve for write targets outside the root
// or inside a noise directory such as .git.
var ErrForbiddenPath = errors.New("path is outside the writable repository")

// DefaultNoise lists entries elided from List, Tree and Grep. Patterns use
// filepath.Match syntax against a single path element.
//
//nolint:gochecknoglobals // fixed default set
var DefaultNoise = []string{
	".git", ".hg", ".svn",
	".venv", "venv", "__pycache__", ".mypy_cache", ".pytest_cache", ".ruff_cache",
	"node_modules", "logs", ".devloop",
	"*.pyc", "*.egg-info",
}

// binarySniffLen bounds the prefix inspected for NUL bytes.
const binarySniffLen = 8000

// Accessor serves list/read/tree/grep under a canonical root.
type Accessor struct {
	root   string
	noise  []string
	logger *logx.Logger
}

// New canonicalises root and returns an accessor over it.
func New(root string, extraNoise ...string) (*Accessor, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root %s: %w", root, err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root %s: %w", root, err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("stat sandbox root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox root %s is not a directory", canonical)
	}

	noise := make([]string, 0, len(DefaultNoise)+len(extraNoise))
	noise = append(noise, DefaultNoise...)
	noise = append(noise, extraNoise...)

	return &Accessor{root: canonical, noise: noise, logger: logx.NewLogger("sandbox")}, nil
}

// Root returns the canonical root path.
func (a *Accessor) Root() string {
	return a.root
}

// IsNoise reports whether a single path element is elided.
func (a *Accessor) IsNoise(name string) bool {
	for _, pattern := range a.noise {
		if ok, _ := filepath.Match(pattern, name); ok { //nolint:errcheck // malformed pattern never matches
			return true
		}
	}
	return false
}

func (a *Accessor) within(path string) bool {
	if path == a.root {
		return true
	}
	rel, err := filepath.Rel(a.root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolve returns the canonical form of an existing path inside the root.
func (a *Accessor) resolve(path string) (string, bool) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.root, path)
	}
	canonical, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", false
	}
	if !a.within(canonical) {
		a.logger.Debug("denied %s (resolves to %s)", path, canonical)
		return "", false
	}
	return canonical, true
}

// rel renders an in-root path relative to the root with forward slashes.
func (a *Accessor) rel(path string) string {
	r, err := filepath.Rel(a.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(r)
}

// Resolve maps a repository path to the absolute location a write would
// touch. The target need not exist, but its nearest existing ancestor must
// resolve inside the root, and the target must not be the root itself.
// No element of the resolved path may be noise: .git, logs and the like are
// never writable.
func (a *Accessor) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty path", ErrForbiddenPath)
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(a.root, abs)
	}
	abs = filepath.Clean(abs)

	existing := abs
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return "", fmt.Errorf("%w: %s", ErrForbiddenPath, path)
		}
		existing = parent
	}

	canonical, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrForbiddenPath, path, err) //nolint:errorlint // single %w is the sentinel
	}
	suffix, err := filepath.Rel(existing, abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrForbiddenPath, path)
	}
	target := filepath.Join(canonical, suffix)
	if target == a.root || !a.within(target) {
		return "", fmt.Errorf("%w: %s", ErrForbiddenPath, path)
	}
	for _, elem := range strings.Split(a.rel(target), "/") {
		if a.IsNoise(elem) || strings.EqualFold(elem, ".git") {
			a.logger.Debug("denied write to %s (%s is protected)", path, elem)
			return "", fmt.Errorf("%w: %s is inside %s", ErrForbiddenPath, path, elem)
		}
	}
	return target, nil
}

type entry struct {
	name  string
	path  string
	isDir bool
}

// children returns sorted, noise-free entries of dir. Symlinks are reported
// by what they point to but are never descended into by Tree or Grep.
func (a *Accessor) children(dir string) ([]entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	out := make([]entry, 0, len(des))
	for _, de := range des {
		if a.IsNoise(de.Name()) {
			continue
		}
		p := filepath.Join(dir, de.Name())
		isDir := de.IsDir()
		if de.Type()&fs.ModeSymlink != 0 {
			if info, err := os.Stat(p); err == nil {
				isDir = info.IsDir()
			}
		}
		out = append(out, entry{name: de.Name(), path: p, isDir: isDir})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

// List returns the immediate children of path, directories suffixed "/".
func (a *Accessor) List(path string) string {
	dir, ok := a.resolve(path)
	if !ok {
		return Forbidden
	}
	entries, err := a.children(dir)
	if err != nil {
		return Forbidden
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.isDir {
			lines = append(lines, e.name+"/")
		} else {
			lines = append(lines, e.name)
		}
	}
	return strings.Join(lines, "\n")
}

// Read returns the full text of a file.
func (a *Accessor) Read(path string) string {
	file, ok := a.resolve(path)
	if !ok {
		return Forbidden
	}
	info, err := os.Stat(file)
	if err != nil || !info.Mode().IsRegular() {
		return Forbidden
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return Forbidden
	}
	return string(data)
}

// Tree enumerates path breadth-first down to depth levels; depth 0 is the
// starting directory alone. Entries are repository-relative.
func (a *Accessor) Tree(path string, depth int) string {
	start, ok := a.resolve(path)
	if !ok {
		return Forbidden
	}
	if info, err := os.Stat(start); err != nil || !info.IsDir() {
		return Forbidden
	}
	if depth < 0 {
		return ""
	}

	type item struct {
		path  string
		level int
	}
	label := func(p string) string {
		if p == a.root {
			return "./"
		}
		return a.rel(p) + "/"
	}

	lines := []string{label(start)}
	queue := []item{{path: start, level: 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.level >= depth {
			continue
		}
		entries, err := a.children(cur.path)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.isDir {
				lines = append(lines, a.rel(e.path)+"/")
				if isRealDir(e.path) {
					queue = append(queue, item{path: e.path, level: cur.level + 1})
				}
			} else {
				lines = append(lines, a.rel(e.path))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func isRealDir(p string) bool {
	info, err := os.Lstat(p)
	return err == nil && info.IsDir()
}

// Grep returns "path:line:text" for every line containing pattern
// literally. Directories are searched recursively in lexical order.
func (a *Accessor) Grep(path, pattern string) string {
	start, ok := a.resolve(path)
	if !ok {
		return Forbidden
	}
	if pattern == "" {
		return ""
	}
	info, err := os.Stat(start)
	if err != nil {
		return Forbidden
	}

	var matches []string
	if !info.IsDir() {
		matches = a.grepFile(start, pattern, matches)
		return strings.Join(matches, "\n")
	}

	_ = filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error { //nolint:errcheck // unreadable entries are skipped
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if p != start && a.IsNoise(d.Name()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			matches = a.grepFile(p, pattern, matches)
		}
		return nil
	})
	return strings.Join(matches, "\n")
}

func (a *Accessor) grepFile(file, pattern string, out []string) []string {
	data, err := os.ReadFile(file)
	if err != nil {
		return out
	}
	sniff := data
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return out
	}
	rel := a.rel(file)
	for i, line := range strings.Split(string(data), "\n") {
		if strings.Contains(line, pattern) {
			out = append(out, fmt.Sprintf("%s:%d:%s", rel, i+1, strings.TrimSuffix(line, "\r")))
		}
	}
	return out
}
