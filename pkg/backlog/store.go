package backlog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//nolint:gochecknoglobals // validator caches struct metadata
var validate = validator.New()

// DoneEntry is one line of done.yaml.
type DoneEntry struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
}

// Problem is one line of problems.yaml.
type Problem struct {
	Task     string `yaml:"task"`
	Question string `yaml:"question"`
	Blocking bool   `yaml:"blocking"`
}

// Store is the backlog persistence the scheduler and orchestrator use.
type Store interface {
	Tasks() ([]Task, error)
	Done() (DoneSet, error)
	AppendDone(id, title string) error
	AppendProblem(p Problem) error
}

// YAMLStore keeps the backlog in three YAML files.
type YAMLStore struct {
	BacklogPath  string
	DonePath     string
	ProblemsPath string
}

// NewYAMLStore returns a store over the given files.
func NewYAMLStore(backlogPath, donePath, problemsPath string) *YAMLStore {
	return &YAMLStore{BacklogPath: backlogPath, DonePath: donePath, ProblemsPath: problemsPath}
}

// backlogFile accepts either a bare task list or a {tasks: [...]} mapping.
type backlogFile struct {
	Tasks []Task
}

func (b *backlogFile) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		return node.Decode(&b.Tasks)
	}
	var wrapped struct {
		Tasks []Task `yaml:"tasks"`
	}
	if err := node.Decode(&wrapped); err != nil {
		return err
	}
	b.Tasks = wrapped.Tasks
	return nil
}

// Tasks loads the backlog in declaration order.
func (s *YAMLStore) Tasks() ([]Task, error) {
	data, err := os.ReadFile(s.BacklogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read backlog: %w", err)
	}
	var file backlogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse backlog %s: %w", s.BacklogPath, err)
	}
	for i := range file.Tasks {
		if err := validate.Struct(&file.Tasks[i]); err != nil {
			return nil, fmt.Errorf("invalid task #%d in %s: %w", i, s.BacklogPath, err)
		}
	}
	return file.Tasks, nil
}

// Done loads the completed IDs. A missing file is an empty set.
func (s *YAMLStore) Done() (DoneSet, error) {
	var entries []DoneEntry
	if err := readList(s.DonePath, &entries); err != nil {
		return nil, err
	}
	done := make(DoneSet, len(entries))
	for _, e := range entries {
		done.Add(e.ID)
	}
	return done, nil
}

// DoneEntries loads done.yaml as written.
func (s *YAMLStore) DoneEntries() ([]DoneEntry, error) {
	var entries []DoneEntry
	err := readList(s.DonePath, &entries)
	return entries, err
}

// Problems loads problems.yaml.
func (s *YAMLStore) Problems() ([]Problem, error) {
	var problems []Problem
	err := readList(s.ProblemsPath, &problems)
	return problems, err
}

// AppendDone records a completed task.
func (s *YAMLStore) AppendDone(id, title string) error {
	entries, err := s.DoneEntries()
	if err != nil {
		return err
	}
	return writeList(s.DonePath, append(entries, DoneEntry{ID: id, Title: title}))
}

// AppendProblem records a problem for manual follow-up.
func (s *YAMLStore) AppendProblem(p Problem) error {
	problems, err := s.Problems()
	if err != nil {
		return err
	}
	return writeList(s.ProblemsPath, append(problems, p))
}

func readList(path string, out any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// writeList replaces path atomically.
func writeList(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error wins
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	// CreateTemp uses 0600; keep the mode of the file being replaced.
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close() //nolint:errcheck,gosec // chmod error wins
		return fmt.Errorf("failed to set mode of %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
