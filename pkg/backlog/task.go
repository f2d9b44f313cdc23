// Package backlog loads the task backlog, picks the next actionable task
// and records completed tasks and problems.
package backlog

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// StatusReady marks a task that may be scheduled once its deps are done.
const StatusReady = "ready"

var (
	// ErrDuplicateTask reports two tasks sharing an ID.
	ErrDuplicateTask = errors.New("duplicate task id")

	// ErrUnknownDependency reports a dep that names no task.
	ErrUnknownDependency = errors.New("unknown dependency")

	// ErrDependencyCycle reports tasks that depend on each other.
	ErrDependencyCycle = errors.New("dependency cycle")
)

// Task is one backlog entry.
type Task struct {
	ID          string   `yaml:"id" validate:"required"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description,omitempty"`
	Deps        []string `yaml:"deps,omitempty" validate:"dive,required"`
	Status      string   `yaml:"status"`
	Kind        string   `yaml:"kind,omitempty"`
}

// Brief renders the task for an agent.
func (t Task) Brief() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %s", t.ID)
	if t.Title != "" {
		fmt.Fprintf(&b, ": %s", t.Title)
	}
	if t.Kind != "" {
		fmt.Fprintf(&b, " [%s]", t.Kind)
	}
	if t.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(t.Description))
	}
	return b.String()
}

// DoneSet holds completed task IDs.
type DoneSet map[string]struct{}

// NewDoneSet returns a set holding ids.
func NewDoneSet(ids ...string) DoneSet {
	d := make(DoneSet, len(ids))
	for _, id := range ids {
		d.Add(id)
	}
	return d
}

// Add marks id completed.
func (d DoneSet) Add(id string) {
	d[id] = struct{}{}
}

// Has reports whether id is completed.
func (d DoneSet) Has(id string) bool {
	_, ok := d[id]
	return ok
}

// Next returns the first task in declaration order that is ready, not
// itself done, and whose deps are all done. Ties go to declaration order.
func Next(tasks []Task, done DoneSet) (Task, bool) {
	for _, t := range tasks {
		if Eligible(t, done) {
			return t, true
		}
	}
	return Task{}, false
}

// Eligible reports whether t could be selected given done.
func Eligible(t Task, done DoneSet) bool {
	return t.Status == StatusReady && !done.Has(t.ID) && depsMet(t, done)
}

func depsMet(t Task, done DoneSet) bool {
	for _, dep := range t.Deps {
		if !done.Has(dep) {
			return false
		}
	}
	return true
}

// Blocked returns ready, undone tasks whose deps are not all done.
func Blocked(tasks []Task, done DoneSet) []Task {
	var out []Task
	for _, t := range tasks {
		if t.Status == StatusReady && !done.Has(t.ID) && !depsMet(t, done) {
			out = append(out, t)
		}
	}
	return out
}

// Validate checks IDs are unique, deps name declared tasks (or completed
// ones), and deps are acyclic.
func Validate(tasks []Task, done DoneSet) error {
	byID := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		if _, dup := byID[t.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
		}
		byID[t.ID] = t
	}
	for _, t := range tasks {
		for _, dep := range t.Deps {
			if _, ok := byID[dep]; !ok && !done.Has(dep) {
				return fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, t.ID, dep)
			}
		}
	}
	if cycle := findCycle(tasks, byID); cycle != nil {
		return fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(cycle, " -> "))
	}
	return nil
}

// findCycle walks deps depth-first in declaration order and returns the
// first cycle found, closed on its starting task.
func findCycle(tasks []Task, byID map[string]Task) []string {
	visited := make(map[string]bool, len(tasks))
	onPath := make(map[string]bool)

	var visit func(id string, path []string) []string
	visit = func(id string, path []string) []string {
		visited[id] = true
		onPath[id] = true
		path = append(path, id)
		for _, dep := range byID[id].Deps {
			if onPath[dep] {
				start := slices.Index(path, dep)
				return append(slices.Clone(path[start:]), dep)
			}
			if _, declared := byID[dep]; declared && !visited[dep] {
				if cycle := visit(dep, path); cycle != nil {
					return cycle
				}
			}
		}
		onPath[id] = false
		return nil
	}

	for _, t := range tasks {
		if !visited[t.ID] {
			if cycle := visit(t.ID, nil); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
