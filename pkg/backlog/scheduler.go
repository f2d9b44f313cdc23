package backlog

import (
	"errors"
	"fmt"

	"devloop/pkg/logx"
)

var (
	// ErrUnknownTask is returned by Select for an ID not in the backlog.
	ErrUnknownTask = errors.New("unknown task")

	// ErrTaskNotEligible is returned by Select for a task that is done,
	// not ready, or waiting on dependencies.
	ErrTaskNotEligible = errors.New("task is not eligible")
)

// Scheduler picks tasks from a Store.
type Scheduler struct {
	store  Store
	logger *logx.Logger
}

// NewScheduler returns a scheduler over store.
func NewScheduler(store Store) *Scheduler {
	return &Scheduler{store: store, logger: logx.NewLogger("backlog")}
}

// Next loads the backlog and returns the next eligible task. Tasks whose
// dependencies can never be met (unknown or cyclic) are logged and skipped;
// they do not hold back the rest of the backlog.
func (s *Scheduler) Next() (Task, bool, error) {
	tasks, err := s.store.Tasks()
	if err != nil {
		return Task{}, false, err
	}
	done, err := s.store.Done()
	if err != nil {
		return Task{}, false, err
	}
	s.warnInvalid(tasks, done)

	task, ok := Next(tasks, done)
	if !ok {
		if blocked := Blocked(tasks, done); len(blocked) > 0 {
			s.logger.Info("no eligible task; %d ready task(s) wait on dependencies", len(blocked))
		}
		return Task{}, false, nil
	}
	s.logger.Info("next task: %s", task.ID)
	return task, true, nil
}

// Find returns the task with id, regardless of eligibility.
func (s *Scheduler) Find(id string) (Task, bool, error) {
	tasks, err := s.store.Tasks()
	if err != nil {
		return Task{}, false, err
	}
	for _, t := range tasks {
		if t.ID == id {
			return t, true, nil
		}
	}
	return Task{}, false, nil
}

// Select returns the task with id if it is eligible now.
func (s *Scheduler) Select(id string) (Task, error) {
	tasks, err := s.store.Tasks()
	if err != nil {
		return Task{}, err
	}
	done, err := s.store.Done()
	if err != nil {
		return Task{}, err
	}
	s.warnInvalid(tasks, done)
	for _, t := range tasks {
		if t.ID != id {
			continue
		}
		switch {
		case done.Has(id):
			return Task{}, fmt.Errorf("%w: %s is already done", ErrTaskNotEligible, id)
		case t.Status != StatusReady:
			return Task{}, fmt.Errorf("%w: %s has status %q", ErrTaskNotEligible, id, t.Status)
		case !depsMet(t, done):
			return Task{}, fmt.Errorf("%w: %s waits on %v", ErrTaskNotEligible, id, missingDeps(t, done))
		}
		return t, nil
	}
	return Task{}, fmt.Errorf("%w: %s", ErrUnknownTask, id)
}

func (s *Scheduler) warnInvalid(tasks []Task, done DoneSet) {
	if err := Validate(tasks, done); err != nil {
		s.logger.Warn("backlog problem: %v", err)
	}
}

func missingDeps(t Task, done DoneSet) []string {
	var out []string
	for _, dep := range t.Deps {
		if !done.Has(dep) {
			out = append(out, dep)
		}
	}
	return out
}
