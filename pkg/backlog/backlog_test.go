package backlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ready(id string, deps ...string) Task {
	return Task{ID: id, Title: "task " + id, Status: StatusReady, Deps: deps}
}

func TestNextFollowsDependencies(t *testing.T) {
	tasks := []Task{ready("B", "A"), ready("A")}
	done := NewDoneSet()

	next, ok := Next(tasks, done)
	require.True(t, ok)
	assert.Equal(t, "A", next.ID)

	done.Add("A")
	next, ok = Next(tasks, done)
	require.True(t, ok)
	assert.Equal(t, "B", next.ID)

	done.Add("B")
	_, ok = Next(tasks, done)
	assert.False(t, ok)
}

func TestNextUsesDeclarationOrder(t *testing.T) {
	tasks := []Task{ready("Z"), ready("A")}
	next, ok := Next(tasks, NewDoneSet())
	require.True(t, ok)
	assert.Equal(t, "Z", next.ID)
}

func TestNextSkipsNonReadyAndDone(t *testing.T) {
	tasks := []Task{
		{ID: "draft", Status: "draft"},
		{ID: "blank"},
		ready("finished"),
		ready("waiting", "missing"),
		ready("go"),
	}
	next, ok := Next(tasks, NewDoneSet("finished"))
	require.True(t, ok)
	assert.Equal(t, "go", next.ID)

	assert.Equal(t, []Task{ready("waiting", "missing")}, Blocked(tasks, NewDoneSet("finished")))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		tasks []Task
		done  DoneSet
		want  error
	}{
		{"ok", []Task{ready("A"), ready("B", "A")}, nil, nil},
		{"dep already done", []Task{ready("B", "old")}, NewDoneSet("old"), nil},
		{"duplicate", []Task{ready("A"), ready("A")}, nil, ErrDuplicateTask},
		{"unknown dep", []Task{ready("B", "A")}, nil, ErrUnknownDependency},
		{"self cycle", []Task{ready("A", "A")}, nil, ErrDependencyCycle},
		{"cycle", []Task{ready("A", "C"), ready("B", "A"), ready("C", "B")}, nil, ErrDependencyCycle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.tasks, tt.done)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateReportsCyclePath(t *testing.T) {
	err := Validate([]Task{ready("A", "B"), ready("B", "A")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "A -> B -> A")
}

func TestBrief(t *testing.T) {
	task := Task{ID: "T-1", Title: "Add greeting", Kind: "feature", Description: "  Print hello.\n"}
	assert.Equal(t, "Task T-1: Add greeting [feature]\n\nPrint hello.", task.Brief())
	assert.Equal(t, "Task T-2", Task{ID: "T-2"}.Brief())
}

func newStore(t *testing.T, backlog string) *YAMLStore {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "docs", "tasks")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "backlog.yaml"), []byte(backlog), 0o644))
	return NewYAMLStore(
		filepath.Join(dir, "backlog.yaml"),
		filepath.Join(dir, "done.yaml"),
		filepath.Join(dir, "problems.yaml"),
	)
}

const backlogYAML = `
- id: A
  title: First
  status: ready
- id: B
  title: Second
  description: |
    Builds on A.
  deps: [A]
  status: ready
  kind: feature
`

func TestYAMLStoreLoadsTasks(t *testing.T) {
	store := newStore(t, backlogYAML)
	tasks, err := store.Tasks()
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, Task{ID: "B", Title: "Second", Description: "Builds on A.\n", Deps: []string{"A"}, Status: StatusReady, Kind: "feature"}, tasks[1])

	wrapped := newStore(t, "tasks:\n  - id: X\n    status: ready\n")
	tasks, err = wrapped.Tasks()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "X", tasks[0].ID)
}

func TestYAMLStoreRejectsInvalidTasks(t *testing.T) {
	_, err := newStore(t, "- title: no id\n").Tasks()
	assert.Error(t, err)

	_, err = newStore(t, "- id: [oops\n").Tasks()
	assert.Error(t, err)
}

func TestYAMLStoreAppends(t *testing.T) {
	store := newStore(t, backlogYAML)

	done, err := store.Done()
	require.NoError(t, err)
	assert.Empty(t, done)

	require.NoError(t, store.AppendDone("A", "First"))
	require.NoError(t, store.AppendDone("B", "Second"))
	entries, err := store.DoneEntries()
	require.NoError(t, err)
	assert.Equal(t, []DoneEntry{{ID: "A", Title: "First"}, {ID: "B", Title: "Second"}}, entries)

	require.NoError(t, store.AppendProblem(Problem{Task: "B", Question: "checks failed: test", Blocking: true}))
	problems, err := store.Problems()
	require.NoError(t, err)
	assert.Equal(t, []Problem{{Task: "B", Question: "checks failed: test", Blocking: true}}, problems)

	data, err := os.ReadFile(store.DonePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "- id: A\n")
	assert.Contains(t, string(data), "title: Second")
}

func TestYAMLStoreKeepsFileMode(t *testing.T) {
	store := newStore(t, backlogYAML)
	require.NoError(t, store.AppendDone("A", "First"))
	info, err := os.Stat(store.DonePath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	require.NoError(t, os.WriteFile(store.ProblemsPath, []byte("[]\n"), 0o664))
	require.NoError(t, os.Chmod(store.ProblemsPath, 0o664))
	require.NoError(t, store.AppendProblem(Problem{Task: "A", Question: "why?"}))
	info, err = os.Stat(store.ProblemsPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o664), info.Mode().Perm())
}

func TestSchedulerNext(t *testing.T) {
	store := newStore(t, backlogYAML)
	sched := NewScheduler(store)

	task, ok, err := sched.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A", task.ID)

	require.NoError(t, store.AppendDone("A", "First"))
	task, ok, err = sched.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "B", task.ID)

	require.NoError(t, store.AppendDone("B", "Second"))
	_, ok, err = sched.Next()
	require.NoError(t, err)
	assert.False(t, ok)

	found, ok, err := sched.Find("B")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Second", found.Title)
}

func TestSchedulerSkipsUnsatisfiableTasks(t *testing.T) {
	store := newStore(t, "- {id: C, deps: [Z], status: ready}\n- {id: A, status: ready}\n")
	sched := NewScheduler(store)

	task, ok, err := sched.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A", task.ID)

	_, err = sched.Select("C")
	require.ErrorIs(t, err, ErrTaskNotEligible)
	assert.Contains(t, err.Error(), "waits on [Z]")

	require.NoError(t, store.AppendDone("A", ""))
	_, ok, err = sched.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSchedulerSkipsCycles(t *testing.T) {
	store := newStore(t, "- {id: A, deps: [B], status: ready}\n- {id: B, deps: [A], status: ready}\n- {id: D, status: ready}\n")
	task, ok, err := NewScheduler(store).Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "D", task.ID)
}

func TestSchedulerSelect(t *testing.T) {
	store := newStore(t, backlogYAML+"- id: C\n  status: draft\n")
	sched := NewScheduler(store)

	task, err := sched.Select("A")
	require.NoError(t, err)
	assert.Equal(t, "First", task.Title)

	_, err = sched.Select("B")
	require.ErrorIs(t, err, ErrTaskNotEligible)
	assert.Contains(t, err.Error(), "waits on [A]")

	_, err = sched.Select("C")
	assert.ErrorIs(t, err, ErrTaskNotEligible)

	_, err = sched.Select("Z")
	assert.ErrorIs(t, err, ErrUnknownTask)

	require.NoError(t, store.AppendDone("A", "First"))
	_, err = sched.Select("A")
	assert.ErrorIs(t, err, ErrTaskNotEligible)
	_, err = sched.Select("B")
	assert.NoError(t, err)
}

func TestEligible(t *testing.T) {
	done := NewDoneSet("A")
	assert.False(t, Eligible(ready("A"), done))
	assert.True(t, Eligible(ready("B", "A"), done))
	assert.False(t, Eligible(ready("C", "B"), done))
	assert.False(t, Eligible(Task{ID: "D", Status: "draft"}, done))
}
