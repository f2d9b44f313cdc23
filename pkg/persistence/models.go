package persistence

import "time"

// RunStatus is the final state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCommitted RunStatus = "committed"
	// RunBlocked means a blocking problem was recorded for the task.
	RunBlocked RunStatus = "blocked"
	RunFailed  RunStatus = "failed"
	RunDryRun  RunStatus = "dry_run"
)

// Run is one attempt at a task.
type Run struct {
	ID         string
	TaskID     string
	Branch     string
	BaseCommit string
	Status     RunStatus
	Rounds     int
	CommitHash string
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Artifact is one recorded item of a run.
type Artifact struct {
	RunID   string
	Seq     int
	Name    string
	Content string
	IsJSON  bool
}

// RunUpdate carries the final fields of a run.
type RunUpdate struct {
	Status     RunStatus
	Branch     string
	BaseCommit string
	Rounds     int
	CommitHash string
	Error      string
}
