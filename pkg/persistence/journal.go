package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrRunNotFound is returned for an unknown run ID.
	ErrRunNotFound = errors.New("run not found")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("database is closed")
)

const timeLayout = "2006-01-02T15:04:05.000Z"

// Journal records the artifacts of one run. It implements eventlog.Sink.
type Journal struct {
	db    *DB
	runID string
	mu    sync.Mutex
	seq   int
}

// StartRun inserts a running row for taskID and returns its journal.
func (d *DB) StartRun(taskID string) (*Journal, error) {
	id := uuid.New().String()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil, ErrClosed
	}
	_, err := d.db.Exec(
		"INSERT INTO runs (id, task_id, status, started_at) VALUES (?, ?, ?, ?)",
		id, taskID, string(RunRunning), time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run for %s: %w", taskID, err)
	}
	d.logger.Info("run %s started for task %s", id, taskID)
	return &Journal{db: d, runID: id}, nil
}

// RunID returns the run's identifier.
func (j *Journal) RunID() string {
	return j.runID
}

// WriteText implements eventlog.Sink.
func (j *Journal) WriteText(name, text string) error {
	return j.insert(name, text, false)
}

// WriteJSON implements eventlog.Sink.
func (j *Journal) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	return j.insert(name, string(data), true)
}

func (j *Journal) insert(name, content string, isJSON bool) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.db.mu.Lock()
	defer j.db.mu.Unlock()
	if j.db.db == nil {
		return ErrClosed
	}
	_, err := j.db.db.Exec(
		"INSERT INTO artifacts (run_id, seq, name, content, is_json) VALUES (?, ?, ?, ?, ?)",
		j.runID, j.seq+1, name, content, isJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to record artifact %s: %w", name, err)
	}
	j.seq++
	return nil
}

// Finish records the run's final state.
func (j *Journal) Finish(u RunUpdate) error {
	j.db.mu.Lock()
	defer j.db.mu.Unlock()
	if j.db.db == nil {
		return ErrClosed
	}
	res, err := j.db.db.Exec(`
		UPDATE runs SET status = ?, branch = ?, base_commit = ?, rounds = ?,
			commit_hash = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		string(u.Status), u.Branch, u.BaseCommit, u.Rounds,
		u.CommitHash, u.Error, time.Now().UTC().Format(timeLayout), j.runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", j.runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, j.runID)
	}
	return nil
}

// GetRun loads one run.
func (d *DB) GetRun(id string) (*Run, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil, ErrClosed
	}
	row := d.db.QueryRow(runSelect+" WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// RunsForTask lists a task's runs, oldest first.
func (d *DB) RunsForTask(taskID string) ([]*Run, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil, ErrClosed
	}
	rows, err := d.db.Query(runSelect+" WHERE task_id = ? ORDER BY started_at, rowid", taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// Artifacts lists a run's artifacts in write order. A non-empty prefix
// filters by name.
func (d *DB) Artifacts(runID, prefix string) ([]Artifact, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil, ErrClosed
	}
	rows, err := d.db.Query(
		"SELECT run_id, seq, name, content, is_json FROM artifacts WHERE run_id = ? ORDER BY seq",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.RunID, &a.Seq, &a.Name, &a.Content, &a.IsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		if prefix == "" || strings.HasPrefix(a.Name, prefix) {
			out = append(out, a)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate artifacts: %w", err)
	}
	return out, nil
}

const runSelect = `SELECT id, task_id, COALESCE(branch, ''), COALESCE(base_commit, ''), status, rounds,
	COALESCE(commit_hash, ''), COALESCE(error, ''), started_at, finished_at FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		run      Run
		status   string
		started  string
		finished sql.NullString
	)
	if err := s.Scan(&run.ID, &run.TaskID, &run.Branch, &run.BaseCommit, &status, &run.Rounds,
		&run.CommitHash, &run.Error, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.Status = RunStatus(status)
	if t, err := time.Parse(timeLayout, started); err == nil {
		run.StartedAt = t
	}
	if finished.Valid {
		if t, err := time.Parse(timeLayout, finished.String); err == nil {
			run.FinishedAt = &t
		}
	}
	return &run, nil
}
