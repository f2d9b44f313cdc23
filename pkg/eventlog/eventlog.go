// Package eventlog records the artifacts of a task run: prompts, replies,
// command outputs, patches and reviews.
package eventlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// Sink receives named artifacts in the order they are produced.
type Sink interface {
	WriteText(name, text string) error
	WriteJSON(name string, v any) error
}

// IndexEntry is one line of a task log's index.jsonl.
type IndexEntry struct {
	Seq   int       `json:"seq"`
	Name  string    `json:"name"`
	File  string    `json:"file"`
	Bytes int       `json:"bytes"`
	Time  time.Time `json:"time"`
}

// IndexFilename is the JSONL index written alongside the artifacts.
const IndexFilename = "index.jsonl"

//nolint:gochecknoglobals // compiled once
var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// TaskLog writes numbered artifacts into one directory per task run:
// <root>/task_<id>/<timestamp>/NN_<name>.
type TaskLog struct {
	dir   string
	index *os.File
	seq   int
	mu    sync.Mutex
}

// NewTaskLog creates the run directory for taskID under root.
func NewTaskLog(root, taskID string, now time.Time) (*TaskLog, error) {
	dir := filepath.Join(root, "task_"+sanitize(taskID), now.Format("20060102_150405"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create task log directory: %w", err)
	}
	index, err := os.OpenFile(filepath.Join(dir, IndexFilename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open task log index: %w", err)
	}
	return &TaskLog{dir: dir, index: index}, nil
}

// Dir returns the run directory.
func (l *TaskLog) Dir() string {
	return l.dir
}

// WriteText implements Sink.
func (l *TaskLog) WriteText(name, text string) error {
	return l.write(name, []byte(text))
}

// WriteJSON implements Sink. Values are indented.
func (l *TaskLog) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", name, err)
	}
	return l.write(name, data)
}

func (l *TaskLog) write(name string, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.index == nil {
		return errors.New("task log is closed")
	}

	file := fmt.Sprintf("%02d_%s", l.seq, sanitize(name))
	if err := os.WriteFile(filepath.Join(l.dir, file), data, 0644); err != nil {
		return fmt.Errorf("failed to write artifact %s: %w", file, err)
	}

	line, err := json.Marshal(IndexEntry{Seq: l.seq, Name: name, File: file, Bytes: len(data), Time: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to serialize index entry: %w", err)
	}
	if _, err := l.index.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write index entry: %w", err)
	}
	if err := l.index.Sync(); err != nil {
		return fmt.Errorf("failed to sync index: %w", err)
	}
	l.seq++
	return nil
}

// Close closes the index file.
func (l *TaskLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.index == nil {
		return nil
	}
	err := l.index.Close()
	l.index = nil
	if err != nil {
		return fmt.Errorf("failed to close task log index: %w", err)
	}
	return nil
}

// ReadIndex parses an index.jsonl file.
func ReadIndex(path string) ([]IndexEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	var entries []IndexEntry
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var e IndexEntry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("failed to parse index entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func sanitize(name string) string {
	s := unsafeName.ReplaceAllString(name, "_")
	if s == "" {
		return "artifact"
	}
	return s
}

// Multi fans artifacts out to every sink and joins their errors.
func Multi(sinks ...Sink) Sink {
	return multiSink(sinks)
}

type multiSink []Sink

func (m multiSink) WriteText(name, text string) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.WriteText(name, text))
	}
	return errors.Join(errs...)
}

func (m multiSink) WriteJSON(name string, v any) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.WriteJSON(name, v))
	}
	return errors.Join(errs...)
}

// Discard drops every artifact.
var Discard Sink = discard{}

type discard struct{}

func (discard) WriteText(string, string) error { return nil }
func (discard) WriteJSON(string, any) error    { return nil }
