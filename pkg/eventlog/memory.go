package eventlog

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Artifact is one item captured by Memory.
type Artifact struct {
	Name string
	Text string
}

// Memory keeps artifacts in memory. It is used by tests and dry runs.
type Memory struct {
	mu        sync.Mutex
	artifacts []Artifact
}

// WriteText implements Sink.
func (m *Memory) WriteText(name, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts = append(m.artifacts, Artifact{Name: name, Text: text})
	return nil
}

// WriteJSON implements Sink.
func (m *Memory) WriteJSON(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", name, err)
	}
	return m.WriteText(name, string(data))
}

// Artifacts returns a copy of what was written.
func (m *Memory) Artifacts() []Artifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Artifact, len(m.artifacts))
	copy(out, m.artifacts)
	return out
}

// Names returns the artifact names in order.
func (m *Memory) Names() []string {
	arts := m.Artifacts()
	names := make([]string, len(arts))
	for i, a := range arts {
		names[i] = a.Name
	}
	return names
}
