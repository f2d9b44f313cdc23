// Package metrics records generator usage and agent loop activity.
package metrics

import (
	"time"
)

// Request describes one completed generator call.
type Request struct {
	Model            string
	Role             string
	TaskID           string
	PromptTokens     int
	CompletionTokens int
	Cost             float64
	Success          bool
	ErrorType        string
	Duration         time.Duration
}

// Recorder receives metrics from the middleware and the agent loop.
type Recorder interface {
	// ObserveRequest records one generator call.
	ObserveRequest(r Request)

	// IncStep counts one loop step by role and kind ("commands", "malformed", ...).
	IncStep(role, kind string)

	// IncOutcome counts a terminal loop outcome by role.
	IncOutcome(role, outcome string)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

// Nop returns a recorder that discards all metrics.
func Nop() Recorder {
	return NoopRecorder{}
}

// ObserveRequest does nothing.
func (NoopRecorder) ObserveRequest(Request) {}

// IncStep does nothing.
func (NoopRecorder) IncStep(_, _ string) {}

// IncOutcome does nothing.
func (NoopRecorder) IncOutcome(_, _ string) {}

type fanout []Recorder

// Fanout forwards to every recorder in order.
func Fanout(recorders ...Recorder) Recorder {
	return fanout(recorders)
}

func (f fanout) ObserveRequest(r Request) {
	for _, rec := range f {
		rec.ObserveRequest(r)
	}
}

func (f fanout) IncStep(role, kind string) {
	for _, rec := range f {
		rec.IncStep(role, kind)
	}
}

func (f fanout) IncOutcome(role, outcome string) {
	for _, rec := range f {
		rec.IncOutcome(role, outcome)
	}
}
