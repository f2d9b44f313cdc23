package metrics

import (
	"sync"
	"time"
)

// TaskUsage is the aggregated generator usage of one task.
type TaskUsage struct {
	TaskID           string    `json:"task_id"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	RequestCount     int64     `json:"request_count"`
	FailedCount      int64     `json:"failed_count"`
	TotalCost        float64   `json:"total_cost_usd"`
	LastUpdated      time.Time `json:"last_updated"`
}

// InternalRecorder aggregates usage in memory per task, for the end-of-run
// summary and the run journal.
type InternalRecorder struct {
	tasks map[string]*TaskUsage
	mu    sync.RWMutex
}

// NewInternalRecorder returns an empty recorder.
func NewInternalRecorder() *InternalRecorder {
	return &InternalRecorder{tasks: make(map[string]*TaskUsage)}
}

func (r *InternalRecorder) task(id string) *TaskUsage {
	t, ok := r.tasks[id]
	if !ok {
		t = &TaskUsage{TaskID: id}
		r.tasks[id] = t
	}
	return t
}

// ObserveRequest adds a call to its task's totals.
func (r *InternalRecorder) ObserveRequest(req Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.task(req.TaskID)
	t.RequestCount++
	t.LastUpdated = time.Now()
	if !req.Success {
		t.FailedCount++
		return
	}
	t.PromptTokens += int64(req.PromptTokens)
	t.CompletionTokens += int64(req.CompletionTokens)
	t.TotalTokens = t.PromptTokens + t.CompletionTokens
	t.TotalCost += req.Cost
}

// IncStep is a no-op; loop activity is only exported to Prometheus.
func (r *InternalRecorder) IncStep(_, _ string) {}

// IncOutcome is a no-op.
func (r *InternalRecorder) IncOutcome(_, _ string) {}

// Usage returns a copy of the totals for taskID, or nil.
func (r *InternalRecorder) Usage(taskID string) *TaskUsage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

// Reset clears all totals.
func (r *InternalRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = make(map[string]*TaskUsage)
}
