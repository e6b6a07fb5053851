package model

import (
	"math"
	"time"
)

// TaskStatus is the lifecycle state of a task or task step.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// TaskStep is a named, weighted, observable phase of a task.
type TaskStep struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Type        string     `json:"type"`
	Weight      int        `json:"weight"`
	Status      TaskStatus `json:"status"`
	Progress    float64    `json:"progress"` // 0-100 within the step

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Error string `json:"error,omitempty"`

	// Details accumulates intermediate results (counts, attempt logs,
	// truncated stack snippets on failure).
	Details map[string]any `json:"details,omitempty"`
}

// Task is a durable, observable unit of work.
type Task struct {
	ID         string     `json:"id"`
	OwnerID    int64      `json:"owner_id"`
	Type       string     `json:"type"`
	Name       string     `json:"name"`
	Desc       string     `json:"description,omitempty"`
	Status     TaskStatus `json:"status"`
	Progress   float64    `json:"progress"` // 0-100, weighted over steps
	DocumentID *int64     `json:"document_id,omitempty"`

	Steps []TaskStep `json:"steps"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RecalcProgress recomputes task progress as the weighted sum of step
// progress. Progress is clamped so it never exceeds 100 and reaches 100
// exactly when every step completes.
func (t *Task) RecalcProgress() {
	totalWeight := 0
	for i := range t.Steps {
		totalWeight += t.Steps[i].Weight
	}
	if totalWeight == 0 {
		return
	}

	weighted := 0.0
	for i := range t.Steps {
		weighted += t.Steps[i].Progress * float64(t.Steps[i].Weight)
	}
	t.Progress = math.Min(100, weighted/float64(totalWeight))
}

// StepByName returns the step with the given name, or nil.
func (t *Task) StepByName(name string) *TaskStep {
	for i := range t.Steps {
		if t.Steps[i].Name == name {
			return &t.Steps[i]
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand to subscribers.
func (t *Task) Clone() *Task {
	cp := *t
	cp.Steps = make([]TaskStep, len(t.Steps))
	copy(cp.Steps, t.Steps)
	for i := range cp.Steps {
		cp.Steps[i].Details = cloneMap(t.Steps[i].Details)
	}
	cp.Metadata = cloneMap(t.Metadata)
	if t.DocumentID != nil {
		id := *t.DocumentID
		cp.DocumentID = &id
	}
	return &cp
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
