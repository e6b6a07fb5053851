// Package events provides an in-process pub/sub event bus for
// cross-component communication within the lodestone daemon.
package events

import (
	"time"

	"github.com/lodestone-kg/lodestone/internal/model"
)

// EventType identifies the type of event being published.
type EventType string

const (
	// TaskUpdated is published on every observable task transition:
	// step start/finish, progress change, failure, cancellation.
	TaskUpdated EventType = "task.updated"

	// TaskCompleted is published when a task reaches a terminal success state.
	TaskCompleted EventType = "task.completed"

	// TaskFailed is published when a task reaches a terminal failure state.
	TaskFailed EventType = "task.failed"

	// TaskCancelled is published when a task is cancelled by the user.
	TaskCancelled EventType = "task.cancelled"

	// DocumentIngested is published when a document's pipeline finishes.
	DocumentIngested EventType = "document.ingested"

	// UnificationComplete is published when an entity-unification task
	// finishes applying its merge operations.
	UnificationComplete EventType = "unification.complete"

	// CommunityRefreshComplete is published after a community refresh.
	CommunityRefreshComplete EventType = "community.refresh_complete"

	// GraphWriteFailed is published when writing to the graph store fails
	// after retries.
	GraphWriteFailed EventType = "graph.write_failed"
)

// Event represents a published event in the system.
type Event struct {
	// Type identifies the event type.
	Type EventType

	// Timestamp is when the event was created.
	Timestamp time.Time

	// Payload contains event-specific data.
	Payload any
}

// NewEvent creates a new event with the given type and payload.
func NewEvent(eventType EventType, payload any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// EventHandler is a function that processes events.
type EventHandler func(event Event)

// TaskUpdatePayload carries the full task snapshot for streaming clients.
// The snapshot is a deep copy; handlers may retain it.
type TaskUpdatePayload struct {
	Task *model.Task
}

// NewTaskUpdated builds a TaskUpdated event with a snapshot of the task.
func NewTaskUpdated(task *model.Task) Event {
	return NewEvent(TaskUpdated, TaskUpdatePayload{Task: task.Clone()})
}

// DocumentIngestedPayload summarizes a finished ingestion.
type DocumentIngestedPayload struct {
	DocumentID int64
	TaskID     string
	Chunks     int
	Entities   int
	Relations  int
}

// CommunityRefreshPayload summarizes a finished community refresh.
type CommunityRefreshPayload struct {
	Levels      int
	Communities int
	Summarized  int
	Duration    time.Duration
}
