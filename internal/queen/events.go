// Package queen coordinates runs: decomposition, team admission, budget
// enforcement, and synthesis of team results.
package queen

import (
	"sync/atomic"
	"time"

	"github.com/hiveworks/swarm/pkg/models"
)

// EventType represents the type of queen event.
type EventType string

const (
	// EventRunStarted indicates a run has been launched.
	EventRunStarted EventType = "run_started"
	// EventTeamAdmitted indicates a team passed the budget gate and holds a slot.
	EventTeamAdmitted EventType = "team_admitted"
	// EventTeamCompleted indicates a team finished with all tasks done.
	EventTeamCompleted EventType = "team_completed"
	// EventTeamFailed indicates a team reached a failed or cancelled state.
	EventTeamFailed EventType = "team_failed"
	// EventTaskStarted indicates a task began executing.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed.
	EventTaskFailed EventType = "task_failed"
	// EventBudgetWarning indicates run spend crossed the warning threshold.
	EventBudgetWarning EventType = "budget_warning"
	// EventRunCompleted indicates the run finished with synthesized output.
	EventRunCompleted EventType = "run_completed"
	// EventRunFailed indicates every team failed.
	EventRunFailed EventType = "run_failed"
	// EventRunCancelled indicates the run was cancelled.
	EventRunCancelled EventType = "run_cancelled"
)

// Event is a progress notification emitted during a run. Consumers that
// fall behind lose events rather than stalling the run.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// RunID identifies the run.
	RunID string
	// Team is the related team name, if applicable.
	Team string
	// TaskID is the related task, if applicable.
	TaskID string
	// Role is the related task's role, if applicable.
	Role models.Role
	// Message provides additional context.
	Message string
	// Reason carries the failure reason for failure events.
	Reason models.FailureReason
	// Cost is the accumulated run spend at emission time.
	Cost float64
	// Duration is the accumulated run execution time at emission time.
	Duration time.Duration
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// EventEmitter fans events out to a single buffered subscriber channel.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEventEmitter creates an emitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 128
	}
	return &EventEmitter{events: make(chan Event, bufferSize)}
}

// Emit sends an event without blocking the run. When the buffer is full the
// event is dropped and counted.
func (e *EventEmitter) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case e.events <- event:
	default:
		e.droppedCount.Add(1)
	}
}

// DroppedCount returns the number of events dropped so far.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns the read-only subscriber channel.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}
