// Package models defines the shared data model for swarm runs, teams,
// and tasks.
package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has been created but not evaluated.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusWaiting indicates at least one prerequisite is not done.
	TaskStatusWaiting TaskStatus = "waiting"
	// TaskStatusReady indicates all prerequisites are done and the task can be dispatched.
	TaskStatusReady TaskStatus = "ready"
	// TaskStatusWorking indicates the task is executing.
	TaskStatusWorking TaskStatus = "working"
	// TaskStatusDone indicates the task completed successfully.
	TaskStatusDone TaskStatus = "done"
	// TaskStatusFailed indicates the task failed or was abandoned.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusWaiting, TaskStatusReady,
		TaskStatusWorking, TaskStatusDone, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a terminal state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusDone || s == TaskStatusFailed
}

// rank orders statuses along the monotonic task lifecycle:
// pending -> waiting/ready -> working -> done/failed.
func (s TaskStatus) rank() int {
	switch s {
	case TaskStatusPending:
		return 0
	case TaskStatusWaiting, TaskStatusReady:
		return 1
	case TaskStatusWorking:
		return 2
	case TaskStatusDone, TaskStatusFailed:
		return 3
	default:
		return -1
	}
}

// CanTransition returns true if moving from s to next never rewinds the
// lifecycle. Waiting and ready may flip between each other; terminal states
// accept no further transitions.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s.Terminal() {
		return false
	}
	// Waiting tasks may fail directly (dependency failure, budget abort).
	if next == TaskStatusFailed {
		return true
	}
	return next.rank() >= s.rank()
}

// FailureReason is a machine-readable reason attached to a failed task,
// team, or run. It is never empty on a failed record.
type FailureReason string

const (
	// ReasonExecutionError indicates the execution capability returned an error.
	ReasonExecutionError FailureReason = "execution_error"
	// ReasonTimeout indicates the task exceeded its execution timeout.
	ReasonTimeout FailureReason = "timeout"
	// ReasonBudgetExceeded indicates the team or run budget was exhausted.
	ReasonBudgetExceeded FailureReason = "budget_exceeded"
	// ReasonCancelled indicates a user-initiated cancellation.
	ReasonCancelled FailureReason = "cancelled"
	// ReasonDependencyFailed indicates a prerequisite task failed.
	ReasonDependencyFailed FailureReason = "dependency_failed"
)

// Task is the atomic unit of work in a team's dependency graph.
type Task struct {
	// ID is the unique identifier within the team.
	ID string `json:"id"`
	// Role determines which execution capability handles this task.
	Role Role `json:"role"`
	// Prompt is the work description handed to the execution capability.
	Prompt string `json:"prompt"`
	// DependsOn lists task IDs in the same team that must be done first.
	DependsOn []string `json:"depends_on,omitempty"`
	// Status is the current lifecycle state.
	Status TaskStatus `json:"status"`
	// Result is the opaque payload produced on success.
	Result string `json:"result,omitempty"`
	// FailureReason is set when Status is failed.
	FailureReason FailureReason `json:"failure_reason,omitempty"`
	// Error holds the failure detail, if any.
	Error string `json:"error,omitempty"`
	// Cost is the incurred spend in dollars.
	Cost float64 `json:"cost"`
	// Duration is the incurred execution time.
	Duration time.Duration `json:"duration"`
	// StartedAt is when execution began, if it did.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal state, if it did.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.DependsOn != nil {
		cp.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.StartedAt != nil {
		started := *t.StartedAt
		cp.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		cp.CompletedAt = &completed
	}
	return &cp
}
