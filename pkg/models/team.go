package models

import "time"

// TeamStatus represents the current state of a team.
type TeamStatus string

const (
	// TeamStatusPending indicates the team has not been admitted yet.
	TeamStatusPending TeamStatus = "pending"
	// TeamStatusRunning indicates the team's scheduler is executing tasks.
	TeamStatusRunning TeamStatus = "running"
	// TeamStatusCompleted indicates every task in the team is done.
	TeamStatusCompleted TeamStatus = "completed"
	// TeamStatusFailed indicates at least one task failed and no further progress is possible.
	TeamStatusFailed TeamStatus = "failed"
	// TeamStatusCancelled indicates the team was cancelled before finishing.
	TeamStatusCancelled TeamStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TeamStatus) Valid() bool {
	switch s {
	case TeamStatusPending, TeamStatusRunning, TeamStatusCompleted,
		TeamStatusFailed, TeamStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a terminal state.
func (s TeamStatus) Terminal() bool {
	switch s {
	case TeamStatusCompleted, TeamStatusFailed, TeamStatusCancelled:
		return true
	default:
		return false
	}
}

// Team is a named role-grouping of tasks executed as a unit. The zero values
// for CostLimit and TimeLimit mean "inherit the run-level per-team limits".
type Team struct {
	// Name identifies the team within its run (e.g. "investigate").
	Name string `json:"name"`
	// Tasks are the team's tasks; prerequisites reference IDs in this slice only.
	Tasks []*Task `json:"tasks"`
	// Status is the current lifecycle state.
	Status TeamStatus `json:"status"`
	// CostLimit overrides the run's per-team cost limit when positive.
	CostLimit float64 `json:"cost_limit,omitempty"`
	// TimeLimit overrides the run's per-team time limit when positive.
	TimeLimit time.Duration `json:"time_limit,omitempty"`
}

// Clone returns a deep copy of the team.
func (t *Team) Clone() *Team {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Tasks = make([]*Task, len(t.Tasks))
	for i, task := range t.Tasks {
		cp.Tasks[i] = task.Clone()
	}
	return &cp
}

// TeamResult is the aggregated outcome of one team: a role-to-payload
// mapping plus the team's total cost and duration. Failed tasks are listed
// with their machine-readable reasons.
type TeamResult struct {
	// Team is the team name.
	Team string `json:"team"`
	// Status is the team's terminal status.
	Status TeamStatus `json:"status"`
	// Outputs maps each role to the concatenated payloads its tasks produced.
	Outputs map[Role]string `json:"outputs,omitempty"`
	// FailedTasks maps failed task IDs to their failure reasons.
	FailedTasks map[string]FailureReason `json:"failed_tasks,omitempty"`
	// Cost is the team's total incurred spend in dollars.
	Cost float64 `json:"cost"`
	// Duration is the team's total incurred execution time.
	Duration time.Duration `json:"duration"`
}

// Succeeded returns true if the team completed with all tasks done.
func (r TeamResult) Succeeded() bool {
	return r.Status == TeamStatusCompleted
}
