package models

import "time"

// RunStatus represents the current state of a run.
type RunStatus string

const (
	// RunStatusPending indicates the run has been created but not started.
	RunStatusPending RunStatus = "pending"
	// RunStatusRunning indicates teams are executing.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted indicates at least one team completed and results were synthesized.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed indicates every team failed, or validation failed before dispatch.
	RunStatusFailed RunStatus = "failed"
	// RunStatusCancelled indicates the run was cancelled by the user.
	RunStatusCancelled RunStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted,
		RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a terminal state.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// Objective is the user's stated intent for a run. Immutable once a run
// starts.
type Objective struct {
	// Text is the user intent.
	Text string `json:"text"`
	// SpecRef optionally links a specification document.
	SpecRef string `json:"spec_ref,omitempty"`
}

// Run is one end-to-end execution of an objective. It is owned exclusively
// by the queen for its lifetime; everyone else sees read-only snapshots.
type Run struct {
	// ID is the unique run identifier.
	ID string `json:"id"`
	// Objective is the intent this run satisfies.
	Objective Objective `json:"objective"`
	// Status is the current lifecycle state.
	Status RunStatus `json:"status"`
	// Teams are the role-grouped subgraphs produced by decomposition.
	Teams []*Team `json:"teams"`
	// TeamResults collects terminal team outcomes as they arrive.
	TeamResults []TeamResult `json:"team_results,omitempty"`
	// Cost is the accumulated spend in dollars across all teams.
	Cost float64 `json:"cost"`
	// Duration is the accumulated execution time across all teams.
	Duration time.Duration `json:"duration"`
	// StartedAt is when the run was launched.
	StartedAt time.Time `json:"started_at"`
	// Output is the synthesized final result, present only when completed.
	Output string `json:"output,omitempty"`
	// Partial is true when the run completed with at least one failed team.
	Partial bool `json:"partial,omitempty"`
	// FailedTeams lists team names that failed, with reasons, for reporting.
	FailedTeams map[string]FailureReason `json:"failed_teams,omitempty"`
}

// TaskSnapshot is the read-only projection of one task.
type TaskSnapshot struct {
	ID            string        `json:"id"`
	Role          Role          `json:"role"`
	Status        TaskStatus    `json:"status"`
	FailureReason FailureReason `json:"failure_reason,omitempty"`
	Cost          float64       `json:"cost"`
	Duration      time.Duration `json:"duration"`
}

// TeamSnapshot is the read-only projection of one team.
type TeamSnapshot struct {
	Name     string         `json:"name"`
	Status   TeamStatus     `json:"status"`
	Cost     float64        `json:"cost"`
	Duration time.Duration  `json:"duration"`
	Tasks    []TaskSnapshot `json:"tasks"`
}

// RunSnapshot is the read-only projection of a run published to the
// registry on every state change.
type RunSnapshot struct {
	RunID       string                   `json:"run_id"`
	Objective   Objective                `json:"objective"`
	Status      RunStatus                `json:"status"`
	Cost        float64                  `json:"cost"`
	Duration    time.Duration            `json:"duration"`
	StartedAt   time.Time                `json:"started_at"`
	Teams       []TeamSnapshot           `json:"teams"`
	Output      string                   `json:"output,omitempty"`
	Partial     bool                     `json:"partial,omitempty"`
	FailedTeams map[string]FailureReason `json:"failed_teams,omitempty"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

// Snapshot produces a read-only projection of the run's current state.
func (r *Run) Snapshot() RunSnapshot {
	snap := RunSnapshot{
		RunID:     r.ID,
		Objective: r.Objective,
		Status:    r.Status,
		Cost:      r.Cost,
		Duration:  r.Duration,
		StartedAt: r.StartedAt,
		Output:    r.Output,
		Partial:   r.Partial,
		UpdatedAt: time.Now(),
	}
	if len(r.FailedTeams) > 0 {
		snap.FailedTeams = make(map[string]FailureReason, len(r.FailedTeams))
		for name, reason := range r.FailedTeams {
			snap.FailedTeams[name] = reason
		}
	}
	snap.Teams = make([]TeamSnapshot, 0, len(r.Teams))
	for _, team := range r.Teams {
		ts := TeamSnapshot{Name: team.Name, Status: team.Status}
		for _, task := range team.Tasks {
			ts.Cost += task.Cost
			ts.Duration += task.Duration
			ts.Tasks = append(ts.Tasks, TaskSnapshot{
				ID:            task.ID,
				Role:          task.Role,
				Status:        task.Status,
				FailureReason: task.FailureReason,
				Cost:          task.Cost,
				Duration:      task.Duration,
			})
		}
		snap.Teams = append(snap.Teams, ts)
	}
	return snap
}
