package models

import (
	"testing"
	"time"
)

func TestTaskStatusCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from TaskStatus
		to   TaskStatus
		want bool
	}{
		{"pending to waiting", TaskStatusPending, TaskStatusWaiting, true},
		{"pending to ready", TaskStatusPending, TaskStatusReady, true},
		{"waiting to ready", TaskStatusWaiting, TaskStatusReady, true},
		{"ready to waiting", TaskStatusReady, TaskStatusWaiting, true},
		{"ready to working", TaskStatusReady, TaskStatusWorking, true},
		{"working to done", TaskStatusWorking, TaskStatusDone, true},
		{"working to failed", TaskStatusWorking, TaskStatusFailed, true},
		{"waiting to failed", TaskStatusWaiting, TaskStatusFailed, true},
		{"pending to failed", TaskStatusPending, TaskStatusFailed, true},
		{"working to ready", TaskStatusWorking, TaskStatusReady, false},
		{"done to working", TaskStatusDone, TaskStatusWorking, false},
		{"done to failed", TaskStatusDone, TaskStatusFailed, false},
		{"failed to ready", TaskStatusFailed, TaskStatusReady, false},
		{"unknown status", TaskStatus("bogus"), TaskStatusDone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	if !TaskStatusDone.Terminal() || !TaskStatusFailed.Terminal() {
		t.Error("done and failed should be terminal")
	}
	for _, s := range []TaskStatus{TaskStatusPending, TaskStatusWaiting, TaskStatusReady, TaskStatusWorking} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestTaskClone(t *testing.T) {
	started := time.Now()
	task := &Task{
		ID:        "t-1",
		Role:      RoleCoder,
		Prompt:    "implement",
		DependsOn: []string{"t-0"},
		Status:    TaskStatusWorking,
		StartedAt: &started,
	}

	clone := task.Clone()
	clone.DependsOn[0] = "changed"
	*clone.StartedAt = started.Add(time.Hour)
	clone.Status = TaskStatusDone

	if task.DependsOn[0] != "t-0" {
		t.Error("clone shares DependsOn backing array")
	}
	if !task.StartedAt.Equal(started) {
		t.Error("clone shares StartedAt pointer")
	}
	if task.Status != TaskStatusWorking {
		t.Error("clone shares status")
	}
}

func TestRoleValid(t *testing.T) {
	for _, role := range AllRoles() {
		if !role.Valid() {
			t.Errorf("role %s should be valid", role)
		}
	}
	if Role("wizard").Valid() {
		t.Error("unknown role should be invalid")
	}
}

func TestRunSnapshotDeepCopy(t *testing.T) {
	run := &Run{
		ID:     "run-1",
		Status: RunStatusRunning,
		Teams: []*Team{
			{Name: "build", Status: TeamStatusRunning, Tasks: []*Task{
				{ID: "t-1", Role: RoleCoder, Status: TaskStatusDone, Cost: 0.5, Duration: time.Second},
				{ID: "t-2", Role: RoleTester, Status: TaskStatusWorking, Cost: 0.25},
			}},
		},
		FailedTeams: map[string]FailureReason{"review": ReasonTimeout},
	}

	snap := run.Snapshot()

	if snap.Teams[0].Cost != 0.75 {
		t.Errorf("expected team cost 0.75, got %v", snap.Teams[0].Cost)
	}
	if len(snap.Teams[0].Tasks) != 2 {
		t.Fatalf("expected 2 task snapshots, got %d", len(snap.Teams[0].Tasks))
	}

	// Mutating the snapshot must not touch the run.
	snap.FailedTeams["review"] = ReasonCancelled
	if run.FailedTeams["review"] != ReasonTimeout {
		t.Error("snapshot shares FailedTeams map")
	}
}
