package graph

import (
	"errors"
	"reflect"
	"testing"

	"github.com/hiveworks/swarm/pkg/models"
)

func makeTasks(specs map[string][]string) []*models.Task {
	// Fixed iteration order keeps tests deterministic.
	var tasks []*models.Task
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		deps, ok := specs[id]
		if !ok {
			continue
		}
		tasks = append(tasks, &models.Task{
			ID:        id,
			Role:      models.RoleCoder,
			Prompt:    "work on " + id,
			DependsOn: deps,
			Status:    models.TaskStatusPending,
		})
	}
	return tasks
}

func TestValidateStampsInitialStatuses(t *testing.T) {
	g := New(makeTasks(map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"a", "b"},
	}))
	if err := g.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := g.Task("a").Status; got != models.TaskStatusReady {
		t.Errorf("a: expected ready, got %s", got)
	}
	for _, id := range []string{"b", "c"} {
		if got := g.Task(id).Status; got != models.TaskStatusWaiting {
			t.Errorf("%s: expected waiting, got %s", id, got)
		}
	}
}

func TestValidateDanglingReference(t *testing.T) {
	g := New(makeTasks(map[string][]string{
		"a": {"ghost"},
	}))
	err := g.Validate()
	if !errors.Is(err, ErrDanglingReference) {
		t.Fatalf("expected ErrDanglingReference, got %v", err)
	}
}

func TestValidateCycle(t *testing.T) {
	g := New(makeTasks(map[string][]string{
		"a": {"c"},
		"b": {"a"},
		"c": {"b"},
	}))
	err := g.Validate()
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
}

func TestValidateSelfCycle(t *testing.T) {
	g := New(makeTasks(map[string][]string{
		"a": {"a"},
	}))
	if err := g.Validate(); !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
}

func TestReadyOrderIsAscending(t *testing.T) {
	g := New(makeTasks(map[string][]string{
		"c": nil,
		"a": nil,
		"b": nil,
	}))
	if err := g.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"a", "b", "c"}
	if got := g.Ready(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestMarkDonePromotesDependents(t *testing.T) {
	g := New(makeTasks(map[string][]string{
		"a": nil,
		"b": nil,
		"c": {"a", "b"},
	}))
	if err := g.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := g.MarkWorking("a"); err != nil {
		t.Fatal(err)
	}
	if err := g.MarkDone("a", "result-a"); err != nil {
		t.Fatal(err)
	}
	// c still waits on b.
	if got := g.Task("c").Status; got != models.TaskStatusWaiting {
		t.Errorf("c: expected waiting, got %s", got)
	}

	if err := g.MarkWorking("b"); err != nil {
		t.Fatal(err)
	}
	if err := g.MarkDone("b", "result-b"); err != nil {
		t.Fatal(err)
	}
	if got := g.Task("c").Status; got != models.TaskStatusReady {
		t.Errorf("c: expected ready, got %s", got)
	}
	if g.Task("a").Result != "result-a" {
		t.Error("result payload not recorded")
	}
}

func TestFailedDependencyLeavesDependentsWaiting(t *testing.T) {
	g := New(makeTasks(map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"b"},
	}))
	if err := g.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := g.MarkWorking("a"); err != nil {
		t.Fatal(err)
	}
	if err := g.MarkFailed("a", models.ReasonExecutionError, "boom"); err != nil {
		t.Fatal(err)
	}

	if got := g.Ready(); len(got) != 0 {
		t.Errorf("expected no ready tasks, got %v", got)
	}
	if !g.Stuck() {
		t.Error("graph with failed root should be stuck")
	}
	if g.AllDone() {
		t.Error("graph should not be all done")
	}
	for _, id := range []string{"b", "c"} {
		if got := g.Task(id).Status; got != models.TaskStatusWaiting {
			t.Errorf("%s: expected waiting, got %s", id, got)
		}
	}
}

func TestStuckFalseWhileWorking(t *testing.T) {
	g := New(makeTasks(map[string][]string{
		"a": nil,
		"b": {"a"},
	}))
	if err := g.Validate(); err != nil {
		t.Fatal(err)
	}
	if err := g.MarkWorking("a"); err != nil {
		t.Fatal(err)
	}
	if g.Stuck() {
		t.Error("graph with a working task is not stuck")
	}
}

func TestAllDone(t *testing.T) {
	g := New(makeTasks(map[string][]string{
		"a": nil,
		"b": {"a"},
	}))
	if err := g.Validate(); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"a", "b"} {
		if err := g.MarkWorking(id); err != nil {
			t.Fatal(err)
		}
		if err := g.MarkDone(id, "ok"); err != nil {
			t.Fatal(err)
		}
	}
	if !g.AllDone() {
		t.Error("expected all done")
	}
	if g.Stuck() {
		t.Error("finished graph is not stuck")
	}
}

func TestFailRemainingSkipsWorkingAndTerminal(t *testing.T) {
	g := New(makeTasks(map[string][]string{
		"a": nil,
		"b": nil,
		"c": {"a"},
	}))
	if err := g.Validate(); err != nil {
		t.Fatal(err)
	}
	if err := g.MarkWorking("a"); err != nil {
		t.Fatal(err)
	}

	g.FailRemaining(models.ReasonBudgetExceeded, "budget gone")

	if got := g.Task("a").Status; got != models.TaskStatusWorking {
		t.Errorf("a: expected working untouched, got %s", got)
	}
	for _, id := range []string{"b", "c"} {
		task := g.Task(id)
		if task.Status != models.TaskStatusFailed {
			t.Errorf("%s: expected failed, got %s", id, task.Status)
		}
		if task.FailureReason != models.ReasonBudgetExceeded {
			t.Errorf("%s: expected budget_exceeded, got %s", id, task.FailureReason)
		}
	}
}

func TestIllegalTransitionRejected(t *testing.T) {
	g := New(makeTasks(map[string][]string{"a": nil}))
	if err := g.Validate(); err != nil {
		t.Fatal(err)
	}
	if err := g.MarkWorking("a"); err != nil {
		t.Fatal(err)
	}
	if err := g.MarkDone("a", "ok"); err != nil {
		t.Fatal(err)
	}
	if err := g.MarkWorking("a"); err == nil {
		t.Error("expected error re-marking a done task as working")
	}
	if err := g.MarkFailed("a", models.ReasonExecutionError, "late"); err == nil {
		t.Error("expected error failing a done task")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	g := New(makeTasks(map[string][]string{"a": nil}))
	if err := g.Validate(); err != nil {
		t.Fatal(err)
	}

	snap, ok := g.Snapshot("a")
	if !ok {
		t.Fatal("expected snapshot")
	}
	snap.Status = models.TaskStatusFailed
	if g.Task("a").Status == models.TaskStatusFailed {
		t.Error("snapshot mutation leaked into graph")
	}

	if _, ok := g.Snapshot("ghost"); ok {
		t.Error("expected no snapshot for unknown task")
	}
}

func TestAddUsageAccumulates(t *testing.T) {
	g := New(makeTasks(map[string][]string{"a": nil}))
	if err := g.Validate(); err != nil {
		t.Fatal(err)
	}
	g.AddUsage("a", 0.5, 100)
	g.AddUsage("a", 0.25, 50)

	task := g.Task("a")
	if task.Cost != 0.75 {
		t.Errorf("expected cost 0.75, got %v", task.Cost)
	}
	if task.Duration != 150 {
		t.Errorf("expected duration 150, got %v", task.Duration)
	}
}
