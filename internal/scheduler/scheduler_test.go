package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hiveworks/swarm/internal/budget"
	"github.com/hiveworks/swarm/internal/capability"
	"github.com/hiveworks/swarm/internal/graph"
	"github.com/hiveworks/swarm/internal/runner"
	"github.com/hiveworks/swarm/pkg/models"
)

func buildTeam(t *testing.T, name string, tasks []*models.Task) (*models.Team, *graph.DependencyGraph) {
	t.Helper()
	team := &models.Team{Name: name, Tasks: tasks, Status: models.TeamStatusPending}
	g := graph.New(tasks)
	if err := g.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return team, g
}

func newRunner(inv capability.Invoker, timeout time.Duration) *runner.Runner {
	capabilities := capability.NewRegistry()
	capabilities.RegisterDefault(inv)
	return runner.New(capabilities, timeout, runner.RetryPolicy{})
}

func task(id string, role models.Role, deps ...string) *models.Task {
	return &models.Task{ID: id, Role: role, Prompt: "do " + id, DependsOn: deps, Status: models.TaskStatusPending}
}

func TestRunCompletesChainInOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	inv := &capability.StaticInvoker{
		CostPerCall: 0.01,
		Respond: func(req capability.Request) (string, error) {
			mu.Lock()
			order = append(order, req.TaskID)
			mu.Unlock()
			return "out-" + req.TaskID, nil
		},
	}

	team, g := buildTeam(t, "build", []*models.Task{
		task("a", models.RoleArchitect),
		task("b", models.RoleCoder, "a"),
		task("c", models.RoleTester, "b"),
	})
	tracker := budget.NewTracker(budget.DefaultLimits())
	tracker.RegisterTeam("build", 0, 0)

	s := New(team, g, tracker, newRunner(inv, time.Second), Config{})
	res := s.Run(context.Background())

	if res.Status != models.TeamStatusCompleted {
		t.Fatalf("expected completed, got %s", res.Status)
	}
	mu.Lock()
	defer mu.Unlock()
	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("expected order %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
	if res.Outputs[models.RoleCoder] != "out-b" {
		t.Errorf("expected coder output out-b, got %q", res.Outputs[models.RoleCoder])
	}
	if len(res.FailedTasks) != 0 {
		t.Errorf("expected no failed tasks, got %v", res.FailedTasks)
	}
}

func TestRunPassesDependencyResultsAsContext(t *testing.T) {
	var mu sync.Mutex
	contexts := make(map[string]string)
	inv := &capability.StaticInvoker{
		Respond: func(req capability.Request) (string, error) {
			mu.Lock()
			contexts[req.TaskID] = req.Context
			mu.Unlock()
			return "out-" + req.TaskID, nil
		},
	}

	team, g := buildTeam(t, "build", []*models.Task{
		task("a", models.RoleArchitect),
		task("b", models.RoleCoder, "a"),
	})
	tracker := budget.NewTracker(budget.DefaultLimits())
	tracker.RegisterTeam("build", 0, 0)

	s := New(team, g, tracker, newRunner(inv, time.Second), Config{TaskContext: "Objective: ship it"})
	res := s.Run(context.Background())
	if res.Status != models.TeamStatusCompleted {
		t.Fatalf("expected completed, got %s", res.Status)
	}

	mu.Lock()
	defer mu.Unlock()
	if contexts["a"] != "Objective: ship it" {
		t.Errorf("root task context = %q", contexts["a"])
	}
	ctxB := contexts["b"]
	if ctxB == contexts["a"] {
		t.Error("dependent task should carry its prerequisite's result")
	}
	if want := "out-a"; !strings.Contains(ctxB, want) {
		t.Errorf("expected context for b to contain %q, got %q", want, ctxB)
	}
}

func TestRunFailureIsolatesDependents(t *testing.T) {
	inv := &capability.StaticInvoker{
		Respond: func(req capability.Request) (string, error) {
			if req.TaskID == "a" {
				return "", errors.New("boom")
			}
			return "out-" + req.TaskID, nil
		},
	}

	// b depends on the failing task; c is independent and must still run.
	team, g := buildTeam(t, "build", []*models.Task{
		task("a", models.RoleCoder),
		task("b", models.RoleTester, "a"),
		task("c", models.RoleReviewer),
	})
	tracker := budget.NewTracker(budget.DefaultLimits())
	tracker.RegisterTeam("build", 0, 0)

	s := New(team, g, tracker, newRunner(inv, time.Second), Config{})
	res := s.Run(context.Background())

	if res.Status != models.TeamStatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if res.FailedTasks["a"] != models.ReasonExecutionError {
		t.Errorf("expected a failed with execution_error, got %v", res.FailedTasks)
	}
	if _, ok := res.FailedTasks["b"]; ok {
		t.Error("b never ran; it should stay waiting, not failed")
	}
	if got := g.Task("b").Status; got != models.TaskStatusWaiting {
		t.Errorf("b: expected waiting, got %s", got)
	}
	if res.Outputs[models.RoleReviewer] != "out-c" {
		t.Errorf("independent task c should have completed, outputs: %v", res.Outputs)
	}
}

func TestRunBudgetExhaustionAbortsRemaining(t *testing.T) {
	inv := &capability.StaticInvoker{CostPerCall: 0.03}

	team, g := buildTeam(t, "build", []*models.Task{
		task("a", models.RoleArchitect),
		task("b", models.RoleCoder, "a"),
		task("c", models.RoleTester, "b"),
	})
	// Two completions cross the 0.05 ceiling; c must never dispatch.
	tracker := budget.NewTracker(budget.Limits{TotalCost: 100})
	tracker.RegisterTeam("build", 0.05, 0)

	s := New(team, g, tracker, newRunner(inv, time.Second), Config{})
	res := s.Run(context.Background())

	if res.Status != models.TeamStatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if res.FailedTasks["c"] != models.ReasonBudgetExceeded {
		t.Errorf("expected c failed with budget_exceeded, got %v", res.FailedTasks)
	}
	if got := g.Task("a").Status; got != models.TaskStatusDone {
		t.Errorf("a: expected done, got %s", got)
	}
	if diff := res.Cost - 0.06; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected team cost 0.06, got %v", res.Cost)
	}
}

func TestRunTerminatesWhenBudgetFlipsBetweenChecks(t *testing.T) {
	inv := &capability.StaticInvoker{Respond: func(req capability.Request) (string, error) {
		return "out-" + req.TaskID, nil
	}}

	team, g := buildTeam(t, "build", []*models.Task{
		task("a", models.RoleCoder),
		task("b", models.RoleTester, "a"),
	})
	tracker := budget.NewTracker(budget.Limits{})
	tracker.RegisterTeam("build", 0, time.Minute)

	// The tracker consults the clock once per dispatch (StartClock) and once
	// per OverBudget call with a running team clock. Call 1 is a's dispatch,
	// call 2 the top-of-loop check after a completes, call 3 the per-dispatch
	// check before b. Crossing the time limit on call 3 exercises a flip
	// landing between the two checks with nothing in flight.
	base := time.Now()
	var clockCalls atomic.Int32
	tracker.SetNowFunc(func() time.Time {
		if clockCalls.Add(1) >= 3 {
			return base.Add(2 * time.Minute)
		}
		return base
	})

	s := New(team, g, tracker, newRunner(inv, time.Second), Config{})

	done := make(chan models.TeamResult, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case res := <-done:
		if res.Status != models.TeamStatusFailed {
			t.Fatalf("expected failed, got %s", res.Status)
		}
		if res.FailedTasks["b"] != models.ReasonBudgetExceeded {
			t.Errorf("expected b failed with budget_exceeded, got %v", res.FailedTasks)
		}
		if got := g.Task("a").Status; got != models.TaskStatusDone {
			t.Errorf("a: expected done, got %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not terminate after the budget crossed mid-iteration")
	}
}

// concurrencyProbe tracks the maximum number of simultaneous invocations.
type concurrencyProbe struct {
	current atomic.Int32
	max     atomic.Int32
}

func (p *concurrencyProbe) Invoke(ctx context.Context, req capability.Request) (capability.Result, error) {
	n := p.current.Add(1)
	for {
		m := p.max.Load()
		if n <= m || p.max.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	p.current.Add(-1)
	return capability.Result{Payload: "ok", Duration: time.Millisecond}, nil
}

func TestRunHonorsIntraTeamLimit(t *testing.T) {
	probe := &concurrencyProbe{}

	team, g := buildTeam(t, "build", []*models.Task{
		task("a", models.RoleCoder),
		task("b", models.RoleCoder),
		task("c", models.RoleCoder),
		task("d", models.RoleCoder),
	})
	tracker := budget.NewTracker(budget.DefaultLimits())
	tracker.RegisterTeam("build", 0, 0)

	s := New(team, g, tracker, newRunner(probe, time.Second), Config{IntraTeamLimit: 2})
	res := s.Run(context.Background())

	if res.Status != models.TeamStatusCompleted {
		t.Fatalf("expected completed, got %s", res.Status)
	}
	if got := probe.max.Load(); got > 2 {
		t.Errorf("concurrency limit exceeded: observed %d simultaneous tasks", got)
	}
}

func TestRunCancellation(t *testing.T) {
	inv := &capability.StaticInvoker{Delay: 100 * time.Millisecond, Respond: func(req capability.Request) (string, error) {
		return "out-" + req.TaskID, nil
	}}

	team, g := buildTeam(t, "build", []*models.Task{
		task("a", models.RoleCoder),
		task("b", models.RoleTester, "a"),
	})
	tracker := budget.NewTracker(budget.DefaultLimits())
	tracker.RegisterTeam("build", 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	s := New(team, g, tracker, newRunner(inv, time.Second), Config{})
	res := s.Run(ctx)

	if res.Status != models.TeamStatusCancelled {
		t.Fatalf("expected cancelled, got %s", res.Status)
	}
	// The in-flight task finished; only the never-dispatched one failed.
	if got := g.Task("a").Status; got != models.TaskStatusDone {
		t.Errorf("a: expected done, got %s", got)
	}
	if res.FailedTasks["b"] != models.ReasonCancelled {
		t.Errorf("expected b failed with cancelled, got %v", res.FailedTasks)
	}
}

func TestRunEmitsTaskUpdates(t *testing.T) {
	inv := &capability.StaticInvoker{CostPerCall: 0.01}

	team, g := buildTeam(t, "build", []*models.Task{
		task("a", models.RoleCoder),
	})
	tracker := budget.NewTracker(budget.DefaultLimits())
	tracker.RegisterTeam("build", 0, 0)

	var mu sync.Mutex
	var updates []TaskUpdate
	s := New(team, g, tracker, newRunner(inv, time.Second), Config{})
	s.OnTaskUpdate(func(u TaskUpdate) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})

	if res := s.Run(context.Background()); res.Status != models.TeamStatusCompleted {
		t.Fatalf("expected completed, got %s", res.Status)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(updates) < 2 {
		t.Fatalf("expected at least dispatch and completion updates, got %d", len(updates))
	}
	last := updates[len(updates)-1]
	if last.Team != "build" || last.Task.ID != "a" {
		t.Errorf("unexpected update %+v", last)
	}
	if last.Task.Status != models.TaskStatusDone {
		t.Errorf("final update should be done, got %s", last.Task.Status)
	}
}
