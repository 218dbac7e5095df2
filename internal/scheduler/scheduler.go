// Package scheduler drives one team's dependency graph to a terminal
// state, releasing ready tasks to the runner under budget and concurrency
// constraints.
package scheduler

import (
	"context"
	"sort"
	"strings"

	"github.com/hiveworks/swarm/internal/budget"
	"github.com/hiveworks/swarm/internal/graph"
	"github.com/hiveworks/swarm/internal/runner"
	"github.com/hiveworks/swarm/pkg/models"
)

// Config bounds one team scheduler.
type Config struct {
	// IntraTeamLimit caps concurrent tasks within the team. Zero or
	// negative means unbounded by anything but the dependency structure.
	IntraTeamLimit int
	// TaskContext is shared context (objective text, spec reference)
	// prepended to every task invocation.
	TaskContext string
}

// TaskUpdate notifies an observer that a task changed state. The task is a
// snapshot copy; observers never see live graph state.
type TaskUpdate struct {
	Team string
	Task models.Task
}

// Scheduler owns one team for the duration of a run. Nothing else mutates
// the team or its tasks while the scheduler is running.
type Scheduler struct {
	team    *models.Team
	graph   *graph.DependencyGraph
	budget  *budget.Tracker
	runner  *runner.Runner
	cfg     Config
	onEvent func(TaskUpdate)
	logf    func(format string, args ...interface{})
}

// New creates a scheduler for one team. The graph must already be
// validated.
func New(team *models.Team, g *graph.DependencyGraph, tracker *budget.Tracker, r *runner.Runner, cfg Config) *Scheduler {
	return &Scheduler{
		team:   team,
		graph:  g,
		budget: tracker,
		runner: r,
		cfg:    cfg,
		logf:   func(string, ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (s *Scheduler) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		s.logf = fn
	}
}

// OnTaskUpdate registers an observer called after every task state change.
func (s *Scheduler) OnTaskUpdate(fn func(TaskUpdate)) {
	s.onEvent = fn
}

// Run executes the team to a terminal state and returns its aggregated
// result. The loop releases ready tasks (ascending task-ID order, bounded
// by the intra-team limit), waits for at least one in-flight completion
// before re-polling, and records every outcome against the budget.
func (s *Scheduler) Run(ctx context.Context) models.TeamResult {
	s.team.Status = models.TeamStatusRunning

	inflight := make(map[string]struct{})
	completionCh := make(chan runner.Outcome)

	cancelled := false
	budgetHit := false

	for {
		if !cancelled && ctx.Err() != nil {
			// Cooperative cancel: stop dispatching, let in-flight
			// calls finish against their own timeouts.
			cancelled = true
			s.logf("[scheduler:%s] cancelled, %d in flight", s.team.Name, len(inflight))
		}

		if !cancelled && !budgetHit && s.budget.OverBudget(s.team.Name) {
			budgetHit = true
			s.logf("[scheduler:%s] over budget, aborting remaining tasks", s.team.Name)
			s.graph.FailRemaining(models.ReasonBudgetExceeded, "team or run budget exceeded")
			s.notifyRemaining()
		}

		if !cancelled && !budgetHit {
			for _, id := range s.dispatchable(inflight) {
				// Budget can flip between sibling dispatches, or between
				// the top-of-loop check and here. Treat a flip exactly
				// like the top-of-loop detection: otherwise the loop can
				// block on the completion channel with nothing in flight.
				if s.budget.OverBudget(s.team.Name) {
					budgetHit = true
					s.logf("[scheduler:%s] over budget, aborting remaining tasks", s.team.Name)
					s.graph.FailRemaining(models.ReasonBudgetExceeded, "team or run budget exceeded")
					s.notifyRemaining()
					break
				}
				task := s.graph.Task(id)
				s.budget.StartClock(s.team.Name)
				inflight[id] = struct{}{}
				s.logf("[scheduler:%s] dispatching task %s (%s)", s.team.Name, id, task.Role)

				go func(t *models.Task) {
					completionCh <- s.runner.Execute(ctx, s.graph, t, s.taskContext(t))
				}(task)
				s.notify(id)
			}
		}

		if len(inflight) == 0 {
			if cancelled {
				s.graph.FailRemaining(models.ReasonCancelled, "run cancelled")
				s.notifyRemaining()
				s.team.Status = models.TeamStatusCancelled
				return s.result()
			}
			if s.graph.AllDone() {
				s.team.Status = models.TeamStatusCompleted
				return s.result()
			}
			if budgetHit || s.graph.Stuck() {
				// Dependents of failed tasks stay waiting forever;
				// once nothing can become ready the team is failed.
				s.team.Status = models.TeamStatusFailed
				return s.result()
			}
		}

		// Wait for at least one in-flight task before re-polling.
		out := <-completionCh
		delete(inflight, out.TaskID)
		s.budget.Record(s.team.Name, out.Cost, out.Duration)
		s.notify(out.TaskID)
		if out.Err != nil {
			s.logf("[scheduler:%s] task %s failed: %v", s.team.Name, out.TaskID, out.Err)
		} else {
			s.logf("[scheduler:%s] task %s done ($%.4f, %s)", s.team.Name, out.TaskID, out.Cost, out.Duration)
		}
	}
}

// dispatchable returns ready tasks not already in flight, truncated to the
// available concurrency slots. Ties beyond the limit resolve by ascending
// task ID, matching the graph's ready ordering.
func (s *Scheduler) dispatchable(inflight map[string]struct{}) []string {
	ready := s.graph.Ready()
	candidates := ready[:0]
	for _, id := range ready {
		if _, busy := inflight[id]; !busy {
			candidates = append(candidates, id)
		}
	}
	if s.cfg.IntraTeamLimit > 0 {
		slots := s.cfg.IntraTeamLimit - len(inflight)
		if slots <= 0 {
			return nil
		}
		if len(candidates) > slots {
			candidates = candidates[:slots]
		}
	}
	return candidates
}

// taskContext assembles the invocation context: the shared run context
// plus the results of the task's prerequisites, in ascending ID order.
func (s *Scheduler) taskContext(task *models.Task) string {
	var b strings.Builder
	if s.cfg.TaskContext != "" {
		b.WriteString(s.cfg.TaskContext)
	}
	deps := append([]string(nil), task.DependsOn...)
	sort.Strings(deps)
	for _, depID := range deps {
		dep, ok := s.graph.Snapshot(depID)
		if !ok || dep.Result == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("### Result of ")
		b.WriteString(depID)
		b.WriteString("\n")
		b.WriteString(dep.Result)
	}
	return b.String()
}

// result aggregates terminal task state into the team result: one payload
// per role plus the team's budget totals.
func (s *Scheduler) result() models.TeamResult {
	cost, duration := s.budget.TeamTotals(s.team.Name)
	res := models.TeamResult{
		Team:     s.team.Name,
		Status:   s.team.Status,
		Cost:     cost,
		Duration: duration,
	}
	for _, task := range s.graph.Snapshots() {
		switch task.Status {
		case models.TaskStatusDone:
			if res.Outputs == nil {
				res.Outputs = make(map[models.Role]string)
			}
			if existing := res.Outputs[task.Role]; existing != "" {
				res.Outputs[task.Role] = existing + "\n\n" + task.Result
			} else {
				res.Outputs[task.Role] = task.Result
			}
		case models.TaskStatusFailed:
			if res.FailedTasks == nil {
				res.FailedTasks = make(map[string]models.FailureReason)
			}
			res.FailedTasks[task.ID] = task.FailureReason
		}
	}
	return res
}

// notify publishes a snapshot of one task to the observer.
func (s *Scheduler) notify(taskID string) {
	if s.onEvent == nil {
		return
	}
	task, ok := s.graph.Snapshot(taskID)
	if !ok {
		return
	}
	s.onEvent(TaskUpdate{Team: s.team.Name, Task: task})
}

// notifyRemaining publishes every failed task after a bulk failure.
func (s *Scheduler) notifyRemaining() {
	if s.onEvent == nil {
		return
	}
	for _, task := range s.graph.Snapshots() {
		if task.Status == models.TaskStatusFailed {
			s.onEvent(TaskUpdate{Team: s.team.Name, Task: task})
		}
	}
}
