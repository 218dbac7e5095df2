package queen

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/hiveworks/swarm/internal/budget"
	"github.com/hiveworks/swarm/internal/capability"
	"github.com/hiveworks/swarm/internal/graph"
	"github.com/hiveworks/swarm/internal/registry"
	"github.com/hiveworks/swarm/internal/runner"
	"github.com/hiveworks/swarm/internal/scheduler"
	"github.com/hiveworks/swarm/pkg/models"
)

// Queen is the top-level coordinator. It decomposes objectives into teams,
// admits teams under the global budget and parallelism gates, and reduces
// terminal team results into a single run outcome.
type Queen struct {
	capabilities *capability.Registry
	registry     *registry.Registry
	opts         *queenOptions
	emitter      *EventEmitter
	logger       *DebugLogger

	mu   sync.Mutex
	runs map[string]*runHandle
}

// runHandle is the queen's live state for one run. The handle mutex guards
// the canonical run record; schedulers only ever hand over value snapshots.
type runHandle struct {
	mu           sync.Mutex
	run          *models.Run
	cancel       context.CancelFunc
	done         chan struct{}
	budgetWarned bool
}

// New creates a queen. Both required fields must be set.
func New(req RequiredConfig, opts ...Option) (*Queen, error) {
	if req.Capabilities == nil {
		return nil, fmt.Errorf("queen requires a capability registry")
	}
	if req.Registry == nil {
		return nil, fmt.Errorf("queen requires a run registry")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	q := &Queen{
		capabilities: req.Capabilities,
		registry:     req.Registry,
		opts:         o,
		emitter:      NewEventEmitter(o.eventBuffer),
		logger:       o.logger,
		runs:         make(map[string]*runHandle),
	}
	q.registry.SetDebugLog(q.logf)
	return q, nil
}

// Events returns the queen's event stream.
func (q *Queen) Events() <-chan Event {
	return q.emitter.Events()
}

// DroppedEvents returns the number of events dropped so far.
func (q *Queen) DroppedEvents() uint64 {
	return q.emitter.DroppedCount()
}

func (q *Queen) logf(format string, args ...interface{}) {
	q.logger.Log(format, args...)
}

// Launch decomposes the objective, validates every team's dependency graph,
// and starts executing in the background. No run exists until every graph
// validates; a malformed plan never produces a half-started run.
func (q *Queen) Launch(ctx context.Context, objective models.Objective) (string, error) {
	teams, err := q.opts.strategy.Decompose(ctx, objective)
	if err != nil {
		return "", fmt.Errorf("decompose objective: %w", err)
	}

	// Schedulers execute against clones; the run record keeps the
	// canonical teams, updated only from snapshots under the handle lock.
	execTeams := make([]*models.Team, len(teams))
	graphs := make([]*graph.DependencyGraph, len(teams))
	for i, team := range teams {
		execTeams[i] = team.Clone()
		graphs[i] = graph.New(execTeams[i].Tasks)
		if err := graphs[i].Validate(); err != nil {
			return "", fmt.Errorf("team %s: %w", team.Name, err)
		}
		// Stamp the canonical copy the same way so early snapshots agree.
		if err := graph.New(team.Tasks).Validate(); err != nil {
			return "", fmt.Errorf("team %s: %w", team.Name, err)
		}
	}

	runID := uuid.New().String()
	run := &models.Run{
		ID:        runID,
		Objective: objective,
		Status:    models.RunStatusPending,
		Teams:     teams,
		StartedAt: time.Now(),
	}

	runCtx, cancel := context.WithCancel(ctx)
	handle := &runHandle{run: run, cancel: cancel, done: make(chan struct{})}

	q.mu.Lock()
	q.runs[runID] = handle
	q.mu.Unlock()

	// Publish the pending state before execution begins, then flip to
	// running. Observers see the full lifecycle in the snapshot trail.
	q.registry.Upsert(run.Snapshot())
	run.Status = models.RunStatusRunning
	q.registry.Upsert(run.Snapshot())
	q.emitter.Emit(Event{Type: EventRunStarted, RunID: runID, Message: objective.Text})
	q.logf("[queen] run %s started: %d teams", shortID(runID), len(teams))

	go q.execute(runCtx, handle, execTeams, graphs)
	return runID, nil
}

// Cancel requests cooperative cancellation of a run. In-flight tasks finish
// bounded by the task timeout; nothing new is dispatched.
func (q *Queen) Cancel(runID string) error {
	q.mu.Lock()
	handle, ok := q.runs[runID]
	q.mu.Unlock()
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	q.logf("[queen] run %s cancel requested", shortID(runID))
	handle.cancel()
	return nil
}

// Status returns the latest snapshot for a run.
func (q *Queen) Status(runID string) (models.RunSnapshot, error) {
	return q.registry.Get(runID)
}

// Wait blocks until the run reaches a terminal state or the context ends,
// then returns the final snapshot.
func (q *Queen) Wait(ctx context.Context, runID string) (models.RunSnapshot, error) {
	q.mu.Lock()
	handle, ok := q.runs[runID]
	q.mu.Unlock()
	if !ok {
		return q.registry.Get(runID)
	}
	select {
	case <-handle.done:
		return q.registry.Get(runID)
	case <-ctx.Done():
		return models.RunSnapshot{}, ctx.Err()
	}
}

// execute drives a run to completion: admission, team scheduling, and final
// synthesis. It owns the run's budget tracker and task runner.
func (q *Queen) execute(ctx context.Context, handle *runHandle, execTeams []*models.Team, graphs []*graph.DependencyGraph) {
	runID := handle.run.ID

	tracker := budget.NewTracker(q.opts.limits)
	for _, team := range execTeams {
		tracker.RegisterTeam(team.Name, team.CostLimit, team.TimeLimit)
	}

	taskRunner := runner.New(q.capabilities, q.opts.taskTimeout, q.opts.retry)
	taskRunner.SetDebugLog(q.logf)

	sem := semaphore.NewWeighted(int64(q.opts.maxParallelTeams))
	var wg sync.WaitGroup

	for i, team := range execTeams {
		if err := sem.Acquire(ctx, 1); err != nil {
			q.failUnstarted(handle, execTeams[i:], models.ReasonCancelled, "run cancelled before admission")
			break
		}
		if err := tracker.AdmitTeam(team.Name); err != nil {
			sem.Release(1)
			q.logf("[queen] run %s: team %s refused admission: %v", shortID(runID), team.Name, err)
			q.failUnstarted(handle, execTeams[i:], models.ReasonBudgetExceeded, "run budget exhausted before admission")
			break
		}

		q.setTeamStatus(handle, team.Name, models.TeamStatusRunning)
		q.emitter.Emit(Event{Type: EventTeamAdmitted, RunID: runID, Team: team.Name})
		q.logf("[queen] run %s: team %s admitted", shortID(runID), team.Name)

		wg.Add(1)
		go func(team *models.Team, g *graph.DependencyGraph) {
			defer wg.Done()
			defer sem.Release(1)

			s := scheduler.New(team, g, tracker, taskRunner, scheduler.Config{
				IntraTeamLimit: q.opts.intraTeamLimit,
				TaskContext:    q.taskContext(handle.run.Objective),
			})
			s.SetDebugLog(q.logf)
			s.OnTaskUpdate(func(u scheduler.TaskUpdate) {
				q.onTaskUpdate(handle, tracker, u)
			})

			res := s.Run(ctx)
			q.recordTeamResult(handle, tracker, res)
		}(team, graphs[i])
	}

	wg.Wait()

	handle.mu.Lock()
	run := handle.run
	syn := Synthesize(run.TeamResults, ctx.Err() != nil)
	run.Status = syn.Status
	run.Output = syn.Output
	run.Partial = syn.Partial
	run.FailedTeams = syn.FailedTeams
	run.Cost, run.Duration = tracker.RunTotals()
	snap := run.Snapshot()
	handle.mu.Unlock()

	q.registry.Upsert(snap)

	event := Event{RunID: runID, Cost: snap.Cost, Duration: snap.Duration}
	switch syn.Status {
	case models.RunStatusCompleted:
		event.Type = EventRunCompleted
		if syn.Partial {
			event.Message = "completed with partial results"
		}
	case models.RunStatusCancelled:
		event.Type = EventRunCancelled
	default:
		event.Type = EventRunFailed
	}
	q.emitter.Emit(event)
	q.logf("[queen] run %s finished: %s (cost $%.4f, duration %s, partial=%v)",
		shortID(runID), syn.Status, snap.Cost, snap.Duration, syn.Partial)

	close(handle.done)

	q.mu.Lock()
	delete(q.runs, runID)
	q.mu.Unlock()
}

// taskContext builds the shared invocation context from the objective.
func (q *Queen) taskContext(objective models.Objective) string {
	ctx := "Objective: " + objective.Text
	if objective.SpecRef != "" {
		ctx += "\nSpecification: " + objective.SpecRef
	}
	return ctx
}

// onTaskUpdate patches the canonical run record from a scheduler snapshot
// and republishes the run.
func (q *Queen) onTaskUpdate(handle *runHandle, tracker *budget.Tracker, u scheduler.TaskUpdate) {
	handle.mu.Lock()
	run := handle.run
	for _, team := range run.Teams {
		if team.Name != u.Team {
			continue
		}
		for i, task := range team.Tasks {
			if task.ID == u.Task.ID {
				clone := u.Task
				team.Tasks[i] = &clone
				break
			}
		}
		break
	}
	run.Cost, run.Duration = tracker.RunTotals()
	snap := run.Snapshot()
	handle.mu.Unlock()

	q.registry.Upsert(snap)

	event := Event{
		RunID:    run.ID,
		Team:     u.Team,
		TaskID:   u.Task.ID,
		Role:     u.Task.Role,
		Cost:     snap.Cost,
		Duration: snap.Duration,
	}
	switch u.Task.Status {
	case models.TaskStatusWorking:
		event.Type = EventTaskStarted
	case models.TaskStatusDone:
		event.Type = EventTaskCompleted
	case models.TaskStatusFailed:
		event.Type = EventTaskFailed
		event.Reason = u.Task.FailureReason
		event.Message = u.Task.Error
	default:
		return
	}
	q.emitter.Emit(event)

	q.maybeWarnBudget(handle, tracker)
}

// maybeWarnBudget emits a single warning when run spend crosses the
// threshold.
func (q *Queen) maybeWarnBudget(handle *runHandle, tracker *budget.Tracker) {
	if tracker.Check() != budget.StatusWarning {
		return
	}
	handle.mu.Lock()
	warned := handle.budgetWarned
	handle.budgetWarned = true
	handle.mu.Unlock()
	if warned {
		return
	}
	cost, duration := tracker.RunTotals()
	q.emitter.Emit(Event{
		Type:     EventBudgetWarning,
		RunID:    handle.run.ID,
		Message:  "run spend crossed the warning threshold",
		Cost:     cost,
		Duration: duration,
	})
	q.logf("[queen] run %s: budget warning at $%.4f", shortID(handle.run.ID), cost)
}

// recordTeamResult folds a terminal team result into the run record.
func (q *Queen) recordTeamResult(handle *runHandle, tracker *budget.Tracker, res models.TeamResult) {
	handle.mu.Lock()
	run := handle.run
	run.TeamResults = append(run.TeamResults, res)
	for _, team := range run.Teams {
		if team.Name == res.Team {
			team.Status = res.Status
			break
		}
	}
	run.Cost, run.Duration = tracker.RunTotals()
	snap := run.Snapshot()
	handle.mu.Unlock()

	q.registry.Upsert(snap)

	event := Event{
		RunID:    run.ID,
		Team:     res.Team,
		Cost:     snap.Cost,
		Duration: snap.Duration,
	}
	if res.Succeeded() {
		event.Type = EventTeamCompleted
	} else {
		event.Type = EventTeamFailed
		event.Reason = teamFailureReason(res)
	}
	q.emitter.Emit(event)
	q.logf("[queen] run %s: team %s %s (cost $%.4f)", shortID(run.ID), res.Team, res.Status, res.Cost)
}

// failUnstarted records synthetic failed results for teams that never got a
// scheduler, so synthesis sees every team exactly once.
func (q *Queen) failUnstarted(handle *runHandle, teams []*models.Team, reason models.FailureReason, detail string) {
	status := models.TeamStatusFailed
	if reason == models.ReasonCancelled {
		status = models.TeamStatusCancelled
	}
	for _, team := range teams {
		res := models.TeamResult{
			Team:        team.Name,
			Status:      status,
			FailedTasks: make(map[string]models.FailureReason, len(team.Tasks)),
		}
		for _, task := range team.Tasks {
			res.FailedTasks[task.ID] = reason
		}

		handle.mu.Lock()
		run := handle.run
		run.TeamResults = append(run.TeamResults, res)
		for _, canonical := range run.Teams {
			if canonical.Name != team.Name {
				continue
			}
			canonical.Status = status
			now := time.Now()
			for _, task := range canonical.Tasks {
				if !task.Status.Terminal() {
					task.Status = models.TaskStatusFailed
					task.FailureReason = reason
					task.Error = detail
					task.CompletedAt = &now
				}
			}
			break
		}
		snap := run.Snapshot()
		handle.mu.Unlock()

		q.registry.Upsert(snap)
		q.emitter.Emit(Event{Type: EventTeamFailed, RunID: run.ID, Team: team.Name, Reason: reason, Message: detail})
	}
}

// setTeamStatus updates one canonical team's status and republishes.
func (q *Queen) setTeamStatus(handle *runHandle, teamName string, status models.TeamStatus) {
	handle.mu.Lock()
	for _, team := range handle.run.Teams {
		if team.Name == teamName {
			team.Status = status
			break
		}
	}
	snap := handle.run.Snapshot()
	handle.mu.Unlock()
	q.registry.Upsert(snap)
}

// shortID returns the first uuid segment for log readability.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
