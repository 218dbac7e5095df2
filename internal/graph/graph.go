// Package graph provides the per-team dependency graph used for task
// scheduling. Tasks are nodes and edges represent "blocked by"
// relationships.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hiveworks/swarm/pkg/models"
)

// ErrCycleDetected indicates a circular dependency in the task set.
var ErrCycleDetected = errors.New("circular dependency detected")

// ErrDanglingReference indicates an edge naming a task that is not in the set.
var ErrDanglingReference = errors.New("dependency references unknown task")

// DependencyGraph holds one team's tasks and prerequisite edges. It is
// owned by a single team scheduler; the mutex guards against the task
// runner's completion callbacks racing the scheduler's ready queries.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// edges maps task ID to the IDs of tasks it depends on.
	edges map[string][]string
	// order preserves declaration order for deterministic iteration.
	order []string
}

// New builds a dependency graph from a team's tasks. Edges are taken from
// each task's DependsOn field. The graph is not validated here; call
// Validate before dispatching anything.
func New(tasks []*models.Task) *DependencyGraph {
	g := &DependencyGraph{
		nodes: make(map[string]*models.Task, len(tasks)),
		edges: make(map[string][]string, len(tasks)),
	}
	for _, task := range tasks {
		g.nodes[task.ID] = task
		g.edges[task.ID] = append([]string(nil), task.DependsOn...)
		g.order = append(g.order, task.ID)
	}
	return g
}

// Validate checks that every edge references a known task and that the
// prerequisite relation is acyclic. It must pass before any task starts.
// On success, every non-terminal task is stamped waiting or ready.
func (g *DependencyGraph) Validate() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, deps := range g.edges {
		for _, depID := range deps {
			if _, ok := g.nodes[depID]; !ok {
				return fmt.Errorf("task %s depends on %s: %w", id, depID, ErrDanglingReference)
			}
		}
	}

	// DFS with an in-progress marker set: any edge into a gray node is a
	// back edge, hence a cycle.
	const (
		white = 0
		gray  = 1
		black = 2
	)
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = gray
		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case gray:
				return true
			case white:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = black
		return false
	}

	for _, id := range g.order {
		if colors[id] == white && visit(id) {
			return ErrCycleDetected
		}
	}

	for _, id := range g.order {
		task := g.nodes[id]
		if task.Status != models.TaskStatusPending {
			continue
		}
		if g.depsAllDoneLocked(id) {
			task.Status = models.TaskStatusReady
		} else {
			task.Status = models.TaskStatusWaiting
		}
	}
	return nil
}

// Ready returns the IDs of tasks whose status is pending or waiting (or
// already stamped ready) and whose prerequisites are all done, in stable
// ascending ID order. Pure query; safe to call repeatedly.
func (g *DependencyGraph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for id, task := range g.nodes {
		switch task.Status {
		case models.TaskStatusPending, models.TaskStatusWaiting, models.TaskStatusReady:
		default:
			continue
		}
		if g.depsAllDoneLocked(id) {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	return ready
}

// depsAllDoneLocked reports whether every prerequisite of id is done.
// Caller must hold the lock.
func (g *DependencyGraph) depsAllDoneLocked(id string) bool {
	for _, depID := range g.edges[id] {
		dep, ok := g.nodes[depID]
		if !ok || dep.Status != models.TaskStatusDone {
			return false
		}
	}
	return true
}

// MarkWorking transitions a task to working and stamps its start time.
func (g *DependencyGraph) MarkWorking(taskID string) error {
	return g.transition(taskID, models.TaskStatusWorking, "", "")
}

// MarkDone transitions a task to done and records its result payload.
func (g *DependencyGraph) MarkDone(taskID, result string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	task, ok := g.nodes[taskID]
	if !ok {
		return fmt.Errorf("task %s not in graph", taskID)
	}
	if !task.Status.CanTransition(models.TaskStatusDone) {
		return fmt.Errorf("task %s: illegal transition %s -> done", taskID, task.Status)
	}
	task.Status = models.TaskStatusDone
	task.Result = result
	now := time.Now()
	task.CompletedAt = &now

	// Newly unblocked dependents move from waiting to ready.
	for _, depID := range g.dependentsLocked(taskID) {
		dep := g.nodes[depID]
		if dep.Status == models.TaskStatusWaiting && g.depsAllDoneLocked(depID) {
			dep.Status = models.TaskStatusReady
		}
	}
	return nil
}

// MarkFailed transitions a task to failed with a machine-readable reason.
func (g *DependencyGraph) MarkFailed(taskID string, reason models.FailureReason, detail string) error {
	return g.transition(taskID, models.TaskStatusFailed, reason, detail)
}

func (g *DependencyGraph) transition(taskID string, next models.TaskStatus, reason models.FailureReason, detail string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	task, ok := g.nodes[taskID]
	if !ok {
		return fmt.Errorf("task %s not in graph", taskID)
	}
	if !task.Status.CanTransition(next) {
		return fmt.Errorf("task %s: illegal transition %s -> %s", taskID, task.Status, next)
	}
	task.Status = next
	now := time.Now()
	switch next {
	case models.TaskStatusWorking:
		task.StartedAt = &now
	case models.TaskStatusFailed:
		task.FailureReason = reason
		task.Error = detail
		task.CompletedAt = &now
	}
	return nil
}

// Dependents returns the IDs of tasks that depend directly on taskID.
func (g *DependencyGraph) Dependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dependentsLocked(taskID)
}

func (g *DependencyGraph) dependentsLocked(taskID string) []string {
	var dependents []string
	for _, id := range g.order {
		for _, depID := range g.edges[id] {
			if depID == taskID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

// Stuck reports whether no further task can ever become ready: nothing is
// ready, nothing is working, and at least one task is not done. Dependents
// of a failed task stay waiting forever, which is how failure propagates.
func (g *DependencyGraph) Stuck() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	allDone := true
	for id, task := range g.nodes {
		switch task.Status {
		case models.TaskStatusWorking, models.TaskStatusReady:
			return false
		case models.TaskStatusDone:
			continue
		case models.TaskStatusPending, models.TaskStatusWaiting:
			allDone = false
			if g.depsAllDoneLocked(id) {
				return false
			}
		case models.TaskStatusFailed:
			allDone = false
		}
	}
	return !allDone
}

// AllDone reports whether every task reached done.
func (g *DependencyGraph) AllDone() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, task := range g.nodes {
		if task.Status != models.TaskStatusDone {
			return false
		}
	}
	return true
}

// FailRemaining marks every non-terminal, non-working task failed with the
// given reason. Used when a team aborts on budget exhaustion or cancel.
func (g *DependencyGraph) FailRemaining(reason models.FailureReason, detail string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	for _, task := range g.nodes {
		switch task.Status {
		case models.TaskStatusPending, models.TaskStatusWaiting, models.TaskStatusReady:
			task.Status = models.TaskStatusFailed
			task.FailureReason = reason
			task.Error = detail
			task.CompletedAt = &now
		}
	}
}

// AddUsage accumulates incurred cost and execution time on a task. Spend
// is recorded whether or not the attempt succeeded.
func (g *DependencyGraph) AddUsage(taskID string, cost float64, duration time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if task, ok := g.nodes[taskID]; ok {
		task.Cost += cost
		task.Duration += duration
	}
}

// Snapshot returns a deep value copy of one task.
func (g *DependencyGraph) Snapshot(taskID string) (models.Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	task, ok := g.nodes[taskID]
	if !ok {
		return models.Task{}, false
	}
	return *task.Clone(), true
}

// Snapshots returns deep value copies of all tasks in declaration order.
func (g *DependencyGraph) Snapshots() []models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	tasks := make([]models.Task, 0, len(g.order))
	for _, id := range g.order {
		tasks = append(tasks, *g.nodes[id].Clone())
	}
	return tasks
}

// Task returns the task for an ID, or nil if not found.
func (g *DependencyGraph) Task(taskID string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// Tasks returns the tasks in declaration order.
func (g *DependencyGraph) Tasks() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	tasks := make([]*models.Task, 0, len(g.order))
	for _, id := range g.order {
		tasks = append(tasks, g.nodes[id])
	}
	return tasks
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}
