// Package budget enforces cost and time ceilings at run and team scope.
package budget

import (
	"errors"
	"sync"
	"time"
)

// ErrBudgetExhausted indicates the run's global ceiling is already reached,
// so admitting another team would be pointless.
var ErrBudgetExhausted = errors.New("budget exhausted")

// Status represents the current state of budget consumption.
type Status int

const (
	// StatusOK indicates usage is below the warning threshold.
	StatusOK Status = iota
	// StatusWarning indicates usage is between the warning threshold and the ceiling.
	StatusWarning
	// StatusExhausted indicates the ceiling is reached.
	StatusExhausted
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "Warning"
	case StatusExhausted:
		return "Exhausted"
	default:
		return "Unknown"
	}
}

// DefaultWarningThreshold is the usage fraction at which warnings begin.
const DefaultWarningThreshold = 0.80

// Limits holds the four ceilings a tracker enforces. A zero or negative
// value disables that ceiling.
type Limits struct {
	// TotalCost is the run-wide spend ceiling in dollars.
	TotalCost float64
	// TotalTime is the run-wide wall-clock ceiling, measured from first dispatch.
	TotalTime time.Duration
	// PerTeamCost is the default team spend ceiling in dollars.
	PerTeamCost float64
	// PerTeamTime is the default team wall-clock ceiling, measured from the
	// team's first dispatch.
	PerTeamTime time.Duration
}

// DefaultLimits returns the stock ceilings.
func DefaultLimits() Limits {
	return Limits{
		TotalCost:   25.00,
		TotalTime:   30 * time.Minute,
		PerTeamCost: 5.00,
		PerTeamTime: 5 * time.Minute,
	}
}

// teamUsage is the live counter set for one team.
type teamUsage struct {
	cost          float64
	duration      time.Duration
	costLimit     float64
	timeLimit     time.Duration
	firstDispatch time.Time
}

// Tracker accumulates spend and elapsed time against configured limits at
// global and per-team scope. It does not pre-reserve spend: true cost is
// unknown until an invocation completes, so counters are updated as task
// outcomes arrive and a bounded overshoot of one in-flight task is expected.
type Tracker struct {
	mu sync.Mutex

	limits           Limits
	warningThreshold float64

	// Run-scope counters.
	cost          float64
	duration      time.Duration
	firstDispatch time.Time

	teams map[string]*teamUsage

	// now is swappable for tests.
	now func() time.Time
}

// NewTracker creates a tracker with the given ceilings.
func NewTracker(limits Limits) *Tracker {
	return &Tracker{
		limits:           limits,
		warningThreshold: DefaultWarningThreshold,
		teams:            make(map[string]*teamUsage),
		now:              time.Now,
	}
}

// SetNowFunc overrides the clock. Intended for tests.
func (t *Tracker) SetNowFunc(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// RegisterTeam creates the team's counter set. Zero limit values inherit
// the run-level per-team defaults.
func (t *Tracker) RegisterTeam(teamID string, costLimit float64, timeLimit time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if costLimit <= 0 {
		costLimit = t.limits.PerTeamCost
	}
	if timeLimit <= 0 {
		timeLimit = t.limits.PerTeamTime
	}
	t.teams[teamID] = &teamUsage{costLimit: costLimit, timeLimit: timeLimit}
}

// AdmitTeam reports whether a new team may start. It fails with
// ErrBudgetExhausted once the run's global cost or time ceiling is reached.
// It does not reserve anything.
func (t *Tracker) AdmitTeam(teamID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.teams[teamID]; !ok {
		t.teams[teamID] = &teamUsage{
			costLimit: t.limits.PerTeamCost,
			timeLimit: t.limits.PerTeamTime,
		}
	}
	if t.globalExceededLocked() {
		return ErrBudgetExhausted
	}
	return nil
}

// StartClock marks the team's (and, if unset, the run's) first task
// dispatch. Time limits exclude queuing time before this point.
func (t *Tracker) StartClock(teamID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if t.firstDispatch.IsZero() {
		t.firstDispatch = now
	}
	if usage, ok := t.teams[teamID]; ok && usage.firstDispatch.IsZero() {
		usage.firstDispatch = now
	}
}

// Record adds a task outcome's cost and duration to both the team's and
// the run's totals. Atomic with respect to concurrent callers: deltas from
// sibling tasks never lose an update.
func (t *Tracker) Record(teamID string, cost float64, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cost += cost
	t.duration += duration
	if usage, ok := t.teams[teamID]; ok {
		usage.cost += cost
		usage.duration += duration
	}
}

// OverBudget returns true if either the team's own limits or the run's
// global limits are exceeded. Schedulers consult this before releasing the
// next ready task.
func (t *Tracker) OverBudget(teamID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.globalExceededLocked() {
		return true
	}
	usage, ok := t.teams[teamID]
	if !ok {
		return false
	}
	if usage.costLimit > 0 && usage.cost >= usage.costLimit {
		return true
	}
	if usage.timeLimit > 0 && !usage.firstDispatch.IsZero() &&
		t.now().Sub(usage.firstDispatch) >= usage.timeLimit {
		return true
	}
	return false
}

// globalExceededLocked reports whether the run ceilings are reached.
// Caller must hold the lock.
func (t *Tracker) globalExceededLocked() bool {
	if t.limits.TotalCost > 0 && t.cost >= t.limits.TotalCost {
		return true
	}
	if t.limits.TotalTime > 0 && !t.firstDispatch.IsZero() &&
		t.now().Sub(t.firstDispatch) >= t.limits.TotalTime {
		return true
	}
	return false
}

// Check returns the run-scope budget status based on spend fraction.
func (t *Tracker) Check() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.limits.TotalCost <= 0 {
		return StatusOK
	}
	fraction := t.cost / t.limits.TotalCost
	switch {
	case fraction >= 1.0:
		return StatusExhausted
	case fraction >= t.warningThreshold:
		return StatusWarning
	default:
		return StatusOK
	}
}

// RunTotals returns the run's accumulated cost and duration.
func (t *Tracker) RunTotals() (cost float64, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cost, t.duration
}

// TeamTotals returns a team's accumulated cost and duration.
func (t *Tracker) TeamTotals(teamID string) (cost float64, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if usage, ok := t.teams[teamID]; ok {
		return usage.cost, usage.duration
	}
	return 0, 0
}

// SetWarningThreshold sets the warning fraction, clamped to [0, 1].
func (t *Tracker) SetWarningThreshold(threshold float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}
	t.warningThreshold = threshold
}
