// Package runner executes individual tasks through the task-execution
// capability and owns their status transitions.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hiveworks/swarm/internal/capability"
	"github.com/hiveworks/swarm/internal/graph"
	"github.com/hiveworks/swarm/pkg/models"
)

// ExecutionError is the structured failure recorded when a task's
// invocation fails. Timeout is a specialization, never silently folded
// into a generic failure.
type ExecutionError struct {
	// TaskID identifies the failed task.
	TaskID string
	// Role is the task's role.
	Role models.Role
	// Reason is the machine-readable failure reason.
	Reason models.FailureReason
	// Err is the underlying error.
	Err error
}

// Error returns a human-readable description.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task %s (%s): %s: %v", e.TaskID, e.Role, e.Reason, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error { return e.Err }

// Outcome reports one task execution back to the scheduler. Cost and
// Duration reflect what was actually incurred, success or not.
type Outcome struct {
	// TaskID identifies the executed task.
	TaskID string
	// Payload is the result on success.
	Payload string
	// Cost is the incurred spend in dollars.
	Cost float64
	// Duration is the incurred execution time.
	Duration time.Duration
	// Err is non-nil when the task failed.
	Err *ExecutionError
}

// RetryPolicy bounds re-attempts of transient execution errors. The zero
// value disables retries entirely: one attempt per task per run. The
// policy is set by the team scheduler's configuration, never implicitly.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts (1 = no retry).
	MaxAttempts int
	// InitialInterval seeds the exponential backoff between attempts.
	InitialInterval time.Duration
	// MaxInterval caps the backoff between attempts.
	MaxInterval time.Duration
}

// attempts normalizes MaxAttempts to at least one.
func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Runner executes one task at a time against the capability registry.
// Execution is the only blocking operation in the core; everything else is
// synchronous state manipulation.
type Runner struct {
	capabilities *capability.Registry
	timeout      time.Duration
	retry        RetryPolicy
	logf         func(format string, args ...interface{})
}

// New creates a runner. timeout bounds every invocation; zero means no
// per-task deadline beyond the caller's context.
func New(capabilities *capability.Registry, timeout time.Duration, retry RetryPolicy) *Runner {
	return &Runner{
		capabilities: capabilities,
		timeout:      timeout,
		retry:        retry,
		logf:         func(string, ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (r *Runner) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		r.logf = fn
	}
}

// Execute runs one task: transitions it to working, invokes the capability
// bound to its role under the configured timeout, and transitions it to
// done or failed. The outcome is reported upward, never swallowed.
//
// ctx carries the team's cancellation; an in-flight invocation is still
// bounded by the per-task timeout after cancel, so worst-case cancellation
// latency is capped.
func (r *Runner) Execute(ctx context.Context, g *graph.DependencyGraph, task *models.Task, taskContext string) Outcome {
	out := Outcome{TaskID: task.ID}

	inv, err := r.capabilities.Lookup(task.Role)
	if err != nil {
		out.Err = &ExecutionError{TaskID: task.ID, Role: task.Role, Reason: models.ReasonExecutionError, Err: err}
		r.fail(g, task, out)
		return out
	}

	if err := g.MarkWorking(task.ID); err != nil {
		out.Err = &ExecutionError{TaskID: task.ID, Role: task.Role, Reason: models.ReasonExecutionError, Err: err}
		return out
	}

	req := capability.Request{
		Role:    task.Role,
		TaskID:  task.ID,
		Prompt:  task.Prompt,
		Context: taskContext,
	}

	result, execErr := r.invoke(ctx, inv, req)
	out.Cost = result.Cost
	out.Duration = result.Duration

	if execErr != nil {
		out.Err = execErr
		r.fail(g, task, out)
		return out
	}

	out.Payload = result.Payload
	g.AddUsage(task.ID, result.Cost, result.Duration)
	if err := g.MarkDone(task.ID, result.Payload); err != nil {
		r.logf("[runner] task %s: %v", task.ID, err)
	}
	return out
}

// invoke performs the bounded attempts for one execution. Timeouts and
// cancellation are permanent; only plain execution errors are retried, and
// only when the policy allows more than one attempt.
func (r *Runner) invoke(ctx context.Context, inv capability.Invoker, req capability.Request) (capability.Result, *ExecutionError) {
	var total capability.Result
	var attempt int

	op := func() (capability.Result, error) {
		attempt++
		callCtx := ctx
		if r.timeout > 0 {
			// Cancellation is cooperative: a cancelled team stops
			// dispatching, but this call runs to completion bounded
			// only by the task timeout.
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
			defer cancel()
		}

		start := time.Now()
		res, err := inv.Invoke(callCtx, req)
		if res.Duration == 0 {
			res.Duration = time.Since(start)
		}
		// Spend is incurred whether or not the attempt succeeded.
		total.Cost += res.Cost
		total.Duration += res.Duration

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return res, backoff.Permanent(fmt.Errorf("timeout after %s: %w", r.timeout, err))
			}
			if errors.Is(err, context.Canceled) {
				return res, backoff.Permanent(err)
			}
			r.logf("[runner] task %s attempt %d failed: %v", req.TaskID, attempt, err)
			return res, err
		}
		return res, nil
	}

	policy := backoff.NewExponentialBackOff()
	if r.retry.InitialInterval > 0 {
		policy.InitialInterval = r.retry.InitialInterval
	}
	if r.retry.MaxInterval > 0 {
		policy.MaxInterval = r.retry.MaxInterval
	}

	res, err := backoff.RetryWithData(op,
		backoff.WithMaxRetries(policy, uint64(r.retry.attempts()-1)))
	if err != nil {
		reason := models.ReasonExecutionError
		if errors.Is(err, context.DeadlineExceeded) {
			reason = models.ReasonTimeout
		} else if errors.Is(err, context.Canceled) {
			reason = models.ReasonCancelled
		}
		return total, &ExecutionError{TaskID: req.TaskID, Role: req.Role, Reason: reason, Err: err}
	}

	total.Payload = res.Payload
	return total, nil
}

// fail records the failure on the task and logs it.
func (r *Runner) fail(g *graph.DependencyGraph, task *models.Task, out Outcome) {
	g.AddUsage(task.ID, out.Cost, out.Duration)
	if err := g.MarkFailed(task.ID, out.Err.Reason, out.Err.Err.Error()); err != nil {
		r.logf("[runner] task %s: %v", task.ID, err)
	}
	r.logf("[runner] task %s failed: %v", task.ID, out.Err)
}
