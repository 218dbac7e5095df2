package queen

import (
	"time"

	"github.com/hiveworks/swarm/internal/budget"
	"github.com/hiveworks/swarm/internal/capability"
	"github.com/hiveworks/swarm/internal/decompose"
	"github.com/hiveworks/swarm/internal/registry"
	"github.com/hiveworks/swarm/internal/runner"
)

// RequiredConfig contains the minimal required configuration for a Queen.
// All fields are required and have no defaults.
type RequiredConfig struct {
	// Capabilities maps roles to their invokers.
	Capabilities *capability.Registry
	// Registry receives run snapshots on every state change.
	Registry *registry.Registry
}

// Option configures a Queen. Use With* functions to create Options.
type Option func(*queenOptions)

// queenOptions holds all optional configuration.
type queenOptions struct {
	strategy         decompose.Strategy
	limits           budget.Limits
	maxParallelTeams int
	intraTeamLimit   int
	taskTimeout      time.Duration
	retry            runner.RetryPolicy
	eventBuffer      int
	logger           *DebugLogger
}

// defaultOptions returns the stock configuration.
func defaultOptions() *queenOptions {
	return &queenOptions{
		strategy:         decompose.RoleStrategy{},
		limits:           budget.DefaultLimits(),
		maxParallelTeams: 3,
		taskTimeout:      2 * time.Minute,
		eventBuffer:      128,
	}
}

// WithStrategy sets the decomposition strategy.
func WithStrategy(s decompose.Strategy) Option {
	return func(o *queenOptions) {
		if s != nil {
			o.strategy = s
		}
	}
}

// WithLimits sets the run and per-team budget ceilings.
func WithLimits(l budget.Limits) Option {
	return func(o *queenOptions) { o.limits = l }
}

// WithMaxParallelTeams sets the number of teams that may run concurrently.
func WithMaxParallelTeams(n int) Option {
	return func(o *queenOptions) {
		if n > 0 {
			o.maxParallelTeams = n
		}
	}
}

// WithIntraTeamLimit caps concurrent tasks within each team. Zero or
// negative means unbounded.
func WithIntraTeamLimit(n int) Option {
	return func(o *queenOptions) { o.intraTeamLimit = n }
}

// WithTaskTimeout bounds every task invocation.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *queenOptions) {
		if d > 0 {
			o.taskTimeout = d
		}
	}
}

// WithRetryPolicy sets the retry policy for transient execution errors.
func WithRetryPolicy(p runner.RetryPolicy) Option {
	return func(o *queenOptions) { o.retry = p }
}

// WithEventBuffer sets the event channel buffer size.
func WithEventBuffer(n int) Option {
	return func(o *queenOptions) {
		if n > 0 {
			o.eventBuffer = n
		}
	}
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *queenOptions) {
		if l != nil {
			o.logger = l
		}
	}
}
