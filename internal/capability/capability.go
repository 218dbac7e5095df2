// Package capability defines the task-execution collaborator consumed by
// the orchestration core. The core is agnostic to how a role's work gets
// done; it only requires the Invoke contract below.
package capability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hiveworks/swarm/pkg/models"
)

// Request describes one unit of work handed to an invoker.
type Request struct {
	// Role selects the kind of work.
	Role models.Role
	// TaskID identifies the task for logging and failure reporting.
	TaskID string
	// Prompt is the task's work description.
	Prompt string
	// Context carries prerequisite results and objective text.
	Context string
}

// Result is the outcome of a successful invocation. Cost and Duration are
// always non-negative.
type Result struct {
	// Payload is the produced output, opaque to the core.
	Payload string
	// Cost is the incurred spend in dollars.
	Cost float64
	// Duration is the time the invocation took.
	Duration time.Duration
}

// Invoker executes one request. Implementations must respect ctx
// cancellation and deadlines; the caller bounds every call with a timeout.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Result, error)
}

// Registry maps roles to invokers. Dispatch is a lookup table keyed on the
// role, not a type hierarchy. A default invoker handles roles with no
// specific registration.
type Registry struct {
	mu       sync.RWMutex
	invokers map[models.Role]Invoker
	fallback Invoker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{invokers: make(map[models.Role]Invoker)}
}

// Register binds an invoker to a role, replacing any previous binding.
func (r *Registry) Register(role models.Role, inv Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invokers[role] = inv
}

// RegisterDefault sets the fallback invoker for roles with no binding.
func (r *Registry) RegisterDefault(inv Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = inv
}

// Lookup returns the invoker bound to a role, or the default. It fails if
// neither exists.
func (r *Registry) Lookup(role models.Role) (Invoker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if inv, ok := r.invokers[role]; ok {
		return inv, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("no invoker registered for role %q", role)
}
