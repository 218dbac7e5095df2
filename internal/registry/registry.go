// Package registry tracks run snapshots: active runs in memory, terminal
// runs in a bounded history, with optional fan-out to persistence sinks.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hiveworks/swarm/pkg/models"
)

// Sink receives every snapshot upserted into the registry. Implementations
// must tolerate being called from multiple goroutines.
type Sink interface {
	Store(snap models.RunSnapshot) error
}

// Registry is the authoritative map of run snapshots. Writers publish whole
// snapshots; readers never see a half-updated run.
type Registry struct {
	mu      sync.RWMutex
	active  map[string]models.RunSnapshot
	history map[string][]models.RunSnapshot
	sinks   []Sink
	logf    func(format string, args ...interface{})

	// maxHistory bounds per-run history length. Zero means unbounded.
	maxHistory int
}

// Option configures a registry.
type Option func(*Registry)

// WithSink attaches a persistence sink.
func WithSink(s Sink) Option {
	return func(r *Registry) {
		if s != nil {
			r.sinks = append(r.sinks, s)
		}
	}
}

// WithMaxHistory bounds the number of snapshots retained per run.
func WithMaxHistory(n int) Option {
	return func(r *Registry) { r.maxHistory = n }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		active:  make(map[string]models.RunSnapshot),
		history: make(map[string][]models.RunSnapshot),
		logf:    func(string, ...interface{}) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetDebugLog sets the debug logging function.
func (r *Registry) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		r.logf = fn
	}
}

// Upsert replaces the stored snapshot for the run. Re-upserting the same
// snapshot is harmless. Terminal snapshots move the run out of the active
// set; the full snapshot trail stays queryable through GetHistory.
func (r *Registry) Upsert(snap models.RunSnapshot) {
	r.mu.Lock()
	if snap.Status.Terminal() {
		delete(r.active, snap.RunID)
	} else {
		r.active[snap.RunID] = snap
	}
	trail := append(r.history[snap.RunID], snap)
	if r.maxHistory > 0 && len(trail) > r.maxHistory {
		trail = trail[len(trail)-r.maxHistory:]
	}
	r.history[snap.RunID] = trail
	sinks := r.sinks
	r.mu.Unlock()

	for _, s := range sinks {
		if err := s.Store(snap); err != nil {
			r.logf("[registry] sink store for run %s: %v", snap.RunID, err)
		}
	}
}

// Get returns the latest snapshot for a run, active or terminal.
func (r *Registry) Get(runID string) (models.RunSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if snap, ok := r.active[runID]; ok {
		return snap, nil
	}
	if trail := r.history[runID]; len(trail) > 0 {
		return trail[len(trail)-1], nil
	}
	return models.RunSnapshot{}, fmt.Errorf("run %s not found", runID)
}

// ListActive returns the non-terminal runs, ordered by start time then ID.
func (r *Registry) ListActive() []models.RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]models.RunSnapshot, 0, len(r.active))
	for _, snap := range r.active {
		runs = append(runs, snap)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.Before(runs[j].StartedAt)
		}
		return runs[i].RunID < runs[j].RunID
	})
	return runs
}

// GetHistory returns the ordered snapshot trail for a run, oldest first.
func (r *Registry) GetHistory(runID string) []models.RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	trail := r.history[runID]
	out := make([]models.RunSnapshot, len(trail))
	copy(out, trail)
	return out
}

// Size returns the number of active runs.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}
