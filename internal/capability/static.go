package capability

import (
	"context"
	"fmt"
	"time"
)

// StaticInvoker produces deterministic results without calling any external
// service. It backs dry runs and tests.
type StaticInvoker struct {
	// Delay is slept (context-aware) before returning, to simulate latency.
	Delay time.Duration
	// CostPerCall is the cost reported for every invocation.
	CostPerCall float64
	// Respond overrides the default payload when set.
	Respond func(req Request) (string, error)
}

// Invoke returns a canned payload after the configured delay.
func (s *StaticInvoker) Invoke(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	payload := fmt.Sprintf("[%s] %s", req.Role, req.Prompt)
	if s.Respond != nil {
		var err error
		payload, err = s.Respond(req)
		if err != nil {
			return Result{}, err
		}
	}

	return Result{
		Payload:  payload,
		Cost:     s.CostPerCall,
		Duration: time.Since(start),
	}, nil
}
