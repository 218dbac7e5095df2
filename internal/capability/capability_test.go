package capability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hiveworks/swarm/pkg/models"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	coder := &StaticInvoker{}
	fallback := &StaticInvoker{}

	r.Register(models.RoleCoder, coder)
	r.RegisterDefault(fallback)

	if inv, err := r.Lookup(models.RoleCoder); err != nil || inv != Invoker(coder) {
		t.Errorf("expected role-specific invoker, got %v (%v)", inv, err)
	}
	if inv, err := r.Lookup(models.RoleTester); err != nil || inv != Invoker(fallback) {
		t.Errorf("expected fallback invoker, got %v (%v)", inv, err)
	}
}

func TestRegistryLookupEmpty(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Lookup(models.RoleCoder); err == nil {
		t.Error("expected error with no registrations")
	}
}

func TestStaticInvokerDefaultPayload(t *testing.T) {
	inv := &StaticInvoker{CostPerCall: 0.02}
	res, err := inv.Invoke(context.Background(), Request{Role: models.RoleCoder, TaskID: "t-1", Prompt: "build"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Payload == "" {
		t.Error("expected payload")
	}
	if res.Cost != 0.02 {
		t.Errorf("expected cost 0.02, got %v", res.Cost)
	}
}

func TestStaticInvokerRespectsContext(t *testing.T) {
	inv := &StaticInvoker{Delay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := inv.Invoke(ctx, Request{Role: models.RoleCoder})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestSystemPromptPerRole(t *testing.T) {
	for _, role := range models.AllRoles() {
		if SystemPrompt(role) == "" {
			t.Errorf("role %s has no system prompt", role)
		}
	}
	if SystemPrompt(models.Role("unknown")) == "" {
		t.Error("unknown role should fall back to a generic prompt")
	}
}

func TestAnthropicCostFromPricing(t *testing.T) {
	inv := &AnthropicInvoker{
		model:   "claude-3-5-haiku-20241022",
		pricing: &ModelPricing{InputPerMillion: 1.00, OutputPerMillion: 5.00},
	}
	got := inv.cost(1_000_000, 200_000)
	want := 1.00 + 1.00
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected cost %v, got %v", want, got)
	}
}

func TestAnthropicCostUnknownModelIsZero(t *testing.T) {
	inv := &AnthropicInvoker{model: "some-future-model"}
	if got := inv.cost(1000, 1000); got != 0 {
		t.Errorf("expected zero cost for unknown model, got %v", got)
	}
}

func TestAnthropicCostDefaultTable(t *testing.T) {
	inv := &AnthropicInvoker{model: "claude-sonnet-4-20250514"}
	got := inv.cost(1_000_000, 1_000_000)
	want := 3.00 + 15.00
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected cost %v, got %v", want, got)
	}
}
