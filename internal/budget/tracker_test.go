package budget

import (
	"sync"
	"testing"
	"time"
)

func TestAdmitTeamUnderBudget(t *testing.T) {
	tr := NewTracker(DefaultLimits())
	if err := tr.AdmitTeam("alpha"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAdmitTeamCostExhausted(t *testing.T) {
	tr := NewTracker(Limits{TotalCost: 1.00})
	tr.RegisterTeam("alpha", 0, 0)
	tr.Record("alpha", 1.00, time.Second)

	if err := tr.AdmitTeam("beta"); err != ErrBudgetExhausted {
		t.Fatalf("expected ErrBudgetExhausted, got %v", err)
	}
}

func TestAdmitTeamTimeExhausted(t *testing.T) {
	tr := NewTracker(Limits{TotalTime: time.Minute})
	now := time.Now()
	tr.SetNowFunc(func() time.Time { return now })
	tr.RegisterTeam("alpha", 0, 0)
	tr.StartClock("alpha")

	now = now.Add(2 * time.Minute)
	if err := tr.AdmitTeam("beta"); err != ErrBudgetExhausted {
		t.Fatalf("expected ErrBudgetExhausted, got %v", err)
	}
}

func TestTimeLimitExcludesQueuingTime(t *testing.T) {
	tr := NewTracker(Limits{TotalTime: time.Minute, PerTeamTime: time.Minute})
	now := time.Now()
	tr.SetNowFunc(func() time.Time { return now })
	tr.RegisterTeam("alpha", 0, 0)

	// Time passes before the first dispatch; the clock has not started.
	now = now.Add(time.Hour)
	if tr.OverBudget("alpha") {
		t.Error("team should not be over budget before first dispatch")
	}

	tr.StartClock("alpha")
	now = now.Add(61 * time.Second)
	if !tr.OverBudget("alpha") {
		t.Error("team should be over budget after its time limit elapsed")
	}
}

func TestPerTeamCostLimitInheritsDefault(t *testing.T) {
	tr := NewTracker(Limits{TotalCost: 100, PerTeamCost: 2.00})
	tr.RegisterTeam("alpha", 0, 0)
	tr.Record("alpha", 2.00, 0)

	if !tr.OverBudget("alpha") {
		t.Error("team at its inherited cost limit should be over budget")
	}
	if err := tr.AdmitTeam("beta"); err != nil {
		t.Errorf("run-level budget still open, got %v", err)
	}
}

func TestPerTeamCostLimitOverride(t *testing.T) {
	tr := NewTracker(Limits{PerTeamCost: 2.00})
	tr.RegisterTeam("alpha", 10.00, 0)
	tr.Record("alpha", 5.00, 0)

	if tr.OverBudget("alpha") {
		t.Error("team with raised limit should not be over budget at 5.00")
	}
}

func TestRecordConcurrentSum(t *testing.T) {
	tr := NewTracker(DefaultLimits())
	tr.RegisterTeam("alpha", 1000, time.Hour)

	const workers = 8
	const perWorker = 100

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				tr.Record("alpha", 0.01, time.Millisecond)
			}
		}()
	}
	wg.Wait()

	cost, duration := tr.TeamTotals("alpha")
	wantCost := workers * perWorker * 0.01
	if diff := cost - wantCost; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected team cost %v, got %v", wantCost, cost)
	}
	if duration != workers*perWorker*time.Millisecond {
		t.Errorf("expected duration %v, got %v", workers*perWorker*time.Millisecond, duration)
	}

	runCost, _ := tr.RunTotals()
	if diff := runCost - wantCost; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected run cost %v, got %v", wantCost, runCost)
	}
}

func TestCheckStatusTransitions(t *testing.T) {
	tests := []struct {
		name string
		used float64
		want Status
	}{
		{"zero usage", 0, StatusOK},
		{"half usage", 5.00, StatusOK},
		{"just under threshold", 7.90, StatusOK},
		{"at threshold", 8.00, StatusWarning},
		{"near ceiling", 9.90, StatusWarning},
		{"at ceiling", 10.00, StatusExhausted},
		{"over ceiling", 12.00, StatusExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(Limits{TotalCost: 10.00})
			tr.RegisterTeam("alpha", 1000, 0)
			tr.Record("alpha", tt.used, 0)
			if got := tr.Check(); got != tt.want {
				t.Errorf("Check() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestZeroLimitDisablesCeiling(t *testing.T) {
	tr := NewTracker(Limits{})
	tr.RegisterTeam("alpha", -1, -1)
	tr.Record("alpha", 1e9, time.Hour)

	if tr.OverBudget("alpha") {
		t.Error("zero limits should disable ceilings")
	}
	if err := tr.AdmitTeam("beta"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestUnknownTeamTotals(t *testing.T) {
	tr := NewTracker(DefaultLimits())
	cost, duration := tr.TeamTotals("ghost")
	if cost != 0 || duration != 0 {
		t.Errorf("expected zero totals for unknown team, got %v, %v", cost, duration)
	}
}
