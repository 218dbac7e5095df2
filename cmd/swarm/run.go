package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hiveworks/swarm/internal/budget"
	"github.com/hiveworks/swarm/internal/capability"
	"github.com/hiveworks/swarm/internal/config"
	"github.com/hiveworks/swarm/internal/decompose"
	"github.com/hiveworks/swarm/internal/history"
	"github.com/hiveworks/swarm/internal/queen"
	"github.com/hiveworks/swarm/internal/registry"
	"github.com/hiveworks/swarm/internal/runner"
	"github.com/hiveworks/swarm/pkg/models"
)

var (
	runPlanFile  string
	runSpecRef   string
	runDryRun    bool
	runCostLimit float64
	runTimeLimit time.Duration
	runNoHistory bool
	runDebugLog  string
)

var runCmd = &cobra.Command{
	Use:   "run <objective>",
	Short: "Run an objective with team orchestration",
	Long: `Run an objective using parallel teams of role-tagged tasks.

The objective is decomposed into teams, each a dependency graph of tasks.
Teams execute concurrently up to the parallelism limit, each task dispatched
to the capability bound to its role. The run stops early when cost or time
budgets are exhausted; completed team outputs are still synthesized into a
partial result.

Use --plan to execute a hand-written YAML plan instead of decomposing, and
--dry-run to execute with canned responses instead of a model.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runPlanFile, "plan", "", "Execute a YAML team plan instead of decomposing")
	runCmd.Flags().StringVar(&runSpecRef, "spec", "", "Specification reference attached to the objective")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Execute with canned responses, no model calls")
	runCmd.Flags().Float64Var(&runCostLimit, "cost-limit", 0, "Override the total cost limit in dollars")
	runCmd.Flags().DurationVar(&runTimeLimit, "time-limit", 0, "Override the total time limit")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "Skip persisting run history")
	runCmd.Flags().StringVar(&runDebugLog, "debug-log", "", "Write a debug log to this path")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	objective := models.Objective{
		Text:    strings.Join(args, " "),
		SpecRef: runSpecRef,
	}

	capabilities, invoker, err := buildCapabilities(cfg)
	if err != nil {
		return err
	}

	strategy, err := buildStrategy(invoker)
	if err != nil {
		return err
	}

	regOpts := []registry.Option{}
	if cfg.History.Enabled && !runNoHistory {
		db, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		regOpts = append(regOpts, registry.WithSink(db))
	}
	runRegistry := registry.New(regOpts...)

	logger := queen.NopLogger()
	if runDebugLog != "" {
		logger, err = queen.NewDebugLogger(runDebugLog)
		if err != nil {
			return fmt.Errorf("open debug log: %w", err)
		}
		defer logger.Close()
	}

	limits := budget.Limits{
		TotalCost:   cfg.Budget.TotalCostLimit,
		TotalTime:   cfg.Budget.TotalTimeLimit,
		PerTeamCost: cfg.Budget.PerTeamCostLimit,
		PerTeamTime: cfg.Budget.PerTeamTimeLimit,
	}
	if runCostLimit > 0 {
		limits.TotalCost = runCostLimit
	}
	if runTimeLimit > 0 {
		limits.TotalTime = runTimeLimit
	}

	q, err := queen.New(
		queen.RequiredConfig{Capabilities: capabilities, Registry: runRegistry},
		queen.WithStrategy(strategy),
		queen.WithLimits(limits),
		queen.WithMaxParallelTeams(cfg.Scheduler.MaxParallelTeams),
		queen.WithIntraTeamLimit(cfg.Scheduler.IntraTeamConcurrencyLimit),
		queen.WithTaskTimeout(cfg.Scheduler.TaskTimeout),
		queen.WithRetryPolicy(runner.RetryPolicy{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
		}),
		queen.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID, err := q.Launch(ctx, objective)
	if err != nil {
		return fmt.Errorf("launch run: %w", err)
	}
	fmt.Printf("Run %s started\n", runID)

	go streamEvents(q, runID)

	snap, err := q.Wait(ctx, runID)
	if err != nil {
		return fmt.Errorf("wait for run: %w", err)
	}

	printSummary(snap)
	if snap.Status == models.RunStatusFailed {
		return fmt.Errorf("run %s failed", runID)
	}
	return nil
}

// buildCapabilities wires the role capability registry. Dry runs get canned
// responses; everything else goes to the Anthropic API or Bedrock.
func buildCapabilities(cfg *config.Config) (*capability.Registry, capability.Invoker, error) {
	capabilities := capability.NewRegistry()

	if runDryRun {
		inv := &capability.StaticInvoker{Delay: 50 * time.Millisecond, CostPerCall: 0.01}
		capabilities.RegisterDefault(inv)
		return capabilities, inv, nil
	}

	inv, err := capability.NewAnthropicInvoker(capability.AnthropicConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		MaxTokens:     cfg.Anthropic.MaxTokens,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create anthropic invoker: %w", err)
	}
	capabilities.RegisterDefault(inv)
	return capabilities, inv, nil
}

// buildStrategy picks the decomposition strategy: plan file, deterministic
// (dry run), or model-driven.
func buildStrategy(invoker capability.Invoker) (decompose.Strategy, error) {
	if runPlanFile != "" {
		if _, err := os.Stat(runPlanFile); err != nil {
			return nil, fmt.Errorf("plan file %s: %w", runPlanFile, err)
		}
		return decompose.FileStrategy{Path: runPlanFile}, nil
	}
	if runDryRun {
		return decompose.RoleStrategy{}, nil
	}
	return decompose.ModelStrategy{Invoker: invoker}, nil
}

func openHistory(cfg *config.Config) (*history.DB, error) {
	path := cfg.History.Path
	if path == "" {
		path = history.GlobalDBPath()
	}
	db, err := history.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	return db, nil
}

// streamEvents prints run progress to the terminal until the event channel
// closes or the run finishes.
func streamEvents(q *queen.Queen, runID string) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	for event := range q.Events() {
		if event.RunID != runID {
			continue
		}
		switch event.Type {
		case queen.EventTeamAdmitted:
			cyan.Printf("▶ team %s started\n", event.Team)
		case queen.EventTaskStarted:
			fmt.Printf("  task %s (%s) working\n", event.TaskID, event.Role)
		case queen.EventTaskCompleted:
			green.Printf("  task %s (%s) done\n", event.TaskID, event.Role)
		case queen.EventTaskFailed:
			red.Printf("  task %s (%s) failed: %s\n", event.TaskID, event.Role, event.Reason)
		case queen.EventTeamCompleted:
			green.Printf("✔ team %s completed ($%.4f total)\n", event.Team, event.Cost)
		case queen.EventTeamFailed:
			red.Printf("✘ team %s failed: %s\n", event.Team, event.Reason)
		case queen.EventBudgetWarning:
			yellow.Printf("! budget warning: $%.4f spent\n", event.Cost)
		case queen.EventRunCompleted, queen.EventRunFailed, queen.EventRunCancelled:
			return
		}
	}
}

// printSummary renders the final run state.
func printSummary(snap models.RunSnapshot) {
	fmt.Println()
	switch snap.Status {
	case models.RunStatusCompleted:
		if snap.Partial {
			color.Yellow("Run completed with partial results")
		} else {
			color.Green("Run completed")
		}
	case models.RunStatusCancelled:
		color.Yellow("Run cancelled")
	default:
		color.Red("Run failed")
	}

	fmt.Printf("Cost: $%.4f  Execution time: %s\n", snap.Cost, snap.Duration.Round(time.Millisecond))
	for team, reason := range snap.FailedTeams {
		color.Red("  team %s: %s", team, reason)
	}
	if snap.Output != "" {
		fmt.Println()
		fmt.Println(snap.Output)
	}
}
