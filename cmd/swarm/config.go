package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hiveworks/swarm/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show effective configuration",
	Long: `Display the effective configuration after merging defaults, the user
config, the project config, and environment variables.`,
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Printf("User config:    %s\n", config.GetUserConfigPath())
	if project := config.GetProjectConfigPath(); project != "" {
		fmt.Printf("Project config: %s\n", project)
	}
	fmt.Println()

	apiKey := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKey = "(set)"
	}
	fmt.Printf("anthropic.api_key:                      %s\n", apiKey)
	fmt.Printf("anthropic.model:                        %s\n", orDefault(cfg.Anthropic.Model))
	fmt.Printf("anthropic.max_tokens:                   %d\n", cfg.Anthropic.MaxTokens)
	fmt.Printf("anthropic.use_bedrock:                  %v\n", cfg.Anthropic.UseBedrock)
	fmt.Printf("budget.total_cost_limit:                $%.2f\n", cfg.Budget.TotalCostLimit)
	fmt.Printf("budget.total_time_limit:                %s\n", cfg.Budget.TotalTimeLimit)
	fmt.Printf("budget.per_team_cost_limit:             $%.2f\n", cfg.Budget.PerTeamCostLimit)
	fmt.Printf("budget.per_team_time_limit:             %s\n", cfg.Budget.PerTeamTimeLimit)
	fmt.Printf("scheduler.max_parallel_teams:           %d\n", cfg.Scheduler.MaxParallelTeams)
	fmt.Printf("scheduler.intra_team_concurrency_limit: %s\n", limitLabel(cfg.Scheduler.IntraTeamConcurrencyLimit))
	fmt.Printf("scheduler.task_timeout:                 %s\n", cfg.Scheduler.TaskTimeout.Round(time.Second))
	fmt.Printf("retry.max_attempts:                     %d\n", cfg.Retry.MaxAttempts)
	fmt.Printf("history.enabled:                        %v\n", cfg.History.Enabled)
	return nil
}

func orDefault(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}

func limitLabel(n int) string {
	if n <= 0 {
		return "unbounded"
	}
	return fmt.Sprintf("%d", n)
}
