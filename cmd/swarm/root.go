package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "swarm",
	Short: "Multi-agent swarm orchestrator",
	Long: `Swarm decomposes an objective into teams of role-tagged tasks and
executes them in parallel under cost and time budgets.

Each team is a dependency graph of tasks (architect, coder, reviewer, ...)
driven to completion by its own scheduler. A queen coordinator admits teams
under a global parallelism gate, enforces run and per-team budgets, and
synthesizes the final output from whatever the teams produced.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
