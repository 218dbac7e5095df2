package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hiveworks/swarm/internal/config"
	"github.com/hiveworks/swarm/internal/history"
	"github.com/hiveworks/swarm/pkg/models"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show recent runs",
	Long: `Display recent runs from the history database.

With a run ID, shows that run's detail: status, spend, execution time, and
the synthesized output if any.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "Number of runs to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	path := cfg.History.Path
	if path == "" {
		path = history.GlobalDBPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("No run history. Start one with 'swarm run <objective>'.")
		return nil
	}

	db, err := history.Open(path)
	if err != nil {
		return fmt.Errorf("open history database: %w", err)
	}
	defer db.Close()

	if len(args) == 1 {
		return showRun(db, args[0])
	}
	return listRuns(db)
}

func listRuns(db *history.DB) error {
	records, err := db.ListRuns(statusLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No run history. Start one with 'swarm run <objective>'.")
		return nil
	}

	fmt.Printf("%-36s  %-10s  %-9s  %-10s  %s\n", "RUN", "STATUS", "COST", "TIME", "OBJECTIVE")
	for _, rec := range records {
		objective := rec.Objective
		if len(objective) > 48 {
			objective = objective[:45] + "..."
		}
		fmt.Printf("%-36s  %-10s  $%-8.4f  %-10s  %s\n",
			rec.ID, statusLabel(rec.Status, rec.Partial), rec.Cost,
			rec.Duration.Round(time.Millisecond), objective)
	}
	return nil
}

func showRun(db *history.DB, runID string) error {
	rec, err := db.GetRun(runID)
	if err != nil {
		return err
	}

	fmt.Printf("Run:       %s\n", rec.ID)
	fmt.Printf("Objective: %s\n", rec.Objective)
	fmt.Printf("Status:    %s\n", statusLabel(rec.Status, rec.Partial))
	fmt.Printf("Cost:      $%.4f\n", rec.Cost)
	fmt.Printf("Time:      %s\n", rec.Duration.Round(time.Millisecond))
	fmt.Printf("Started:   %s\n", rec.StartedAt.Format(time.RFC3339))

	trail, err := db.GetTrail(runID)
	if err != nil {
		return err
	}
	if len(trail) > 0 {
		last := trail[len(trail)-1]
		fmt.Println("\nTeams:")
		for _, team := range last.Teams {
			done := 0
			for _, task := range team.Tasks {
				if task.Status == models.TaskStatusDone {
					done++
				}
			}
			fmt.Printf("  %-16s %-10s %d/%d tasks  $%.4f\n",
				team.Name, team.Status, done, len(team.Tasks), team.Cost)
		}
	}

	if rec.Output != "" {
		fmt.Println("\nOutput:")
		fmt.Println(rec.Output)
	}
	return nil
}

func statusLabel(status models.RunStatus, partial bool) string {
	switch status {
	case models.RunStatusCompleted:
		if partial {
			return color.YellowString("partial")
		}
		return color.GreenString(string(status))
	case models.RunStatusFailed:
		return color.RedString(string(status))
	case models.RunStatusCancelled:
		return color.YellowString(string(status))
	default:
		return string(status)
	}
}
