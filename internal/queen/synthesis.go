package queen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hiveworks/swarm/pkg/models"
)

// Synthesis is the reduced outcome of a run's team results.
type Synthesis struct {
	// Status is the run's terminal status.
	Status models.RunStatus
	// Output is the assembled final result, present unless every team failed.
	Output string
	// Partial is true when output was produced despite failed teams.
	Partial bool
	// FailedTeams maps failed team names to their dominant failure reason.
	FailedTeams map[string]models.FailureReason
}

// Synthesize reduces terminal team results into the run outcome. A
// cancelled run is always reported cancelled; outputs from teams that
// finished before the cancel are still assembled as a partial result.
// Otherwise one completed team is enough to complete the run, marked
// partial if any sibling failed.
func Synthesize(results []models.TeamResult, cancelled bool) Synthesis {
	syn := Synthesis{}
	var completed []models.TeamResult

	for _, res := range results {
		if res.Succeeded() {
			completed = append(completed, res)
			continue
		}
		if syn.FailedTeams == nil {
			syn.FailedTeams = make(map[string]models.FailureReason)
		}
		syn.FailedTeams[res.Team] = teamFailureReason(res)
	}

	switch {
	case cancelled:
		syn.Status = models.RunStatusCancelled
		if len(completed) > 0 {
			syn.Partial = true
			syn.Output = assembleOutput(completed, syn.FailedTeams)
		}
	case len(completed) > 0:
		syn.Status = models.RunStatusCompleted
		syn.Partial = len(syn.FailedTeams) > 0
		syn.Output = assembleOutput(completed, syn.FailedTeams)
	default:
		syn.Status = models.RunStatusFailed
	}
	return syn
}

// reasonPrecedence orders failure reasons from most to least informative
// when a team failed for several reasons at once.
var reasonPrecedence = []models.FailureReason{
	models.ReasonBudgetExceeded,
	models.ReasonTimeout,
	models.ReasonExecutionError,
	models.ReasonCancelled,
	models.ReasonDependencyFailed,
}

// teamFailureReason picks the dominant failure reason from a team result.
func teamFailureReason(res models.TeamResult) models.FailureReason {
	if res.Status == models.TeamStatusCancelled {
		return models.ReasonCancelled
	}
	present := make(map[models.FailureReason]bool, len(res.FailedTasks))
	for _, reason := range res.FailedTasks {
		present[reason] = true
	}
	for _, reason := range reasonPrecedence {
		if present[reason] {
			return reason
		}
	}
	return models.ReasonExecutionError
}

// assembleOutput concatenates completed team outputs in a stable order:
// teams alphabetically, roles alphabetically within each team. Failed teams
// are listed at the end so partial results are never mistaken for complete
// ones.
func assembleOutput(completed []models.TeamResult, failed map[string]models.FailureReason) string {
	sort.Slice(completed, func(i, j int) bool { return completed[i].Team < completed[j].Team })

	var b strings.Builder
	for _, res := range completed {
		fmt.Fprintf(&b, "## Team %s\n", res.Team)
		roles := make([]string, 0, len(res.Outputs))
		for role := range res.Outputs {
			roles = append(roles, string(role))
		}
		sort.Strings(roles)
		for _, role := range roles {
			fmt.Fprintf(&b, "\n### %s\n%s\n", role, res.Outputs[models.Role(role)])
		}
		b.WriteString("\n")
	}

	if len(failed) > 0 {
		b.WriteString("## Incomplete\n")
		names := make([]string, 0, len(failed))
		for name := range failed {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "- team %s: %s\n", name, failed[name])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
