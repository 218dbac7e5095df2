package decompose

import (
	"context"
	"fmt"

	"github.com/hiveworks/swarm/pkg/models"
)

// RoleStrategy is the deterministic fallback decomposition: a fixed
// plan/build/review layout derived only from the objective text. It never
// calls a model, so it also backs dry runs.
type RoleStrategy struct{}

// Decompose produces three teams. The build team chains coder into tester;
// the review team fans reviewer and documenter out from independent roots.
func (RoleStrategy) Decompose(_ context.Context, objective models.Objective) ([]*models.Team, error) {
	if objective.Text == "" {
		return nil, fmt.Errorf("objective text is empty")
	}

	p := plan{Teams: []planTeam{
		{
			Name: "plan",
			Tasks: []planTask{
				{ID: "plan-1", Role: string(models.RoleArchitect),
					Prompt: "Design the approach for: " + objective.Text},
			},
		},
		{
			Name: "build",
			Tasks: []planTask{
				{ID: "build-1", Role: string(models.RoleCoder),
					Prompt: "Implement: " + objective.Text},
				{ID: "build-2", Role: string(models.RoleTester),
					Prompt:    "Write tests for the implementation of: " + objective.Text,
					DependsOn: []string{"build-1"}},
				{ID: "build-3", Role: string(models.RoleTaskVerifier),
					Prompt:    "Verify the implementation satisfies: " + objective.Text,
					DependsOn: []string{"build-1", "build-2"}},
			},
		},
		{
			Name: "review",
			Tasks: []planTask{
				{ID: "review-1", Role: string(models.RoleReviewer),
					Prompt: "Review the planned work for: " + objective.Text},
				{ID: "review-2", Role: string(models.RoleDocumenter),
					Prompt: "Document the work for: " + objective.Text},
			},
		},
	}}
	return p.toTeams()
}
