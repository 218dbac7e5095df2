// Package decompose turns an objective into teams of role-tagged tasks.
package decompose

import (
	"context"
	"fmt"
	"time"

	"github.com/hiveworks/swarm/pkg/models"
)

// Strategy produces the team plan for an objective. Implementations must
// return teams whose task prerequisites stay within the owning team.
type Strategy interface {
	Decompose(ctx context.Context, objective models.Objective) ([]*models.Team, error)
}

// plan is the serialized team layout shared by the file and model
// strategies.
type plan struct {
	Teams []planTeam `json:"teams" yaml:"teams"`
}

type planTeam struct {
	Name      string        `json:"name" yaml:"name"`
	CostLimit float64       `json:"cost_limit,omitempty" yaml:"cost_limit,omitempty"`
	TimeLimit time.Duration `json:"time_limit,omitempty" yaml:"time_limit,omitempty"`
	Tasks     []planTask    `json:"tasks" yaml:"tasks"`
}

type planTask struct {
	ID        string   `json:"id" yaml:"id"`
	Role      string   `json:"role" yaml:"role"`
	Prompt    string   `json:"prompt" yaml:"prompt"`
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// toTeams converts and validates a plan. Structural graph checks (cycles,
// dangling references) belong to the dependency graph; this validates shape
// and vocabulary.
func (p plan) toTeams() ([]*models.Team, error) {
	if len(p.Teams) == 0 {
		return nil, fmt.Errorf("plan has no teams")
	}
	seenTeams := make(map[string]bool, len(p.Teams))
	teams := make([]*models.Team, 0, len(p.Teams))

	for _, pt := range p.Teams {
		if pt.Name == "" {
			return nil, fmt.Errorf("plan team with empty name")
		}
		if seenTeams[pt.Name] {
			return nil, fmt.Errorf("duplicate team name %q", pt.Name)
		}
		seenTeams[pt.Name] = true
		if len(pt.Tasks) == 0 {
			return nil, fmt.Errorf("team %q has no tasks", pt.Name)
		}

		team := &models.Team{
			Name:      pt.Name,
			Status:    models.TeamStatusPending,
			CostLimit: pt.CostLimit,
			TimeLimit: pt.TimeLimit,
		}
		seenTasks := make(map[string]bool, len(pt.Tasks))
		for _, t := range pt.Tasks {
			if t.ID == "" {
				return nil, fmt.Errorf("team %q: task with empty id", pt.Name)
			}
			if seenTasks[t.ID] {
				return nil, fmt.Errorf("team %q: duplicate task id %q", pt.Name, t.ID)
			}
			seenTasks[t.ID] = true
			role := models.Role(t.Role)
			if !role.Valid() {
				return nil, fmt.Errorf("team %q: task %q has unknown role %q", pt.Name, t.ID, t.Role)
			}
			if t.Prompt == "" {
				return nil, fmt.Errorf("team %q: task %q has empty prompt", pt.Name, t.ID)
			}
			team.Tasks = append(team.Tasks, &models.Task{
				ID:        t.ID,
				Role:      role,
				Prompt:    t.Prompt,
				DependsOn: append([]string(nil), t.DependsOn...),
				Status:    models.TaskStatusPending,
			})
		}
		teams = append(teams, team)
	}
	return teams, nil
}
