package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hiveworks/swarm/internal/capability"
	"github.com/hiveworks/swarm/pkg/models"
)

// planPrompt instructs the model to emit a machine-readable team plan.
const planPrompt = `Decompose the objective below into teams of tasks.

Rules:
- Output ONLY a JSON object, no prose, no markdown fences.
- Schema: {"teams":[{"name":"...","tasks":[{"id":"...","role":"...","prompt":"...","depends_on":["..."]}]}]}
- Valid roles: %s
- Task ids must be unique within a team.
- depends_on may only reference task ids in the same team.
- Keep teams independent: no cross-team references.
- Use 1-4 teams with 1-5 tasks each.

Objective: %s`

// ModelStrategy asks a model to produce the team plan, then validates the
// result with the same rules as a hand-written plan file.
type ModelStrategy struct {
	// Invoker executes the planning request.
	Invoker capability.Invoker
}

// Decompose requests a JSON plan and converts it into teams. A syntactically
// valid response with an invalid plan is an error, not a silent fallback.
func (m ModelStrategy) Decompose(ctx context.Context, objective models.Objective) ([]*models.Team, error) {
	if m.Invoker == nil {
		return nil, fmt.Errorf("model strategy has no invoker")
	}
	if objective.Text == "" {
		return nil, fmt.Errorf("objective text is empty")
	}

	roles := make([]string, 0, len(models.AllRoles()))
	for _, r := range models.AllRoles() {
		roles = append(roles, string(r))
	}

	text := objective.Text
	if objective.SpecRef != "" {
		text += "\nSpecification: " + objective.SpecRef
	}

	res, err := m.Invoker.Invoke(ctx, capability.Request{
		Role:   models.RoleArchitect,
		TaskID: "decompose",
		Prompt: fmt.Sprintf(planPrompt, strings.Join(roles, ", "), text),
	})
	if err != nil {
		return nil, fmt.Errorf("decompose objective: %w", err)
	}

	var p plan
	if err := json.Unmarshal([]byte(extractJSON(res.Payload)), &p); err != nil {
		return nil, fmt.Errorf("parse plan response: %w", err)
	}
	teams, err := p.toTeams()
	if err != nil {
		return nil, fmt.Errorf("invalid plan from model: %w", err)
	}
	return teams, nil
}

// extractJSON strips surrounding prose or markdown fences the model may add
// despite instructions, returning the outermost JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
