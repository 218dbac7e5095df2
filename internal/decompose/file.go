package decompose

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hiveworks/swarm/pkg/models"
)

// FileStrategy loads a hand-written team plan from a YAML file. The file
// layout mirrors the serialized plan:
//
//	teams:
//	  - name: build
//	    tasks:
//	      - id: build-1
//	        role: coder
//	        prompt: Implement the parser.
//	      - id: build-2
//	        role: tester
//	        prompt: Test the parser.
//	        depends_on: [build-1]
type FileStrategy struct {
	// Path is the plan file location.
	Path string
}

// Decompose reads and validates the plan file. The objective is not
// consulted; the file is the plan.
func (f FileStrategy) Decompose(_ context.Context, _ models.Objective) ([]*models.Team, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	var p plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan file %s: %w", f.Path, err)
	}
	teams, err := p.toTeams()
	if err != nil {
		return nil, fmt.Errorf("invalid plan file %s: %w", f.Path, err)
	}
	return teams, nil
}
