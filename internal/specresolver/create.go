package specresolver

import (
	"encoding/json"
	"fmt"

	"github.com/antigravity-dev/protoctl/internal/store"
)

// stepStore is the narrow slice of *store.Store CreateStepsFromSpec needs,
// named so tests can substitute a fake without standing up sqlite.
type stepStore interface {
	ListStepRuns(protocolRunID int64) ([]*store.StepRun, error)
	CreateStepRun(in store.CreateStepRunInput) (*store.StepRun, error)
}

// CreateStepsFromSpec writes one StepRun per spec entry under
// protocolRunID. A step whose name already exists on the run is skipped,
// so re-planning a protocol is idempotent.
func CreateStepsFromSpec(protocolRunID int64, spec ProtocolSpec, s stepStore) ([]*store.StepRun, error) {
	existing, err := s.ListStepRuns(protocolRunID)
	if err != nil {
		return nil, fmt.Errorf("specresolver: list existing steps: %w", err)
	}
	already := make(map[string]bool, len(existing))
	for _, sr := range existing {
		already[sr.StepName] = true
	}

	var created []*store.StepRun
	for _, step := range spec.Steps {
		if already[step.Name] {
			continue
		}
		policy, err := json.Marshal(step.Policies)
		if err != nil {
			return nil, fmt.Errorf("specresolver: marshal policies for step %q: %w", step.Name, err)
		}
		sr, err := s.CreateStepRun(store.CreateStepRunInput{
			ProtocolRunID: protocolRunID,
			StepIndex:     step.Order,
			StepName:      step.Name,
			StepType:      step.StepType,
			Model:         step.Model,
			EngineID:      step.EngineID,
			Policy:        policy,
		})
		if err != nil {
			return nil, fmt.Errorf("specresolver: create step %q: %w", step.Name, err)
		}
		created = append(created, sr)
		already[step.Name] = true
	}
	return created, nil
}
