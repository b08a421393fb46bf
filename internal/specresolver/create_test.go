package specresolver

import (
	"testing"

	"github.com/antigravity-dev/protoctl/internal/store"
)

type fakeStepStore struct {
	steps  []*store.StepRun
	nextID int64
}

func (f *fakeStepStore) ListStepRuns(protocolRunID int64) ([]*store.StepRun, error) {
	var out []*store.StepRun
	for _, s := range f.steps {
		if s.ProtocolRunID == protocolRunID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStepStore) CreateStepRun(in store.CreateStepRunInput) (*store.StepRun, error) {
	f.nextID++
	sr := &store.StepRun{
		ID:            f.nextID,
		ProtocolRunID: in.ProtocolRunID,
		StepIndex:     in.StepIndex,
		StepName:      in.StepName,
		StepType:      in.StepType,
		Status:        store.StepPending,
		Model:         in.Model,
		EngineID:      in.EngineID,
	}
	f.steps = append(f.steps, sr)
	return sr, nil
}

func TestCreateStepsFromSpecCreatesEachStep(t *testing.T) {
	fs := &fakeStepStore{}
	spec := ProtocolSpec{Steps: []StepSpec{
		{Name: "setup", StepType: "setup", Order: 0},
		{Name: "implement", StepType: "work", Order: 1},
	}}
	created, err := CreateStepsFromSpec(1, spec, fs)
	if err != nil {
		t.Fatalf("CreateStepsFromSpec: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 created steps, got %+v", created)
	}
}

func TestCreateStepsFromSpecSkipsExistingNames(t *testing.T) {
	fs := &fakeStepStore{steps: []*store.StepRun{
		{ID: 99, ProtocolRunID: 1, StepName: "setup"},
	}}
	spec := ProtocolSpec{Steps: []StepSpec{
		{Name: "setup", StepType: "setup", Order: 0},
		{Name: "implement", StepType: "work", Order: 1},
	}}
	created, err := CreateStepsFromSpec(1, spec, fs)
	if err != nil {
		t.Fatalf("CreateStepsFromSpec: %v", err)
	}
	if len(created) != 1 || created[0].StepName != "implement" {
		t.Fatalf("expected only the new step created, got %+v", created)
	}
}
