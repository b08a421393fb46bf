package specresolver

import "fmt"

// ResolveAgentConfig builds a ProtocolSpec from an external agent
// configuration: every main agent becomes a work step, its policies are
// whatever modules it references, and QA defaults to skip since the
// external config has no quality-gate concept of its own.
func ResolveAgentConfig(cfg AgentConfig) (ProtocolSpec, error) {
	spec := ProtocolSpec{}
	for i, agent := range cfg.Agents {
		if agent.Name == "" {
			return ProtocolSpec{}, fmt.Errorf("specresolver: agent at index %d has no name", i)
		}
		if agent.PromptRef == "" {
			return ProtocolSpec{}, fmt.Errorf("specresolver: agent %q has no prompt_ref", agent.Name)
		}
		spec.Steps = append(spec.Steps, StepSpec{
			ID:        agent.Name,
			Name:      agent.Name,
			EngineID:  agent.EngineID,
			Model:     agent.Model,
			PromptRef: agent.PromptRef,
			StepType:  "work",
			Policies:  agent.Policies,
			QA:        QA{Policy: QASkip},
			Order:     i,
		})
	}
	return spec, nil
}
