package lifecycle

import (
	"encoding/json"
	"fmt"

	"github.com/antigravity-dev/protoctl/internal/specresolver"
)

// templateConfigDoc is the shape persisted in ProtocolRun.TemplateConfig:
// the resolved ProtocolSpec under "protocol_spec", per spec.md §6's
// "store it under template_config.protocol_spec".
type templateConfigDoc struct {
	ProtocolSpec specresolver.ProtocolSpec `json:"protocol_spec"`
}

func encodeTemplateConfig(spec specresolver.ProtocolSpec) (json.RawMessage, error) {
	b, err := json.Marshal(templateConfigDoc{ProtocolSpec: spec})
	if err != nil {
		return nil, fmt.Errorf("lifecycle: encode template config: %w", err)
	}
	return b, nil
}

func decodeTemplateConfig(raw json.RawMessage) (specresolver.ProtocolSpec, error) {
	var doc templateConfigDoc
	if len(raw) == 0 {
		return doc.ProtocolSpec, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return specresolver.ProtocolSpec{}, fmt.Errorf("lifecycle: decode template config: %w", err)
	}
	return doc.ProtocolSpec, nil
}

// findStepSpec looks up the StepSpec matching a persisted StepRun's name.
func findStepSpec(spec specresolver.ProtocolSpec, stepName string) (specresolver.StepSpec, error) {
	for _, s := range spec.Steps {
		if s.Name == stepName {
			return s, nil
		}
	}
	return specresolver.StepSpec{}, fmt.Errorf("lifecycle: no step spec found for step %q", stepName)
}
