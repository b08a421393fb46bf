package specresolver

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
)

// ResolveStep resolves one StepSpec against the protocol's worktree,
// producing absolute paths and content fingerprints an engine adapter and
// the lifecycle controller need at execution time.
//
// Auto-QA trigger: when stepSpec.QA.Policy is empty (the spec did not set
// one), autoQAAfterExec decides the default — full when true, skip when
// false.
func ResolveStep(stepSpec StepSpec, protocolRoot, workspaceRoot string, protocolSpec ProtocolSpec, defaultEngineID string, autoQAAfterExec bool) (StepResolution, error) {
	promptPath := filepath.Join(protocolRoot, stepSpec.PromptRef)
	promptBytes, err := os.ReadFile(promptPath)
	if err != nil {
		return StepResolution{}, fmt.Errorf("specresolver: read prompt %s: %w", promptPath, err)
	}

	specJSON, err := marshalCanonical(protocolSpec)
	if err != nil {
		return StepResolution{}, fmt.Errorf("specresolver: encode protocol spec: %w", err)
	}

	engineID := stepSpec.EngineID
	if engineID == "" {
		engineID = defaultEngineID
	}

	qa := stepSpec.QA
	if qa.Policy == "" {
		if autoQAAfterExec {
			qa.Policy = QAFull
		} else {
			qa.Policy = QASkip
		}
	}

	auxPaths := make(map[string]string, len(stepSpec.Outputs.Aux))
	for name, rel := range stepSpec.Outputs.Aux {
		auxPaths[name] = filepath.Join(protocolRoot, rel)
	}
	var protocolOutPath string
	if stepSpec.Outputs.Protocol != "" {
		protocolOutPath = filepath.Join(protocolRoot, stepSpec.Outputs.Protocol)
	}

	return StepResolution{
		StepID:        stepSpec.ID,
		PromptPath:    promptPath,
		ProtocolPath:  protocolOutPath,
		AuxPaths:      auxPaths,
		PromptVersion: fingerprint(promptBytes),
		SpecHash:      fingerprint(specJSON),
		EngineID:      engineID,
		Model:         stepSpec.Model,
		QA:            qa,
		Workdir:       workspaceRoot,
	}, nil
}

// fingerprint is the first 12 hex characters of the SHA-256 digest of b.
func fingerprint(b []byte) string {
	sum := sha256.Sum256(b)
	return fmt.Sprintf("%x", sum)[:12]
}
