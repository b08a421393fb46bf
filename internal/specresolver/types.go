// Package specresolver normalizes the two shapes a protocol's steps can
// arrive in — a directory of step markdown files, or an external
// agent-configuration object — into a single ProtocolSpec, and resolves
// one StepSpec at execution time into absolute paths and a content
// fingerprint.
package specresolver

import "encoding/json"

// QAPolicy controls whether a step's output is reviewed before it counts
// as complete.
type QAPolicy string

const (
	QASkip QAPolicy = "skip"
	QAFull QAPolicy = "full"
)

// Outputs names the files a step is expected to produce.
type Outputs struct {
	Protocol string            `json:"protocol,omitempty"`
	Aux      map[string]string `json:"aux,omitempty"`
}

// QA is the per-step quality-assurance configuration.
type QA struct {
	Policy QAPolicy `json:"policy"`
	Prompt string   `json:"prompt,omitempty"`
	Model  string   `json:"model,omitempty"`
}

// StepSpec describes one step before it has been materialized into a
// store.StepRun.
type StepSpec struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	EngineID    string   `json:"engine_id"`
	Model       string   `json:"model,omitempty"`
	PromptRef   string   `json:"prompt_ref"`
	Outputs     Outputs  `json:"outputs,omitempty"`
	StepType    string   `json:"step_type"`
	Policies    []string `json:"policies,omitempty"`
	QA          QA       `json:"qa"`
	Order       int      `json:"order"`
	Description string   `json:"description,omitempty"`
}

// ProtocolSpec is the normalized set of steps for one protocol run,
// independent of which input shape produced it.
type ProtocolSpec struct {
	Steps        []StepSpec        `json:"steps"`
	Placeholders map[string]string `json:"placeholders,omitempty"`
	Template     string            `json:"template,omitempty"`
}

// AgentConfig is the external agent-configuration shape §4.E normalizes:
// one entry per main agent, each naming the policy modules it references.
type AgentConfig struct {
	Agents []AgentConfigEntry `json:"agents"`
}

// AgentConfigEntry describes one agent in an AgentConfig.
type AgentConfigEntry struct {
	Name      string   `json:"name"`
	EngineID  string   `json:"engine_id"`
	Model     string   `json:"model,omitempty"`
	PromptRef string   `json:"prompt_ref"`
	Policies  []string `json:"policies,omitempty"`
}

// StepResolution is everything needed to execute one step: absolute
// paths, the engine/model to use, and a content fingerprint for
// detecting prompt drift between plan time and execute time.
type StepResolution struct {
	StepID        string
	PromptPath    string
	ProtocolPath  string
	AuxPaths      map[string]string
	PromptVersion string // 12 hex chars, SHA-256 of prompt file bytes
	SpecHash      string // 12 hex chars, SHA-256 of the canonical ProtocolSpec JSON
	EngineID      string
	Model         string
	QA            QA
	Workdir       string
}

// marshalCanonical produces deterministic JSON for hashing — encoding/json
// already sorts map keys, so this only needs to exist as a named seam for
// future canonicalization changes.
func marshalCanonical(v any) ([]byte, error) {
	return json.Marshal(v)
}
