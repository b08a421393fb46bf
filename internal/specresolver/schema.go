package specresolver

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// agentConfigSchemaJSON is the minimal shape ResolveAgentConfigJSON enforces
// before normalizing an external agent-configuration document: a
// top-level "agents" array whose entries each carry the fields
// ResolveAgentConfig requires.
const agentConfigSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["agents"],
	"properties": {
		"agents": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name", "prompt_ref"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"engine_id": {"type": "string"},
					"model": {"type": "string"},
					"prompt_ref": {"type": "string", "minLength": 1},
					"policies": {"type": "array", "items": {"type": "string"}}
				}
			}
		}
	}
}`

// ResolveAgentConfigJSON validates raw against the expected external
// agent-configuration shape, then normalizes it via ResolveAgentConfig.
// Validation failures are returned without touching the store.
func ResolveAgentConfigJSON(raw []byte) (ProtocolSpec, error) {
	var schemaDoc any
	if err := json.Unmarshal([]byte(agentConfigSchemaJSON), &schemaDoc); err != nil {
		return ProtocolSpec{}, fmt.Errorf("specresolver: decode embedded schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ProtocolSpec{}, fmt.Errorf("specresolver: decode agent config: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("agent-config.json", schemaDoc); err != nil {
		return ProtocolSpec{}, fmt.Errorf("specresolver: add schema resource: %w", err)
	}
	schema, err := c.Compile("agent-config.json")
	if err != nil {
		return ProtocolSpec{}, fmt.Errorf("specresolver: compile schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return ProtocolSpec{}, fmt.Errorf("specresolver: agent config does not match expected shape: %w", err)
	}

	var cfg AgentConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return ProtocolSpec{}, fmt.Errorf("specresolver: decode agent config into struct: %w", err)
	}
	return ResolveAgentConfig(cfg)
}
