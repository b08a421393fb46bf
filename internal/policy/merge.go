package policy

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ComputeEffective deep-merges packJSON < projectOverridesJSON <
// repoLocalBytes (repo-local may be JSON or YAML, sniffed by content) and
// returns the canonical result plus its SHA-256 hash. A nil/empty layer is
// treated as an empty object and contributes nothing to the merge.
func ComputeEffective(packJSON, projectOverridesJSON, repoLocalBytes []byte) (Effective, error) {
	merged, err := mergeLayer(map[string]any{}, packJSON)
	if err != nil {
		return Effective{}, fmt.Errorf("policy: merge pack: %w", err)
	}
	merged, err = mergeLayer(merged, projectOverridesJSON)
	if err != nil {
		return Effective{}, fmt.Errorf("policy: merge project overrides: %w", err)
	}
	repoLocalJSON, err := normalizeToJSON(repoLocalBytes)
	if err != nil {
		return Effective{}, fmt.Errorf("policy: parse repo-local policy: %w", err)
	}
	merged, err = mergeLayer(merged, repoLocalJSON)
	if err != nil {
		return Effective{}, fmt.Errorf("policy: merge repo-local: %w", err)
	}

	canonical, err := json.Marshal(merged)
	if err != nil {
		return Effective{}, fmt.Errorf("policy: encode merged pack: %w", err)
	}

	var pack Pack
	if err := json.Unmarshal(canonical, &pack); err != nil {
		return Effective{}, fmt.Errorf("policy: decode merged pack: %w", err)
	}
	pack.Raw = merged

	sum := sha256.Sum256(canonical)
	return Effective{
		Pack: pack,
		JSON: canonical,
		Hash: fmt.Sprintf("%x", sum),
	}, nil
}

// mergeLayer deep-merges layerJSON onto base, with layerJSON winning on
// scalar conflicts. Maps merge key by key; any other type (including
// slices) replaces the base value wholesale — list concatenation would be
// surprising for a "required_checks" style override that means to shrink a
// list, not grow it.
func mergeLayer(base map[string]any, layerJSON []byte) (map[string]any, error) {
	if len(layerJSON) == 0 {
		return base, nil
	}
	var layer map[string]any
	if err := json.Unmarshal(layerJSON, &layer); err != nil {
		return nil, err
	}
	return deepMerge(base, layer), nil
}

func deepMerge(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		baseVal, ok := out[k]
		if !ok {
			out[k] = v
			continue
		}
		baseMap, baseIsMap := baseVal.(map[string]any)
		overlayMap, overlayIsMap := v.(map[string]any)
		if baseIsMap && overlayIsMap {
			out[k] = deepMerge(baseMap, overlayMap)
			continue
		}
		out[k] = v
	}
	return out
}

// normalizeToJSON converts repo-local policy bytes (JSON or YAML) into JSON.
// An empty input returns nil, meaning "no repo-local layer".
func normalizeToJSON(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var probe any
	if err := json.Unmarshal(raw, &probe); err == nil {
		return raw, nil
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(normalizeYAMLValue(doc))
}

// normalizeYAMLValue converts map[any]any nodes yaml.v3 can produce for
// non-string keys into map[string]any so json.Marshal doesn't reject them.
func normalizeYAMLValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = normalizeYAMLValue(vv)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAMLValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = normalizeYAMLValue(vv)
		}
		return out
	default:
		return val
	}
}
