package specresolver

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var stepFileRe = regexp.MustCompile(`^(\d+)-(.+)\.md$`)

// ResolveDirectory builds a ProtocolSpec from a directory of `NN-*.md`
// step files. step_type is inferred from the filename: `00-*` or a name
// containing "setup" is a setup step, a name containing "qa" is a qa
// step, everything else is a work step.
func ResolveDirectory(dir, defaultEngineID string) (ProtocolSpec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ProtocolSpec{}, fmt.Errorf("specresolver: read directory %s: %w", dir, err)
	}

	type match struct {
		index int
		name  string
		file  string
	}
	var matches []match
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := stepFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		matches = append(matches, match{index: idx, name: m[2], file: e.Name()})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].index < matches[j].index })

	spec := ProtocolSpec{}
	for _, m := range matches {
		spec.Steps = append(spec.Steps, StepSpec{
			ID:        fmt.Sprintf("%02d-%s", m.index, m.name),
			Name:      m.name,
			EngineID:  defaultEngineID,
			PromptRef: m.file,
			StepType:  inferStepType(m.index, m.name),
			QA:        QA{Policy: QASkip},
			Order:     m.index,
			Outputs:   Outputs{Protocol: filepath.Join("outputs", m.name+".md")},
		})
	}
	return spec, nil
}

func inferStepType(index int, name string) string {
	lower := strings.ToLower(name)
	if index == 0 || strings.Contains(lower, "setup") {
		return "setup"
	}
	if strings.Contains(lower, "qa") {
		return "qa"
	}
	return "work"
}
