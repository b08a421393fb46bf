package specresolver

import (
	"fmt"
	"os"
	"path/filepath"
)

// ValidateProtocolSpec checks that every step's prompt_ref resolves to a
// readable file relative to base. A nil/empty return means valid.
func ValidateProtocolSpec(base string, spec ProtocolSpec) []error {
	var errs []error
	seen := make(map[string]bool, len(spec.Steps))
	for _, step := range spec.Steps {
		if step.Name == "" {
			errs = append(errs, fmt.Errorf("step %q: name is required", step.ID))
		}
		if seen[step.Name] {
			errs = append(errs, fmt.Errorf("step %q: duplicate step name %q", step.ID, step.Name))
		}
		seen[step.Name] = true

		path := filepath.Join(base, step.PromptRef)
		info, err := os.Stat(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("step %q: prompt_ref %q does not resolve under %q: %w", step.ID, step.PromptRef, base, err))
			continue
		}
		if info.IsDir() {
			errs = append(errs, fmt.Errorf("step %q: prompt_ref %q resolves to a directory, not a file", step.ID, step.PromptRef))
		}
	}
	return errs
}
