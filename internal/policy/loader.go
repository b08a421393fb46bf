package policy

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileLoader resolves a policy pack key+version to the JSON bytes of a file
// named "<key>-<version>.json" under Dir.
type FileLoader struct {
	Dir string
}

// LoadPack reads the named pack. A missing key or version falls back to
// "default"/"latest" respectively, matching how a project with no explicit
// pack configured still gets the baseline pack.
func (l FileLoader) LoadPack(key, version string) ([]byte, error) {
	if key == "" {
		key = "default"
	}
	if version == "" {
		version = "latest"
	}
	path := filepath.Join(l.Dir, fmt.Sprintf("%s-%s.json", key, version))
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: load pack %s@%s: %w", key, version, err)
	}
	return b, nil
}
