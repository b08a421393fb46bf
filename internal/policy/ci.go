package policy

import (
	"os"
	"path/filepath"
)

// ResolveCIChecks stats each required check path under localPath and
// reports whether it exists and carries the executable bit, for use as
// EvaluationInput.CIChecks. A check that can't be stat'd (missing, or any
// other os error) is reported as simply not existing.
func ResolveCIChecks(localPath string, required []string) map[string]CIStatus {
	if len(required) == 0 {
		return nil
	}
	out := make(map[string]CIStatus, len(required))
	for _, name := range required {
		info, err := os.Stat(filepath.Join(localPath, name))
		if err != nil {
			out[name] = CIStatus{}
			continue
		}
		out[name] = CIStatus{
			Exists:     true,
			Executable: !info.IsDir() && info.Mode()&0o111 != 0,
		}
	}
	return out
}
