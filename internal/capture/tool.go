package capture

import (
	"os"
	"os/exec"
)

// ResolveTool finds an executable by name using the adapters' shared
// discovery order: `which <name>` first, then each of wellKnownPaths in
// order, falling back to name itself (so exec.LookPath/exec.Command can
// still succeed via $PATH, or fail with a clear "not found" error).
func ResolveTool(name string, wellKnownPaths ...string) string {
	if path, err := exec.LookPath(name); err == nil {
		return path
	}

	for _, path := range wellKnownPaths {
		if isExecutable(path) {
			return path
		}
	}

	return name
}

// isExecutable reports whether path exists and is executable by someone.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return !info.IsDir() && info.Mode()&0o111 != 0
}
