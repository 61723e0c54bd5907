package capture

import "strings"

// ApplyExclusionSubstrings drops cmd entirely (returns "", false) if it
// contains any of the user-configured exclusion substrings.
func ApplyExclusionSubstrings(cmd string, excludes []string) (string, bool) {
	for _, ex := range excludes {
		if ex == "" {
			continue
		}

		if strings.Contains(cmd, ex) {
			return "", false
		}
	}

	return cmd, true
}
