package capture

import "strings"

// MatchesExclusion reports whether path is excluded by pattern, using the
// files-adapter semantics: `*.ext` matches a filename suffix, `prefix*`
// matches a path substring prefix, a pattern containing `/` matches any path
// substring, and a bare name matches a whole path segment rather than an
// arbitrary substring.
func MatchesExclusion(path, pattern string) bool {
	switch {
	case strings.HasPrefix(pattern, "*") && len(pattern) > 1 && !strings.Contains(pattern[1:], "*"):
		// Covers both `*.ext` (filename-suffix) and bare trailing-glyph
		// suffixes like `*~` (editor backup files).
		return strings.HasSuffix(path, pattern[1:])
	case strings.HasSuffix(pattern, "*") && !strings.Contains(pattern[:len(pattern)-1], "*"):
		return strings.Contains(path, pattern[:len(pattern)-1])
	case strings.Contains(pattern, "/"):
		return strings.Contains(path, pattern)
	default:
		return hasPathSegment(path, pattern)
	}
}

// hasPathSegment reports whether name appears as a whole `/`-delimited
// segment of path, e.g. "node_modules" matches ".../node_modules/x.js" but
// not ".../node_modules_backup/x.js".
func hasPathSegment(path, name string) bool {
	for _, segment := range strings.Split(path, "/") {
		if segment == name {
			return true
		}
	}

	return false
}

// alwaysExcludedPatterns are applied to every files-adapter event regardless
// of user configuration.
var alwaysExcludedPatterns = []string{
	"node_modules",
	".git/objects",
	".git/refs",
	".git/logs",
	"dist",
	"*.lock",
	"__pycache__",
	".DS_Store",
	"*.swp",
	"*.swo",
	"*~",
}

// IsAlwaysExcluded reports whether path matches one of the built-in
// exclusions the files adapter applies before consulting user configuration.
func IsAlwaysExcluded(path string) bool {
	return matchesAny(path, alwaysExcludedPatterns)
}

// matchesAny reports whether path matches any of patterns under
// MatchesExclusion semantics.
func matchesAny(path string, patterns []string) bool {
	for _, p := range patterns {
		if MatchesExclusion(path, p) {
			return true
		}
	}

	return false
}
