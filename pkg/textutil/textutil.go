// Package textutil provides byte-level text utilities: binary detection,
// line counting, byte-slice reader adapters, and the tokenize/similarity/
// redaction helpers the capture and refiner packages share.
package textutil

import (
	"bytes"
	"io"
	"regexp"
	"strings"
)

// BinarySniffLength is the maximum number of bytes scanned for null-byte
// detection. Matches the heuristic used by Git and most editors.
const BinarySniffLength = 8000

// IsBinary returns true if data contains a null byte within the first
// BinarySniffLength bytes. Empty data is not binary.
func IsBinary(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	sniff := data
	if len(sniff) > BinarySniffLength {
		sniff = sniff[:BinarySniffLength]
	}

	return bytes.IndexByte(sniff, 0) >= 0
}

// CountLines returns the number of newline-delimited lines in data.
// A non-empty buffer without a trailing newline counts the last partial line.
// Returns 0 for empty data.
func CountLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}

	lines := bytes.Count(data, []byte{'\n'})

	if data[len(data)-1] != '\n' {
		lines++
	}

	return lines
}

// BytesReader wraps a byte slice as an [io.ReadCloser].
// The returned closer is a no-op.
func BytesReader(data []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(data))
}

// Tokenize lowercases and splits s on whitespace into a token set.
func Tokenize(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))

	for _, f := range fields {
		set[f] = struct{}{}
	}

	return set
}

// Jaccard returns the exact Jaccard similarity between the token sets of a
// and b. Both-empty is defined as 1 (identical absence of content).
func Jaccard(a, b string) float64 {
	setA := Tokenize(a)
	setB := Tokenize(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}

	intersection := 0

	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}

// RedactionMarker replaces a span of text that matched a sensitive pattern
// or a user-configured redaction keyword. The original text must never
// reach a log line, a span attribute, or a persisted memory.
const RedactionMarker = "[REDACTED — sensitive command]"

// sensitivePattern matches text a caller must redact in full rather than
// persist verbatim: credential-shaped words and shell exports of them.
var sensitivePattern = regexp.MustCompile(`(?i)` +
	`password|secret|token|api[_-]?key|ssh[_-]?key|private[_-]?key|passphrase|` +
	`export\s+(SECRET|TOKEN|KEY|PASSWORD|PASS)\w*\s*=`)

// IsSensitiveCommand reports whether text matches the fixed sensitive
// credential pattern set.
func IsSensitiveCommand(text string) bool {
	return sensitivePattern.MatchString(text)
}

// RedactKeywords case-insensitively replaces every occurrence of each
// keyword in text with RedactionMarker.
func RedactKeywords(text string, keywords []string) string {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}

		text = replaceCaseInsensitive(text, kw, RedactionMarker)
	}

	return text
}

// replaceCaseInsensitive replaces every case-insensitive occurrence of old
// in s with replacement.
func replaceCaseInsensitive(s, old, replacement string) string {
	if old == "" {
		return s
	}

	pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(old))

	return pattern.ReplaceAllString(s, replacement)
}
