package refiner

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// maxPromptLen is the default truncation length for sanitized prompt text.
const maxPromptLen = 4000

// filterMarker replaces instruction-override attempts found in
// user-derived text before it reaches a prompt.
const filterMarker = "[filtered]"

var (
	ignoreInstructionsPattern = regexp.MustCompile(`(?i)ignore (all )?previous instructions`)
	disregardPattern          = regexp.MustCompile(`(?i)disregard (all )?prior (instructions|context)`)
	systemColonPattern        = regexp.MustCompile(`(?i)system\s*:`)
	trailingCommaPattern      = regexp.MustCompile(`,(\s*[}\]])`)
)

// SanitizePrompt neutralizes prompt-injection attempts in user-derived
// text, anonymizes the caller's home directory, and truncates to
// maxLen (0 uses the default). Callers wrap the result in WrapUserData
// before splicing it into a prompt.
func SanitizePrompt(text string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = maxPromptLen
	}

	out := ignoreInstructionsPattern.ReplaceAllString(text, filterMarker)
	out = disregardPattern.ReplaceAllString(out, filterMarker)
	out = systemColonPattern.ReplaceAllStringFunc(out, func(m string) string {
		return strings.Replace(m, ":", " :", 1)
	})
	out = anonymizeHome(out)

	if len(out) > maxLen {
		out = out[:maxLen]
	}

	return out
}

// anonymizeHome replaces the caller's home directory prefix with "~" in
// every path-like occurrence within text.
func anonymizeHome(text string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return text
	}

	return strings.ReplaceAll(text, home, "~")
}

// WrapUserData wraps sanitized text in the delimiters every user-data
// block in a refiner prompt must carry.
func WrapUserData(text string) string {
	return "<user_data>\n" + text + "\n</user_data>"
}

// Level classifies an ordered value against descending thresholds,
// returning the label of the highest threshold the value meets or a
// default label if none match.
type Level[T cmp.Ordered] struct {
	Limit T
	Label string
}

// Classify returns the label of the first level (in descending Limit
// order) that value meets, or defaultLabel if none do.
func Classify[T cmp.Ordered](value T, levels []Level[T], defaultLabel string) string {
	sorted := make([]Level[T], len(levels))
	copy(sorted, levels)

	slices.SortFunc(sorted, func(a, b Level[T]) int {
		return cmp.Compare(b.Limit, a.Limit)
	})

	for _, lvl := range sorted {
		if value >= lvl.Limit {
			return lvl.Label
		}
	}

	return defaultLabel
}

// ExtractJSON cleans an LLM response into a parseable JSON value: it
// strips fenced code blocks, locates the outermost array or object, and
// on a first parse failure retries once after stripping trailing
// commas. If both attempts fail, it returns "[]" or "{}" (whichever
// bracket kind was located, defaulting to an array) rather than an
// error — an LLM response is untrusted input, not a programming error.
func ExtractJSON(raw string) []byte {
	cleaned := stripFencedCodeBlock(raw)

	span, isObject, ok := locateJSONSpan(cleaned)
	if !ok {
		openObj := strings.IndexByte(cleaned, '{')
		openArr := strings.IndexByte(cleaned, '[')

		if openObj != -1 && (openArr == -1 || openObj < openArr) {
			return []byte("{}")
		}

		return []byte("[]")
	}

	var v any
	if err := json.Unmarshal([]byte(span), &v); err == nil {
		return []byte(span)
	}

	retried := trailingCommaPattern.ReplaceAllString(span, "$1")
	if err := json.Unmarshal([]byte(retried), &v); err == nil {
		return []byte(retried)
	}

	if isObject {
		return []byte("{}")
	}

	return []byte("[]")
}

// stripFencedCodeBlock removes a surrounding ```json / ``` fence, if present.
func stripFencedCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	return strings.TrimSpace(s)
}

// locateJSONSpan finds the outermost [...] or {...} in s, returning the
// substring, whether it was an object, and whether one was found at all.
// Whichever bracket type opens first wins.
func locateJSONSpan(s string) (span string, isObject bool, ok bool) {
	openArr := strings.IndexByte(s, '[')
	openObj := strings.IndexByte(s, '{')

	switch {
	case openArr == -1 && openObj == -1:
		return "", false, false
	case openObj == -1 || (openArr != -1 && openArr < openObj):
		if end := strings.LastIndexByte(s, ']'); end > openArr {
			return s[openArr : end+1], false, true
		}

		return "", false, false
	default:
		if end := strings.LastIndexByte(s, '}'); end > openObj {
			return s[openObj : end+1], true, true
		}

		return "", false, false
	}
}

// ErrSchemaValidationUnavailable is returned by ValidateJSON when schemaJSON
// is empty.
var ErrSchemaValidationUnavailable = errors.New("refiner: no schema provided")

// ValidateJSON validates data against the JSON schema in schemaJSON,
// returning a single error joining every violation's field and
// description, or nil if data conforms. Used to reject a malformed LLM
// response before it's parsed into ExtractedMemory values.
func ValidateJSON(schemaJSON, data []byte) error {
	if len(schemaJSON) == 0 {
		return ErrSchemaValidationUnavailable
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("refiner: schema validation failed to run: %w", err)
	}

	if result.Valid() {
		return nil
	}

	var msgs []string
	for _, verr := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", verr.Field(), verr.Description()))
	}

	return fmt.Errorf("refiner: response failed schema validation: %s", strings.Join(msgs, "; "))
}

const (
	ollamaGenerateTimeout = 120 * time.Second
	ollamaHealthTimeout   = 5 * time.Second
	errorBodyPreviewLen   = 200
)

// ErrLLMUnavailable is returned by Generate when the health check most
// recently failed; callers should treat this as "produce nothing" per
// the refiner contract, not as a fatal error.
var ErrLLMUnavailable = errors.New("refiner: llm endpoint unavailable")

// generateRequest is the Ollama /api/generate request body.
type generateRequest struct {
	Model   string                 `json:"model"`
	System  string                 `json:"system"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// LLMClient is a small Ollama client shared by every refiner: one
// health-checked, timeout-bounded way to call /api/generate. Refiners
// hold a *LLMClient, they don't embed one — this is composition, not
// inheritance.
type LLMClient struct {
	BaseURL string
	Model   string

	httpClient *http.Client

	mu        sync.Mutex
	available bool
	failures  int
}

// NewLLMClient creates a client pointed at baseURL (e.g.
// "http://localhost:11434") using model for every generate call.
func NewLLMClient(baseURL, model string) *LLMClient {
	return &LLMClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Model:      model,
		httpClient: &http.Client{},
		available:  true,
	}
}

// CheckHealth GETs /api/tags with a short timeout and caches the
// result. It never returns an error to the caller: an unreachable
// endpoint is reported as unavailable, not as a failure to check.
func (c *LLMClient) CheckHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, ollamaHealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/tags", nil)
	if err != nil {
		c.recordFailure()

		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure()

		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.recordFailure()

		return false
	}

	c.recordSuccess()

	return true
}

func (c *LLMClient) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures++
	c.available = false
}

func (c *LLMClient) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures = 0
	c.available = true
}

// IsAvailable reports the cached health status from the last CheckHealth.
func (c *LLMClient) IsAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.available
}

// Generate calls /api/generate with the given system and user prompts
// and returns the raw response text. Callers run the result through
// ExtractJSON before parsing.
func (c *LLMClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	if !c.CheckHealth(ctx) {
		return "", ErrLLMUnavailable
	}

	body, err := json.Marshal(generateRequest{
		Model:  c.Model,
		System: system,
		Prompt: prompt,
		Stream: false,
		Options: map[string]interface{}{
			"temperature": 0.1,
			"num_predict": 4096,
		},
	})
	if err != nil {
		return "", fmt.Errorf("refiner: marshal generate request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, ollamaGenerateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("refiner: build generate request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure()

		return "", fmt.Errorf("refiner: generate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyPreviewLen))

		return "", fmt.Errorf("refiner: generate returned %d: %s", resp.StatusCode, preview)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("refiner: decode generate response: %w", err)
	}

	return out.Response, nil
}
