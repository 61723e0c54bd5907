package refiner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/signet-run/signet/internal/capture"
)

const patternCooldownMinutes = 720

const patternConfidenceFloor = 0.5

var patternStrengthLevels = []Level[float64]{
	{Limit: 0.85, Label: "strong"},
	{Limit: 0.6, Label: "moderate"},
}

var patternImportanceByLabel = map[string]float64{
	"moderate": 0.6,
	"strong":   0.85,
}

const patternSystemPrompt = `You analyze a long window of a developer's combined activity across screen,
files, terminal, commits, and voice, looking for a recurring behavioral pattern (a habit,
a recurring mistake, a consistent preference). Respond with a JSON array:
[{"pattern": "...", "strength": <0..1>, "confidence": <0..1>, "tags": ["..."]}].
Respond with [] if no pattern is clearly recurring.`

// PatternRefiner extracts recurring behavioral patterns from a wide
// window of combined activity. It runs least often (every 12 hours)
// since a pattern needs many observations to distinguish from noise.
type PatternRefiner struct {
}

// NewPatternRefiner creates a pattern refiner.
func NewPatternRefiner() *PatternRefiner {
	return &PatternRefiner{}
}

func (r *PatternRefiner) Name() string        { return "pattern-extractor" }
func (r *PatternRefiner) CooldownMinutes() int { return patternCooldownMinutes }
func (r *PatternRefiner) SystemPrompt() string { return patternSystemPrompt }

func (r *PatternRefiner) HasEnoughData(bundle capture.CaptureBundle) bool {
	return bundle.Total() >= 30
}

func (r *PatternRefiner) FormatContext(bundle capture.CaptureBundle) string {
	var b strings.Builder

	fmt.Fprintf(&b, "screen observations: %d\n", len(bundle.Screen))
	fmt.Fprintf(&b, "terminal commands: %d\n", len(bundle.Terminal))
	fmt.Fprintf(&b, "file changes: %d\n", len(bundle.Files))
	fmt.Fprintf(&b, "commits: %d\n", len(bundle.Comms))
	fmt.Fprintf(&b, "voice segments: %d\n", len(bundle.Voice))

	for _, t := range bundle.Terminal {
		fmt.Fprintf(&b, "command: %s\n", t.Command)
	}

	for _, s := range bundle.Screen {
		fmt.Fprintf(&b, "window: %s\n", s.FocusedWindow)
	}

	return WrapUserData(SanitizePrompt(b.String(), 0))
}

type patternLLMEntry struct {
	Pattern    string   `json:"pattern"`
	Strength   float64  `json:"strength"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags"`
}

// ParseResponse drops any candidate whose strength classifies as
// "weak" (below the moderate threshold) in addition to the usual
// confidence floor — a pattern refiner exists to surface clear habits,
// not every faint correlation.
func (r *PatternRefiner) ParseResponse(raw string) []ExtractedMemory {
	var entries []patternLLMEntry
	if err := json.Unmarshal(ExtractJSON(raw), &entries); err != nil {
		return nil
	}

	var out []ExtractedMemory

	for _, e := range entries {
		if e.Confidence < patternConfidenceFloor || e.Pattern == "" {
			continue
		}

		label := Classify(e.Strength, patternStrengthLevels, "weak")
		if label == "weak" {
			continue
		}

		out = append(out, ExtractedMemory{
			Content:    e.Pattern,
			Type:       MemoryTypePattern,
			Importance: patternImportanceByLabel[label],
			Confidence: e.Confidence,
			Tags:       e.Tags,
			Source:     r.Name(),
		})
	}

	return out
}
