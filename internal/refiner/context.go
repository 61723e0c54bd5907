package refiner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/signet-run/signet/internal/capture"
)

const contextCooldownMinutes = 10

// contextConfidence is fixed rather than LLM-supplied: context notes are
// low-stakes, short-lived observations, not claims worth hedging on.
const contextConfidence = 0.8

const contextImportance = 0.5

const contextSystemPrompt = `You analyze a developer's most recent screen, terminal, and file activity and
summarize in one sentence what they are currently working on. Respond with a JSON array:
[{"note": "...", "tags": ["..."]}]. Respond with [] if nothing is currently active.`

// ContextRefiner extracts a short "what the user is doing right now"
// note. It runs most frequently of all six refiners and, with the project
// refiner, is force-run past cooldown on a detected project switch.
type ContextRefiner struct {
}

// NewContextRefiner creates a context refiner.
func NewContextRefiner() *ContextRefiner {
	return &ContextRefiner{}
}

func (r *ContextRefiner) Name() string        { return "context-extractor" }
func (r *ContextRefiner) CooldownMinutes() int { return contextCooldownMinutes }
func (r *ContextRefiner) SystemPrompt() string { return contextSystemPrompt }

func (r *ContextRefiner) HasEnoughData(bundle capture.CaptureBundle) bool {
	return len(bundle.Screen) >= 2 || len(bundle.Terminal) >= 2 || len(bundle.Files) >= 3
}

func (r *ContextRefiner) FormatContext(bundle capture.CaptureBundle) string {
	var b strings.Builder

	for _, s := range bundle.Screen {
		fmt.Fprintf(&b, "window: %s / %s: %s\n", s.FocusedApp, s.FocusedWindow, s.OCRText)
	}

	for _, t := range bundle.Terminal {
		fmt.Fprintf(&b, "command: %s\n", t.Command)
	}

	for _, f := range bundle.Files {
		fmt.Fprintf(&b, "file %s: %s\n", f.EventType, f.FilePath)
	}

	return WrapUserData(SanitizePrompt(b.String(), 0))
}

type contextLLMEntry struct {
	Note string   `json:"note"`
	Tags []string `json:"tags"`
}

func (r *ContextRefiner) ParseResponse(raw string) []ExtractedMemory {
	var entries []contextLLMEntry
	if err := json.Unmarshal(ExtractJSON(raw), &entries); err != nil {
		return nil
	}

	var out []ExtractedMemory

	for _, e := range entries {
		if e.Note == "" {
			continue
		}

		out = append(out, ExtractedMemory{
			Content:    e.Note,
			Type:       MemoryTypeSemantic,
			Importance: contextImportance,
			Confidence: contextConfidence,
			Tags:       e.Tags,
			Source:     r.Name(),
		})
	}

	return out
}
