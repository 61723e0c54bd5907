package refiner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/signet-run/signet/internal/capture"
)

const projectCooldownMinutes = 20

const projectConfidenceFloor = 0.5

const projectImportance = 0.7

const projectSystemPrompt = `You analyze a developer's recent screen, file, and commit activity to identify
one durable fact about the project they're working on (its purpose, stack, or structure).
Respond with a JSON array of objects: [{"fact": "...", "confidence": <0..1>, "tags": ["..."]}].
Respond with [] if nothing durable stands out.`

// ProjectRefiner extracts durable project-level facts from screen,
// file, and commit activity.
type ProjectRefiner struct {
}

// NewProjectRefiner creates a project refiner.
func NewProjectRefiner() *ProjectRefiner {
	return &ProjectRefiner{}
}

func (r *ProjectRefiner) Name() string        { return "project-extractor" }
func (r *ProjectRefiner) CooldownMinutes() int { return projectCooldownMinutes }
func (r *ProjectRefiner) SystemPrompt() string { return projectSystemPrompt }

func (r *ProjectRefiner) HasEnoughData(bundle capture.CaptureBundle) bool {
	return len(bundle.Screen) >= 3 || len(bundle.Files) >= 5 || len(bundle.Comms) >= 1
}

func (r *ProjectRefiner) FormatContext(bundle capture.CaptureBundle) string {
	var b strings.Builder

	for _, s := range bundle.Screen {
		fmt.Fprintf(&b, "window: %s / %s\n", s.FocusedApp, s.FocusedWindow)
	}

	for _, f := range bundle.Files {
		fmt.Fprintf(&b, "file %s: %s (%s)\n", f.EventType, f.FilePath, f.FileType)
	}

	for _, c := range bundle.Comms {
		fmt.Fprintf(&b, "commit on %s: %s\n", c.Metadata.Branch, c.Content)
	}

	return WrapUserData(SanitizePrompt(b.String(), 0))
}

type projectLLMEntry struct {
	Fact       string   `json:"fact"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags"`
}

func (r *ProjectRefiner) ParseResponse(raw string) []ExtractedMemory {
	var entries []projectLLMEntry
	if err := json.Unmarshal(ExtractJSON(raw), &entries); err != nil {
		return nil
	}

	var out []ExtractedMemory

	for _, e := range entries {
		if e.Confidence < projectConfidenceFloor || e.Fact == "" {
			continue
		}

		out = append(out, ExtractedMemory{
			Content:    e.Fact,
			Type:       MemoryTypeFact,
			Importance: projectImportance,
			Confidence: e.Confidence,
			Tags:       e.Tags,
			Source:     r.Name(),
		})
	}

	return out
}
