package refiner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/signet-run/signet/internal/capture"
)

const workflowCooldownMinutes = 30

const workflowConfidenceFloor = 0.6

const workflowImportance = 0.7

const workflowSystemPrompt = `You analyze a developer's recent terminal commands and screen activity for a
repeated procedure worth remembering as a reusable workflow (a build step, a debugging
routine, a deploy sequence). Respond with a JSON array:
[{"procedure": "...", "confidence": <0..1>, "tags": ["..."]}]. Respond with [] if none.`

// WorkflowRefiner extracts reusable procedures from terminal and screen
// activity.
type WorkflowRefiner struct {
}

// NewWorkflowRefiner creates a workflow refiner.
func NewWorkflowRefiner() *WorkflowRefiner {
	return &WorkflowRefiner{}
}

func (r *WorkflowRefiner) Name() string        { return "workflow-extractor" }
func (r *WorkflowRefiner) CooldownMinutes() int { return workflowCooldownMinutes }
func (r *WorkflowRefiner) SystemPrompt() string { return workflowSystemPrompt }

func (r *WorkflowRefiner) HasEnoughData(bundle capture.CaptureBundle) bool {
	return len(bundle.Terminal) >= 5 || len(bundle.Screen) >= 10
}

func (r *WorkflowRefiner) FormatContext(bundle capture.CaptureBundle) string {
	var b strings.Builder

	for _, t := range bundle.Terminal {
		fmt.Fprintf(&b, "$ %s\n", t.Command)
	}

	for _, s := range bundle.Screen {
		fmt.Fprintf(&b, "window: %s\n", s.FocusedWindow)
	}

	return WrapUserData(SanitizePrompt(b.String(), 0))
}

type workflowLLMEntry struct {
	Procedure  string   `json:"procedure"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags"`
}

func (r *WorkflowRefiner) ParseResponse(raw string) []ExtractedMemory {
	var entries []workflowLLMEntry
	if err := json.Unmarshal(ExtractJSON(raw), &entries); err != nil {
		return nil
	}

	var out []ExtractedMemory

	for _, e := range entries {
		if e.Confidence < workflowConfidenceFloor || e.Procedure == "" {
			continue
		}

		out = append(out, ExtractedMemory{
			Content:    e.Procedure,
			Type:       MemoryTypeProcedural,
			Importance: workflowImportance,
			Confidence: e.Confidence,
			Tags:       e.Tags,
			Source:     r.Name(),
		})
	}

	return out
}
