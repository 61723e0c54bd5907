package refiner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/signet-run/signet/internal/capture"
)

const decisionCooldownMinutes = 20

const decisionConfidenceFloor = 0.5

const decisionImportance = 0.75

const decisionSystemPrompt = `You analyze a developer's recent activity across commits, terminal commands,
screen, and voice for a concrete decision they made (a tradeoff, a choice between
approaches, a rejected alternative). Respond with a JSON array:
[{"decision": "...", "confidence": <0..1>, "tags": ["..."]}]. Respond with [] if none.`

// DecisionRefiner extracts concrete decisions from commits, terminal,
// screen, and voice activity.
type DecisionRefiner struct {
}

// NewDecisionRefiner creates a decision refiner.
func NewDecisionRefiner() *DecisionRefiner {
	return &DecisionRefiner{}
}

func (r *DecisionRefiner) Name() string        { return "decision-extractor" }
func (r *DecisionRefiner) CooldownMinutes() int { return decisionCooldownMinutes }
func (r *DecisionRefiner) SystemPrompt() string { return decisionSystemPrompt }

func (r *DecisionRefiner) HasEnoughData(bundle capture.CaptureBundle) bool {
	return len(bundle.Comms) >= 1 || len(bundle.Terminal) >= 3 || len(bundle.Screen) >= 3 || len(bundle.Voice) >= 1
}

func (r *DecisionRefiner) FormatContext(bundle capture.CaptureBundle) string {
	var b strings.Builder

	for _, c := range bundle.Comms {
		fmt.Fprintf(&b, "commit: %s\n", c.Content)
	}

	for _, t := range bundle.Terminal {
		fmt.Fprintf(&b, "command: %s\n", t.Command)
	}

	for _, s := range bundle.Screen {
		fmt.Fprintf(&b, "screen: %s\n", s.OCRText)
	}

	for _, v := range bundle.Voice {
		if v.IsSpeaking {
			fmt.Fprintf(&b, "said: %s\n", v.Transcript)
		}
	}

	return WrapUserData(SanitizePrompt(b.String(), 0))
}

type decisionLLMEntry struct {
	Decision   string   `json:"decision"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags"`
}

func (r *DecisionRefiner) ParseResponse(raw string) []ExtractedMemory {
	var entries []decisionLLMEntry
	if err := json.Unmarshal(ExtractJSON(raw), &entries); err != nil {
		return nil
	}

	var out []ExtractedMemory

	for _, e := range entries {
		if e.Confidence < decisionConfidenceFloor || e.Decision == "" {
			continue
		}

		out = append(out, ExtractedMemory{
			Content:    e.Decision,
			Type:       MemoryTypeDecision,
			Importance: decisionImportance,
			Confidence: e.Confidence,
			Tags:       e.Tags,
			Source:     r.Name(),
		})
	}

	return out
}
