package refiner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/signet-run/signet/internal/capture"
)

const skillCooldownMinutes = 30

const skillConfidenceFloor = 0.6

var skillProficiencyLevels = []Level[float64]{
	{Limit: 0.95, Label: "expert"},
	{Limit: 0.8, Label: "proficient"},
	{Limit: 0.6, Label: "competent"},
}

var skillImportanceByLabel = map[string]float64{
	"learning":   0.4,
	"competent":  0.6,
	"proficient": 0.8,
	"expert":     0.95,
}

const skillSystemPrompt = `You analyze a developer's recent screen and terminal activity and identify a
technical skill they demonstrated. Respond with a JSON array of objects:
[{"skill": "<short skill name>", "proficiency": <0..1>, "confidence": <0..1>, "tags": ["..."]}].
Only report skills with clear supporting evidence. Respond with [] if none.`

// SkillRefiner extracts demonstrated technical skills from screen and
// terminal activity.
type SkillRefiner struct {
}

// NewSkillRefiner creates a skill refiner.
func NewSkillRefiner() *SkillRefiner {
	return &SkillRefiner{}
}

func (r *SkillRefiner) Name() string        { return "skill-extractor" }
func (r *SkillRefiner) CooldownMinutes() int { return skillCooldownMinutes }
func (r *SkillRefiner) SystemPrompt() string { return skillSystemPrompt }

// HasEnoughData requires either 5 screen observations or 3 terminal
// commands — enough to see a sustained technical activity, not a blip.
func (r *SkillRefiner) HasEnoughData(bundle capture.CaptureBundle) bool {
	return len(bundle.Screen) >= 5 || len(bundle.Terminal) >= 3
}

func (r *SkillRefiner) FormatContext(bundle capture.CaptureBundle) string {
	var b strings.Builder

	if len(bundle.Screen) > 0 {
		b.WriteString("Recent windows:\n")

		for _, s := range bundle.Screen {
			fmt.Fprintf(&b, "- %s / %s: %s\n", s.FocusedApp, s.FocusedWindow, s.OCRText)
		}
	}

	if len(bundle.Terminal) > 0 {
		b.WriteString("Recent commands:\n")

		for _, t := range bundle.Terminal {
			fmt.Fprintf(&b, "- %s\n", t.Command)
		}
	}

	return WrapUserData(SanitizePrompt(b.String(), 0))
}

type skillLLMEntry struct {
	Skill       string   `json:"skill"`
	Proficiency float64  `json:"proficiency"`
	Confidence  float64  `json:"confidence"`
	Tags        []string `json:"tags"`
}

func (r *SkillRefiner) ParseResponse(raw string) []ExtractedMemory {
	var entries []skillLLMEntry
	if err := json.Unmarshal(ExtractJSON(raw), &entries); err != nil {
		return nil
	}

	var out []ExtractedMemory

	for _, e := range entries {
		if e.Confidence < skillConfidenceFloor || e.Skill == "" {
			continue
		}

		label := Classify(e.Proficiency, skillProficiencyLevels, "learning")

		out = append(out, ExtractedMemory{
			Content:    e.Skill,
			Type:       MemoryTypeSkill,
			Importance: skillImportanceByLabel[label],
			Confidence: e.Confidence,
			Tags:       e.Tags,
			Source:     r.Name(),
		})
	}

	return out
}
