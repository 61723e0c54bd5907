package distill

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/signet-run/signet/internal/memory"
	"github.com/signet-run/signet/internal/refiner"
)

// ContextSwitchLevel classifies how often the developer's focused
// window/app changes per hour.
type ContextSwitchLevel string

const (
	ContextSwitchLow      ContextSwitchLevel = "low"
	ContextSwitchModerate ContextSwitchLevel = "moderate"
	ContextSwitchHigh     ContextSwitchLevel = "high"
)

// WorkPatterns is the deterministic half of the cognitive profile, computed
// entirely from perception history with no LLM involvement.
type WorkPatterns struct {
	PeakHours             []int
	AvgSessionMinutes     float64
	ContextSwitchFreq     ContextSwitchLevel
	BreakFrequencyPerHour float64
	MostUsedApps          []string
	PreferredEditor       string
	PreferredTerminal     string
}

// ProblemSolvingStyle classifies how the developer tends to approach work,
// one of the enum-validated fields in the LLM's profile response.
type ProblemSolvingStyle struct {
	Approach string
}

// CognitiveProfile is the full derived profile persisted as a single
// type=system memory tagged "cognitive-profile", serialized as JSON.
type CognitiveProfile struct {
	Summary         string
	TopSkills       []string
	WorkPatterns    WorkPatterns
	ProblemSolving  ProblemSolvingStyle
	ConfidenceScore float64
	LastUpdated     time.Time
}

// cognitiveProfileSchema validates the LLM's profile JSON before it is
// trusted.
const cognitiveProfileSchema = `{
	"type": "object",
	"properties": {
		"summary": {"type": "string"},
		"topSkills": {"type": "array", "items": {"type": "string"}},
		"preferredEditor": {"type": "string"},
		"preferredTerminal": {"type": "string"},
		"problemSolving": {
			"type": "object",
			"properties": {"approach": {"type": "string"}}
		},
		"confidenceScore": {"type": "number"}
	}
}`

type llmProblemSolving struct {
	Approach string `json:"approach"`
}

type llmProfileResponse struct {
	Summary           string            `json:"summary"`
	TopSkills         []string          `json:"topSkills"`
	PreferredEditor   string            `json:"preferredEditor"`
	PreferredTerminal string            `json:"preferredTerminal"`
	ProblemSolving    llmProblemSolving `json:"problemSolving"`
	ConfidenceScore   float64           `json:"confidenceScore"`
}

// knownEditors/knownTerminals back the "unknown" keyword-match fallback
// step 4 of the cognitive-profile pipeline.
var knownEditors = []string{"vscode", "visual studio code", "vim", "neovim", "emacs", "intellij", "goland", "sublime", "zed"}
var knownTerminals = []string{"iterm", "terminal", "alacritty", "kitty", "warp", "wezterm", "windows terminal"}

// knownApproaches enumerates the valid problemSolving.approach values; an
// LLM response outside this set falls back to approachFallback.
var knownApproaches = []string{"systematic", "exploratory", "incremental"}

const approachFallback = "systematic"

// validateApproach enum-validates approach, returning the declared
// fallback when the value isn't one signet recognizes.
func validateApproach(approach string) string {
	for _, a := range knownApproaches {
		if strings.EqualFold(approach, a) {
			return a
		}
	}

	return approachFallback
}

// RunCognitiveProfile implements spec.md §4.4's cognitive-profile pipeline:
// query recent memories, compute working style deterministically, ask the
// LLM for a qualitative summary, then persist the merged result in place.
func (d *Distiller) RunCognitiveProfile(ctx context.Context, now time.Time) (CognitiveProfile, error) {
	existing, existingID, hasExisting, err := d.loadExistingProfile(ctx)
	if err != nil {
		return CognitiveProfile{}, err
	}

	persist := func(p CognitiveProfile) error {
		return d.persistProfile(ctx, p, existingID, hasExisting)
	}

	since, err := d.lastProfileUpdate(ctx)
	if err != nil {
		return CognitiveProfile{}, err
	}

	mems, err := d.store.RecentMemoriesByTypes(ctx, profileMemoryTypes, since, profileMemoryLimit)
	if err != nil {
		return CognitiveProfile{}, fmt.Errorf("distill: load memories: %w", err)
	}

	workPatterns, err := d.computeWorkPatterns(ctx, now)
	if err != nil {
		return CognitiveProfile{}, fmt.Errorf("distill: compute work patterns: %w", err)
	}

	profile := existing

	if d.llm != nil {
		resp, err := d.synthesizeProfile(ctx, mems, existing, hasExisting)
		if err != nil {
			// LLM unreachability is non-fatal per spec.md §4.5's failure
			// semantics; fall back to the deterministic half only.
			profile.WorkPatterns = workPatterns
			profile.LastUpdated = now
			return profile, persist(profile)
		}

		profile.Summary = resp.Summary
		if len(resp.TopSkills) > 0 {
			profile.TopSkills = resp.TopSkills
		}

		profile.ProblemSolving.Approach = validateApproach(resp.ProblemSolving.Approach)
		profile.ConfidenceScore = resp.ConfidenceScore

		workPatterns.PreferredEditor = resolveUnknown(resp.PreferredEditor, workPatterns.MostUsedApps, knownEditors)
		workPatterns.PreferredTerminal = resolveUnknown(resp.PreferredTerminal, workPatterns.MostUsedApps, knownTerminals)
	}

	profile.WorkPatterns = workPatterns
	profile.LastUpdated = now

	return profile, persist(profile)
}

func resolveUnknown(llmValue string, mostUsedApps, known []string) string {
	if llmValue != "" && !strings.EqualFold(llmValue, "unknown") {
		return llmValue
	}

	for _, app := range mostUsedApps {
		lower := strings.ToLower(app)

		for _, k := range known {
			if strings.Contains(lower, k) {
				return app
			}
		}
	}

	return "unknown"
}

func (d *Distiller) synthesizeProfile(ctx context.Context, mems []memory.Memory, existing CognitiveProfile, hasExisting bool) (llmProfileResponse, error) {
	prompt := formatProfilePrompt(mems, existing, hasExisting)

	raw, err := d.llm.Generate(ctx, profileSystemPrompt, prompt)
	if err != nil {
		return llmProfileResponse{}, err
	}

	data := refiner.ExtractJSON(raw)

	if err := refiner.ValidateJSON([]byte(cognitiveProfileSchema), data); err != nil && err != refiner.ErrSchemaValidationUnavailable {
		return llmProfileResponse{}, fmt.Errorf("distill: profile schema validation: %w", err)
	}

	var resp llmProfileResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return llmProfileResponse{}, fmt.Errorf("distill: parse profile response: %w", err)
	}

	return resp, nil
}

const profileSystemPrompt = `You build a concise cognitive profile of a software developer from their ` +
	`recorded memories. Respond with a single JSON object: ` +
	`{"summary": string, "topSkills": [string], "preferredEditor": string, "preferredTerminal": string, ` +
	`"problemSolving": {"approach": "systematic"|"exploratory"|"incremental"}, "confidenceScore": number}. ` +
	`Use "unknown" for preferredEditor/preferredTerminal if the memories don't make it clear. ` +
	`When given a prior profile, only change fields the new evidence actually supports.`

func formatProfilePrompt(mems []memory.Memory, existing CognitiveProfile, hasExisting bool) string {
	var b strings.Builder

	grouped := map[memory.Type][]memory.Memory{}
	for _, m := range mems {
		grouped[m.Type] = append(grouped[m.Type], m)
	}

	for _, t := range profileMemoryTypes {
		items := grouped[t]
		if len(items) == 0 {
			continue
		}

		fmt.Fprintf(&b, "%s:\n", t)

		for _, m := range items {
			fmt.Fprintf(&b, "- %s\n", m.Content)
		}
	}

	if hasExisting {
		fmt.Fprintf(&b, "\nPrior profile summary: %s\nPrior top skills: %s\n",
			existing.Summary, strings.Join(existing.TopSkills, ", "))
	}

	return refiner.WrapUserData(refiner.SanitizePrompt(b.String(), 0))
}

// computeWorkPatterns implements spec.md §4.4 step 2 entirely from
// perception_screen/perception_terminal, with no LLM involvement.
func (d *Distiller) computeWorkPatterns(ctx context.Context, now time.Time) (WorkPatterns, error) {
	since := now.AddDate(0, 0, -30)

	screens, err := d.store.RecentScreenCaptures(ctx, since)
	if err != nil {
		return WorkPatterns{}, err
	}

	terminals, err := d.store.RecentTerminalCaptures(ctx, since)
	if err != nil {
		return WorkPatterns{}, err
	}

	allTimestamps := make([]time.Time, 0, len(screens)+len(terminals))
	for _, s := range screens {
		allTimestamps = append(allTimestamps, s.Timestamp)
	}

	for _, t := range terminals {
		allTimestamps = append(allTimestamps, t.Timestamp)
	}

	return WorkPatterns{
		PeakHours:             peakHours(allTimestamps),
		AvgSessionMinutes:     averageSessionMinutes(allTimestamps),
		ContextSwitchFreq:     classifyContextSwitches(screens),
		BreakFrequencyPerHour: breakFrequencyPerHour(allTimestamps),
		MostUsedApps:          mostUsedApps(screens),
	}, nil
}

// peakHours returns up to 8 hours-of-day whose capture count exceeds
// 0.7*mean of active hours, per spec.md's exact definition.
func peakHours(timestamps []time.Time) []int {
	counts := make(map[int]int)
	for _, ts := range timestamps {
		counts[ts.Local().Hour()]++
	}

	if len(counts) == 0 {
		return nil
	}

	total := 0
	for _, c := range counts {
		total += c
	}

	mean := float64(total) / float64(len(counts))
	threshold := 0.7 * mean

	type hourCount struct {
		hour  int
		count int
	}

	var candidates []hourCount

	for h, c := range counts {
		if float64(c) > threshold {
			candidates = append(candidates, hourCount{h, c})
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].count > candidates[j].count })

	if len(candidates) > 8 {
		candidates = candidates[:8]
	}

	hours := make([]int, len(candidates))
	for i, hc := range candidates {
		hours[i] = hc.hour
	}

	sort.Ints(hours)

	return hours
}

// averageSessionMinutes segments timestamps by 30-minute gaps and averages
// each segment's span.
func averageSessionMinutes(timestamps []time.Time) float64 {
	sorted := sortedCopy(timestamps)
	if len(sorted) == 0 {
		return 0
	}

	const gapThreshold = 30 * time.Minute

	var sessions []time.Duration

	sessionStart := sorted[0]
	last := sorted[0]

	for _, ts := range sorted[1:] {
		if ts.Sub(last) > gapThreshold {
			sessions = append(sessions, last.Sub(sessionStart))
			sessionStart = ts
		}

		last = ts
	}

	sessions = append(sessions, last.Sub(sessionStart))

	var total time.Duration
	for _, s := range sessions {
		total += s
	}

	return total.Minutes() / float64(len(sessions))
}

// breakFrequencyPerHour counts 10-120 minute gaps per hour of observed span.
func breakFrequencyPerHour(timestamps []time.Time) float64 {
	sorted := sortedCopy(timestamps)
	if len(sorted) < 2 {
		return 0
	}

	breaks := 0

	for i := 1; i < len(sorted); i++ {
		gap := sorted[i].Sub(sorted[i-1])
		if gap >= 10*time.Minute && gap <= 120*time.Minute {
			breaks++
		}
	}

	spanHours := sorted[len(sorted)-1].Sub(sorted[0]).Hours()
	if spanHours == 0 {
		return 0
	}

	return float64(breaks) / spanHours
}

// classifyContextSwitches buckets switches-per-hour into low/moderate/high
// per spec.md's thresholds (low<5, moderate<15, high>=15). A switch is a
// change in FocusedApp between consecutive screen captures.
func classifyContextSwitches(screens []memory.ScreenCaptureRow) ContextSwitchLevel {
	if len(screens) < 2 {
		return ContextSwitchLow
	}

	switches := 0

	for i := 1; i < len(screens); i++ {
		if screens[i].FocusedApp != screens[i-1].FocusedApp {
			switches++
		}
	}

	spanHours := screens[len(screens)-1].Timestamp.Sub(screens[0].Timestamp).Hours()
	if spanHours == 0 {
		spanHours = 1
	}

	perHour := float64(switches) / spanHours

	switch {
	case perHour >= 15:
		return ContextSwitchHigh
	case perHour >= 5:
		return ContextSwitchModerate
	default:
		return ContextSwitchLow
	}
}

func mostUsedApps(screens []memory.ScreenCaptureRow) []string {
	counts := map[string]int{}
	for _, s := range screens {
		if s.FocusedApp != "" {
			counts[s.FocusedApp]++
		}
	}

	type appCount struct {
		app   string
		count int
	}

	apps := make([]appCount, 0, len(counts))
	for a, c := range counts {
		apps = append(apps, appCount{a, c})
	}

	sort.Slice(apps, func(i, j int) bool { return apps[i].count > apps[j].count })

	out := make([]string, 0, len(apps))
	for _, a := range apps {
		out = append(out, a.app)
	}

	return out
}

func sortedCopy(timestamps []time.Time) []time.Time {
	out := make([]time.Time, len(timestamps))
	copy(out, timestamps)
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })

	return out
}

const cognitiveProfileTag = "cognitive-profile"

// loadExistingProfile looks up the singleton cognitive-profile memory (the
// most recent type=system row tagged "cognitive-profile") and decodes its
// JSON content, so RunCognitiveProfile can overlay new evidence onto it
// instead of synthesizing from scratch every run.
func (d *Distiller) loadExistingProfile(ctx context.Context) (CognitiveProfile, string, bool, error) {
	m, err := d.store.LatestByTag(ctx, cognitiveProfileTag)
	if errors.Is(err, sql.ErrNoRows) {
		return CognitiveProfile{}, "", false, nil
	}

	if err != nil {
		return CognitiveProfile{}, "", false, fmt.Errorf("distill: load existing profile: %w", err)
	}

	var profile CognitiveProfile
	if err := json.Unmarshal([]byte(m.Content), &profile); err != nil {
		// A pre-existing non-JSON profile row (or corruption) shouldn't
		// block distillation; re-synthesize from scratch but still
		// overwrite the same row id.
		return CognitiveProfile{}, m.ID, true, nil
	}

	return profile, m.ID, true, nil
}

// lastProfileUpdate reads perception_state["distillation.lastProfileUpdate"],
// returning the zero time (all-time) if absent or unparseable.
func (d *Distiller) lastProfileUpdate(ctx context.Context) (time.Time, error) {
	raw, err := d.store.GetPerceptionState(ctx, stateLastProfileUpdate)
	if err != nil {
		return time.Time{}, err
	}

	if raw == "" {
		return time.Time{}, nil
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, nil
	}

	return parsed, nil
}

// persistProfile serializes profile as its content per spec.md §3 ("content
// is the JSON-serialized profile") and overwrites the existing singleton row
// in place rather than inserting a new one each cycle (§4.4 step 5).
func (d *Distiller) persistProfile(ctx context.Context, profile CognitiveProfile, existingID string, hasExisting bool) error {
	content, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("distill: serialize profile: %w", err)
	}

	if hasExisting {
		return d.store.UpdateContent(ctx, existingID, string(content))
	}

	_, err = d.store.Remember(ctx, memory.RememberInput{
		Content:    string(content),
		Type:       memory.TypeSystem,
		Importance: 0.6,
		Confidence: 0.9,
		Tags:       []string{cognitiveProfileTag},
		Source:     "distillation",
	})

	return err
}
