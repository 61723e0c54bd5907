package distill

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/src-d/enry/v2"

	"github.com/signet-run/signet/internal/memory"
)

// expertiseMemoryLimit bounds how many recent memories feed graph
// extraction in one run.
const expertiseMemoryLimit = 1000

// graphMemoryTypes are the memory types entity/co-occurrence extraction
// reads. Skill and pattern memories carry the densest entity signal;
// decisions and facts round it out.
var graphMemoryTypes = []memory.Type{
	memory.TypeSkill,
	memory.TypePattern,
	memory.TypeDecision,
	memory.TypeFact,
	memory.TypeProcedural,
}

var frameworkSet = map[string]bool{
	"react": true, "vue": true, "angular": true, "svelte": true, "nextjs": true,
	"next.js": true, "django": true, "flask": true, "fastapi": true, "rails": true,
	"spring": true, "express": true, "gin": true, "echo": true, "fiber": true,
	"laravel": true, "nestjs": true, "remix": true,
}

var toolSet = map[string]bool{
	"docker": true, "kubernetes": true, "k8s": true, "terraform": true,
	"ansible": true, "jenkins": true, "github actions": true, "circleci": true,
	"postgres": true, "postgresql": true, "mysql": true, "redis": true,
	"kafka": true, "rabbitmq": true, "nginx": true, "git": true, "vim": true,
	"vscode": true, "grafana": true, "prometheus": true,
}

var stopTags = map[string]bool{
	"cognitive-profile": true, "system": true, "distillation": true,
}

var personPattern = regexp.MustCompile(`^[A-Z][a-z]+ [A-Z][a-z]+$`)
var projectPattern = regexp.MustCompile(`(?i)^(project[:/]|repo[:/]|@)`)

// classifyEntity assigns a kind to a candidate entity label, per spec.md
// §4.4's classification heuristics: known languages (recognized via
// enry's language metadata) and the built-in framework/tool sets take
// priority, then a handful of regex heuristics, with "skill" as the
// catch-all.
func classifyEntity(label string) string {
	lower := strings.ToLower(label)

	if len(enry.GetLanguageExtensions(label)) > 0 {
		return "language"
	}

	if frameworkSet[lower] {
		return "framework"
	}

	if toolSet[lower] {
		return "tool"
	}

	if projectPattern.MatchString(label) {
		return "project"
	}

	if personPattern.MatchString(label) {
		return "person"
	}

	return "skill"
}

// extractEntities pulls candidate entity labels out of a memory's tags
// and, for skill-type memories, its content — tags are the primary
// signal since refiners already normalize skill/tool names into tags.
func extractEntities(m memory.Memory) []string {
	seen := map[string]bool{}
	var out []string

	for _, tag := range m.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || stopTags[strings.ToLower(tag)] {
			continue
		}

		if !seen[tag] {
			seen[tag] = true
			out = append(out, tag)
		}
	}

	if m.Type == memory.TypeSkill {
		for _, word := range strings.Fields(m.Content) {
			word = strings.Trim(word, ".,;:()[]{}\"'")
			if len(word) < 3 {
				continue
			}

			lower := strings.ToLower(word)
			if frameworkSet[lower] || toolSet[lower] {
				if !seen[word] {
					seen[word] = true
					out = append(out, word)
				}
			}
		}
	}

	return out
}

// RunExpertiseGraph implements spec.md §4.4's expertise-graph step:
// extract entities per memory, classify each, weight co-occurrences by
// log2(1+count), and atomically replace the stored graph.
func (d *Distiller) RunExpertiseGraph(ctx context.Context) error {
	mems, err := d.store.RecentMemoriesByTypes(ctx, graphMemoryTypes, time.Time{}, expertiseMemoryLimit)
	if err != nil {
		return fmt.Errorf("distill: load memories for graph: %w", err)
	}

	memoryCounts := map[string]int{}
	coOccurrences := map[[2]string]int{}

	for _, m := range mems {
		entities := extractEntities(m)
		sort.Strings(entities)

		for _, e := range entities {
			memoryCounts[e]++
		}

		for i := 0; i < len(entities); i++ {
			for j := i + 1; j < len(entities); j++ {
				key := pairKey(entities[i], entities[j])
				coOccurrences[key]++
			}
		}
	}

	nodeIDs := map[string]string{}
	nodes := make([]memory.ExpertiseNode, 0, len(memoryCounts))

	for label, count := range memoryCounts {
		id := entityID(label)
		nodeIDs[label] = id

		nodes = append(nodes, memory.ExpertiseNode{
			ID:          id,
			Label:       label,
			Kind:        classifyEntity(label),
			MemoryCount: count,
		})
	}

	edges := make([]memory.ExpertiseEdge, 0, len(coOccurrences))

	for pair, count := range coOccurrences {
		edges = append(edges, memory.ExpertiseEdge{
			SourceID:      nodeIDs[pair[0]],
			TargetID:      nodeIDs[pair[1]],
			Weight:        math.Log2(1 + float64(count)),
			CoOccurrences: count,
		})
	}

	return d.store.ReplaceExpertiseGraph(ctx, nodes, edges)
}

// pairKey orders a pair so (a,b) and (b,a) collapse to the same key,
// using id(a)<id(b) ordering on the labels themselves (stable across
// runs since labels, unlike generated ids, don't change).
func pairKey(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}

	return [2]string{b, a}
}

// entityID derives a stable id from an entity label so re-running graph
// extraction reuses the same node id for the same label.
func entityID(label string) string {
	return "ent_" + slugify(label)
}

func slugify(s string) string {
	var b strings.Builder

	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	return b.String()
}
