package distill

import (
	"context"
	"strings"
)

// AgentSkill is one entry in an AgentCard's skills list, mirroring the
// A2A protocol's AgentSkill shape (id/name/description/tags).
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// AgentCapabilities advertises which optional A2A features this agent
// supports. Signet has no streaming task protocol of its own; it only
// claims the static-card capability.
type AgentCapabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"pushNotifications"`
}

// AgentCard is a pure, non-persistent-unless-exported derivation of the
// cognitive profile and top skills into an A2A-compatible card, per
// spec.md's "Agent card / training context" line.
type AgentCard struct {
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	Version            string            `json:"version"`
	Capabilities       AgentCapabilities `json:"capabilities"`
	DefaultInputModes  []string          `json:"defaultInputModes"`
	DefaultOutputModes []string          `json:"defaultOutputModes"`
	Skills             []AgentSkill      `json:"skills"`
}

const agentCardVersion = "1.0"

// BuildAgentCard derives an AgentCard from profile — a pure function of
// already-computed state, no store access and no LLM call. It is kept as
// a Distiller method (rather than a free function) so future revisions
// can source the agent's name/description from daemon config without
// changing Run's call shape.
func (d *Distiller) BuildAgentCard(_ context.Context, profile CognitiveProfile) (AgentCard, error) {
	description := profile.Summary
	if description == "" {
		description = "Personal agent with no synthesized profile yet."
	}

	skills := make([]AgentSkill, 0, len(profile.TopSkills))
	for _, s := range profile.TopSkills {
		skills = append(skills, AgentSkill{
			ID:          "skill-" + slugify(s),
			Name:        s,
			Description: strings.TrimSpace(s),
		})
	}

	return AgentCard{
		Name:               "signet",
		Description:        description,
		Version:            agentCardVersion,
		Capabilities:       AgentCapabilities{Streaming: false, PushNotifications: false},
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
		Skills:             skills,
	}, nil
}
