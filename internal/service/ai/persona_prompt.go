package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/ambermind/backend/internal/model/persona"
)

// BuildSystemPrompt renders the persona into the instruction turn sent ahead of history.
func BuildSystemPrompt(p persona.Persona) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "You are %s, %s.", p.Name, p.Title)

	if p.Tone != "" {
		fmt.Fprintf(&builder, "\nTone: %s.", p.Tone)
	}
	if len(p.Traits) > 0 {
		fmt.Fprintf(&builder, "\nPersonality: %s.", strings.Join(p.Traits, ", "))
	}
	if p.PromptHint != "" {
		builder.WriteString("\n\n")
		builder.WriteString(p.PromptHint)
	}
	if len(p.Rules) > 0 {
		builder.WriteString("\n\nRules:")
		for _, rule := range p.Rules {
			builder.WriteString("\n- ")
			builder.WriteString(rule)
		}
	}

	return builder.String()
}
