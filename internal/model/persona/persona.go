package persona

// Persona captures the assistant character that shapes the system instruction.
type Persona struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Tone        string   `json:"tone"`
	PromptHint  string   `json:"promptHint"`
	OpeningLine string   `json:"openingLine"`
	Traits      []string `json:"traits,omitempty"`
	Rules       []string `json:"rules,omitempty"`
}

// Default is the single assistant every anonymous conversation talks to.
func Default() Persona {
	return Persona{
		ID:          "ambermind",
		Name:        "AmberMind",
		Title:       "a friendly general-purpose assistant",
		Tone:        "warm, clear, concise",
		PromptHint:  "Answer directly first, then add detail only when it helps.",
		OpeningLine: "Welcome to AmberMind!",
		Traits:      []string{"helpful", "honest", "patient", "curious"},
		Rules: []string{
			"Use Markdown, and fence code blocks with a language tag.",
			"Say so plainly when you do not know something.",
			"Keep replies short enough to read in under a minute unless asked for more.",
		},
	}
}

// WithDirective returns a copy of p whose prompt hint is replaced by directive.
// An empty directive leaves p unchanged.
func (p Persona) WithDirective(directive string) Persona {
	if directive == "" {
		return p
	}
	p.PromptHint = directive
	return p
}
