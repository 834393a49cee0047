package chat

// Role tags the author of a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message exchanged in a conversation. Turns are never edited once appended.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserTurn builds a user-authored turn.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn builds a model-authored turn.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// SystemTurn builds the instruction turn placed ahead of outbound history.
func SystemTurn(content string) Turn {
	return Turn{Role: RoleSystem, Content: content}
}

// CloneHistory copies turns into a fresh, never-nil slice.
func CloneHistory(history []Turn) []Turn {
	copied := make([]Turn, len(history))
	copy(copied, history)
	return copied
}
