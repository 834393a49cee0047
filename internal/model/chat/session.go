package chat

// Session captures the anonymous conversation bound to one session token.
type Session struct {
	ID      string `json:"chat_id"`
	History []Turn `json:"history"`
}

// Initialized reports whether the session already owns a conversation id.
func (s Session) Initialized() bool {
	return s.ID != ""
}

// Clone returns a copy whose history can be appended to without touching s.
func (s Session) Clone() Session {
	return Session{ID: s.ID, History: CloneHistory(s.History)}
}

// Summary describes a conversation in the chat list.
type Summary struct {
	ChatID string `json:"chat_id"`
	Title  string `json:"title"`
}
