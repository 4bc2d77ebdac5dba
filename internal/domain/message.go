package domain

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleBot       = "bot"
)

// Citation is a source reference attached to a response.
type Citation struct {
	ID       string         `json:"id,omitempty"`
	Title    string         `json:"title,omitempty"`
	URL      string         `json:"url,omitempty"`
	Content  string         `json:"content,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ToMap returns the citation as a plain map for activity entities.
func (c Citation) ToMap() map[string]any {
	m := map[string]any{}
	if c.ID != "" {
		m["id"] = c.ID
	}
	if c.Title != "" {
		m["title"] = c.Title
	}
	if c.URL != "" {
		m["url"] = c.URL
	}
	if c.Content != "" {
		m["content"] = c.Content
	}
	if len(c.Metadata) > 0 {
		m["metadata"] = c.Metadata
	}
	return m
}

// ChatMessage is a single turn in a conversation's history.
type ChatMessage struct {
	Role      string         `json:"role"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Citations []Citation     `json:"citations,omitempty"`
	Content   any            `json:"content,omitempty"`
}

// NewChatMessage creates a message stamped with the current time.
func NewChatMessage(role, message string) ChatMessage {
	return ChatMessage{Role: role, Message: message, Timestamp: time.Now().UTC()}
}

// AddMetadata sets a metadata key, allocating the map if needed.
func (m *ChatMessage) AddMetadata(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	m.Metadata[key] = value
}

// Replayable reports whether the message is shown to the client on rejoin.
func (m ChatMessage) Replayable() bool {
	return m.Role == RoleUser || m.Role == RoleAssistant
}
