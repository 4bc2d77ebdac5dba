package activity

import "github.com/soyeahso/botrelay/internal/domain"

// Entity types.
const (
	EntityMetadata  = "metadata"
	EntityCitations = "citations"
	EntityContent   = "content"
)

// Entity is a tagged payload: {"type": X, X: payload}.
type Entity map[string]any

// Type returns the entity discriminator.
func (e Entity) Type() string {
	s, _ := e["type"].(string)
	return s
}

// Payload returns the value stored under the discriminator key.
func (e Entity) Payload() any {
	return e[e.Type()]
}

func newEntity(kind string, payload any) Entity {
	return Entity{"type": kind, kind: payload}
}

// MetadataEntity wraps response or message metadata.
func MetadataEntity(md map[string]any) Entity {
	return newEntity(EntityMetadata, md)
}

// CitationsEntity wraps a list of citations.
func CitationsEntity(citations []domain.Citation) Entity {
	list := make([]map[string]any, 0, len(citations))
	for _, c := range citations {
		list = append(list, c.ToMap())
	}
	return newEntity(EntityCitations, list)
}

// ContentEntity wraps arbitrary structured message content.
func ContentEntity(content any) Entity {
	return newEntity(EntityContent, content)
}

// Attachment carries a structured response body.
type Attachment struct {
	ContentType string `json:"contentType"`
	Content     any    `json:"content"`
}

// CardAction is a quick-reply button.
type CardAction struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// SuggestedActions lists quick replies offered to the user.
type SuggestedActions struct {
	Actions []CardAction `json:"actions"`
}

// ImBackActions turns suggestion strings into imBack quick replies.
func ImBackActions(suggestions []string) *SuggestedActions {
	actions := make([]CardAction, 0, len(suggestions))
	for _, s := range suggestions {
		actions = append(actions, CardAction{Type: "imBack", Title: s, Value: s})
	}
	return &SuggestedActions{Actions: actions}
}
