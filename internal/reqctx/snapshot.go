package reqctx

import (
	"maps"
	"net/http"
)

// Snapshot is the serialisable form of a Context, carried by pipeline
// instances so a step can rebuild its session on another worker.
type Snapshot struct {
	Method            string              `json:"method,omitempty"`
	URL               string              `json:"url,omitempty"`
	Body              map[string]any      `json:"body,omitempty"`
	Params            map[string][]string `json:"params,omitempty"`
	RouteParams       map[string]string   `json:"route_params,omitempty"`
	Headers           map[string][]string `json:"headers,omitempty"`
	ThreadID          string              `json:"thread_id,omitempty"`
	StreamID          string              `json:"stream_id,omitempty"`
	BotConversationID string              `json:"bot_conversation_id,omitempty"`
	ConfigName        string              `json:"config_name,omitempty"`
	UserID            string              `json:"user_id,omitempty"`
	UserName          string              `json:"user_name,omitempty"`
	Metadata          map[string]any      `json:"metadata,omitempty"`
}

// sensitiveHeaders are never persisted.
var sensitiveHeaders = []string{"Authorization", "Cookie", "Ocp-Apim-Subscription-Key"}

// Snapshot captures the request data and resolved identifiers.
func (c *Context) Snapshot() Snapshot {
	headers := c.Header.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	for _, h := range sensitiveHeaders {
		headers.Del(h)
	}

	route := make(map[string]string, len(c.Route))
	for k := range c.Route {
		route[k] = c.Route.Get(k)
	}

	return Snapshot{
		Method:            c.Method,
		URL:               c.URL,
		Body:              maps.Clone(c.Body),
		Params:            map[string][]string(c.Query),
		RouteParams:       route,
		Headers:           map[string][]string(headers),
		ThreadID:          c.ThreadID,
		StreamID:          c.StreamID,
		BotConversationID: c.BotConversationID,
		ConfigName:        c.ConfigName,
		UserID:            c.UserID,
		UserName:          c.UserName,
		Metadata:          maps.Clone(c.Metadata),
	}
}
