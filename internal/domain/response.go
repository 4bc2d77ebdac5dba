package domain

// ChatResponse is the outcome of a response-generation call.
// Filtered and Failed are returned as values, not errors.
type ChatResponse struct {
	Message   string         `json:"message"`
	Failed    bool           `json:"failed,omitempty"`
	Filtered  bool           `json:"filtered,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Citations []Citation     `json:"citations,omitempty"`
}

// AgentResult is what a post-processing collaborator returns.
type AgentResult struct {
	Failed   bool           `json:"failed,omitempty"`
	Message  string         `json:"message,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
