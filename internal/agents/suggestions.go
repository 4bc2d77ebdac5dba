package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/botrelay/internal/domain"
	"github.com/soyeahso/botrelay/internal/llm"
	"github.com/soyeahso/botrelay/internal/logging"
	"github.com/soyeahso/botrelay/internal/reqctx"
)

// NameSuggestions is the default suggestions agent.
const NameSuggestions = "suggestions"

const defaultMaxSuggestions = 3

const suggestionsPrompt = `You suggest follow-up questions for a chat user.
Read the conversation and propose at most %d short questions the user is likely to ask next.
Reply with a JSON array of strings and nothing else.`

// Suggestions proposes quick-reply follow-ups for the conversation.
type Suggestions struct {
	name   string
	client llm.Client
	log    *logging.Logger
}

// NewSuggestions builds a suggestions agent.
func NewSuggestions(name string, client llm.Client, log *logging.Logger) *Suggestions {
	return &Suggestions{name: name, client: client, log: log.Sub("agent." + name)}
}

func (s *Suggestions) Name() string { return s.name }

// Process returns metadata["suggestions"] as a []string.
func (s *Suggestions) Process(ctx context.Context, prompt string, rc *reqctx.Context) (*domain.AgentResult, error) {
	if err := rc.InitHistory(ctx); err != nil {
		return nil, err
	}
	limit := rc.ConfigInt("max-suggestions", defaultMaxSuggestions)

	resp, err := s.client.Complete(ctx, llm.CompletionRequest{
		System: fmt.Sprintf(suggestionsPrompt, limit),
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Conversation:\n" + transcript(rc.History(), 10) + "\n\n" + prompt},
		},
	})
	if err != nil {
		return &domain.AgentResult{Failed: true, Message: err.Error()}, nil
	}

	list, err := parseSuggestions(resp.Content)
	if err != nil {
		s.log.Debug().Err(err).Str("output", resp.Content).Msg("unparseable suggestions")
		return &domain.AgentResult{Failed: true, Message: err.Error()}, nil
	}
	if len(list) > limit {
		list = list[:limit]
	}
	return &domain.AgentResult{Metadata: map[string]any{"suggestions": list}}, nil
}

// parseSuggestions accepts a JSON array of strings, or an object holding
// one under "suggestions", optionally inside a code fence.
func parseSuggestions(out string) ([]string, error) {
	body := llm.CodeBlockOrText(out)

	var list []string
	if err := llm.DecodeJSON(body, &list); err != nil {
		var wrapped struct {
			Suggestions []string `json:"suggestions"`
		}
		if werr := llm.DecodeJSON(body, &wrapped); werr != nil {
			return nil, err
		}
		list = wrapped.Suggestions
	}

	clean := make([]string, 0, len(list))
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			clean = append(clean, s)
		}
	}
	return clean, nil
}
