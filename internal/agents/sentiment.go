package agents

import (
	"context"
	"strings"

	"github.com/soyeahso/botrelay/internal/domain"
	"github.com/soyeahso/botrelay/internal/llm"
	"github.com/soyeahso/botrelay/internal/logging"
	"github.com/soyeahso/botrelay/internal/reqctx"
)

// NameSentiment is the default sentiment agent.
const NameSentiment = "sentiment"

// Sentiment labels.
const (
	Positive = "positive"
	Neutral  = "neutral"
	Negative = "negative"
)

const sentimentPrompt = `Classify the sentiment of the user's latest message.
Reply with a JSON object {"sentiment": "positive" | "neutral" | "negative", "score": <number between 0 and 1>} and nothing else.`

// Sentiment classifies the user's latest message.
type Sentiment struct {
	name   string
	client llm.Client
	log    *logging.Logger
}

// NewSentiment builds a sentiment agent.
func NewSentiment(name string, client llm.Client, log *logging.Logger) *Sentiment {
	return &Sentiment{name: name, client: client, log: log.Sub("agent." + name)}
}

func (s *Sentiment) Name() string { return s.name }

// Process returns metadata "sentiment" (a label) and "score".
func (s *Sentiment) Process(ctx context.Context, prompt string, _ *reqctx.Context) (*domain.AgentResult, error) {
	resp, err := s.client.Complete(ctx, llm.CompletionRequest{
		System:   sentimentPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Format:   "json",
	})
	if err != nil {
		return &domain.AgentResult{Failed: true, Message: err.Error()}, nil
	}

	var out struct {
		Sentiment string  `json:"sentiment"`
		Score     float64 `json:"score"`
	}
	if err := llm.DecodeJSON(llm.CodeBlockOrText(resp.Content), &out); err != nil {
		s.log.Debug().Err(err).Str("output", resp.Content).Msg("unparseable sentiment")
		return &domain.AgentResult{Failed: true, Message: err.Error()}, nil
	}

	label := strings.ToLower(strings.TrimSpace(out.Sentiment))
	switch label {
	case Positive, Neutral, Negative:
	default:
		label = Neutral
	}
	return &domain.AgentResult{Metadata: map[string]any{"sentiment": label, "score": out.Score}}, nil
}
