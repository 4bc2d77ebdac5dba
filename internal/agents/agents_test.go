package agents

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/botrelay/internal/chatconfig"
	"github.com/soyeahso/botrelay/internal/domain"
	"github.com/soyeahso/botrelay/internal/history"
	"github.com/soyeahso/botrelay/internal/llm"
	"github.com/soyeahso/botrelay/internal/logging"
	"github.com/soyeahso/botrelay/internal/reqctx"
)

func testLogger() *logging.Logger {
	return logging.New(io.Discard, "silent")
}

func replying(content string) *llm.MockClient {
	return &llm.MockClient{CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Content: content}, nil
	}}
}

func newSession(t *testing.T, cfg map[string]any) *reqctx.Context {
	t.Helper()
	log := testLogger()
	hist := history.NewMemory()
	ctx := context.Background()
	require.NoError(t, hist.Append(ctx, "t1",
		domain.NewChatMessage(domain.RoleUser, "Where is my order?"),
		domain.NewChatMessage(domain.RoleSystem, "internal note"),
		domain.NewChatMessage(domain.RoleAssistant, "It shipped yesterday."),
	))
	rc, err := reqctx.FromSnapshot(ctx, reqctx.Snapshot{ThreadID: "t1"}, reqctx.Deps{
		Configs: chatconfig.NewCache(chatconfig.MapSource{"default": cfg}, log),
		History: hist,
		Log:     log,
	})
	require.NoError(t, err)
	return rc
}

func TestRegistryGet(t *testing.T) {
	r := NewRegistry(replying("[]"), testLogger())

	a, err := r.Get(NameSuggestions)
	require.NoError(t, err)
	assert.Equal(t, NameSuggestions, a.Name())

	again, err := r.Get(NameSuggestions)
	require.NoError(t, err)
	assert.Same(t, a, again)

	r.Reset()
	rebuilt, err := r.Get(NameSuggestions)
	require.NoError(t, err)
	assert.NotSame(t, a, rebuilt)

	_, err = r.Get("astrology")
	assert.Error(t, err)
}

func TestRegistryNeedsClient(t *testing.T) {
	r := NewRegistry(nil, testLogger())
	_, err := r.Get(NameSentiment)
	assert.Error(t, err)
}

func TestRegistryCustomAgent(t *testing.T) {
	r := NewRegistry(replying("[]"), testLogger())
	r.Register("faq-suggestions", func(name string, c llm.Client, l *logging.Logger) Agent {
		return NewSuggestions(name, c, l)
	})
	a, err := r.Get("faq-suggestions")
	require.NoError(t, err)
	assert.Equal(t, "faq-suggestions", a.Name())
}

func TestSuggestionsProcess(t *testing.T) {
	client := replying("Here you go:\n```json\n[\"Track my order\", \" \", \"Change address\", \"Cancel\", \"Refund\"]\n```")
	rc := newSession(t, map[string]any{"max-suggestions": 3})

	res, err := NewSuggestions(NameSuggestions, client, testLogger()).Process(context.Background(), "Provide the suggestions list", rc)
	require.NoError(t, err)
	assert.False(t, res.Failed)
	assert.Equal(t, []string{"Track my order", "Change address", "Cancel"}, res.Metadata["suggestions"])

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].System, "at most 3")
	prompt := reqs[0].Messages[0].Content
	assert.Contains(t, prompt, "user: Where is my order?")
	assert.Contains(t, prompt, "assistant: It shipped yesterday.")
	assert.NotContains(t, prompt, "internal note")
	assert.Contains(t, prompt, "Provide the suggestions list")
}

func TestParseSuggestions(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want []string
	}{
		{"array", `["a", "b"]`, []string{"a", "b"}},
		{"wrapped", `{"suggestions": ["a"]}`, []string{"a"}},
		{"fenced", "```\n[\"x\"]\n```", []string{"x"}},
		{"trailing comma", `["a", "b",]`, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSuggestions(tt.out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSuggestionsFailure(t *testing.T) {
	client := &llm.MockClient{CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, errors.New("provider down")
	}}
	rc := newSession(t, map[string]any{})

	res, err := NewSuggestions(NameSuggestions, client, testLogger()).Process(context.Background(), "p", rc)
	require.NoError(t, err)
	assert.True(t, res.Failed)
	assert.Contains(t, res.Message, "provider down")
}

func TestSentimentProcess(t *testing.T) {
	tests := []struct {
		name  string
		out   string
		label string
		score float64
	}{
		{"negative", `{"sentiment": "Negative", "score": 0.9}`, Negative, 0.9},
		{"fenced positive", "```json\n{\"sentiment\": \"positive\", \"score\": 0.7}\n```", Positive, 0.7},
		{"unknown label", `{"sentiment": "furious", "score": 1}`, Neutral, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := replying(tt.out)
			res, err := NewSentiment(NameSentiment, client, testLogger()).Process(context.Background(), "this is awful", nil)
			require.NoError(t, err)
			assert.False(t, res.Failed)
			assert.Equal(t, tt.label, res.Metadata["sentiment"])
			assert.InDelta(t, tt.score, res.Metadata["score"], 0.0001)

			req := client.Requests()[0]
			assert.Equal(t, "json", req.Format)
			assert.Equal(t, "this is awful", req.Messages[0].Content)
		})
	}
}

func TestSentimentUnparseable(t *testing.T) {
	res, err := NewSentiment(NameSentiment, replying("I think they are upset"), testLogger()).Process(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.True(t, res.Failed)
}
