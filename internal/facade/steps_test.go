package facade

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/botrelay/internal/activity"
	"github.com/soyeahso/botrelay/internal/agents"
	"github.com/soyeahso/botrelay/internal/config"
	"github.com/soyeahso/botrelay/internal/domain"
	"github.com/soyeahso/botrelay/internal/logging"
	"github.com/soyeahso/botrelay/internal/pipeline"
	"github.com/soyeahso/botrelay/internal/reqctx"
)

func runPipeline(t *testing.T, e *testEnv, cfg config.PipelineConfig) *pipeline.Instance {
	t.Helper()
	engine := pipeline.NewEngine(pipeline.NewMemoryStore(), logging.New(io.Discard, "silent"))
	Steps{
		Deps:    e.deps,
		Session: reqctx.Deps{Configs: e.deps.Configs, History: e.history, Log: e.deps.Log},
	}.Register(engine, cfg)
	assert.Equal(t, []string{StepPromptDelivery, StepSuggestions, StepSentiment}, engine.Steps())

	ctx := context.Background()
	inst, err := engine.Start(ctx, pipeline.Input{
		Snapshot: reqctx.Snapshot{ThreadID: "t1", UserID: "u-1"},
		Prompt:   "where is my truck",
	})
	require.NoError(t, err)
	engine.Wait()

	final, _, err := engine.Status(ctx, inst.ID)
	require.NoError(t, err)
	return final
}

func TestStepsRunConversationPipeline(t *testing.T) {
	e := newEnv(t, responding(domain.ChatResponse{Message: "On its way"}), nil)
	sugg := &stubAgent{name: agents.NameSuggestions, result: &domain.AgentResult{
		Metadata: map[string]any{"suggestions": []string{"Thanks", "When?"}},
	}}
	sent := &stubAgent{name: agents.NameSentiment, result: &domain.AgentResult{
		Metadata: map[string]any{"sentiment": agents.Negative, "score": 0.9},
	}}
	e.deps.Agents = agentMap{agents.NameSuggestions: sugg, agents.NameSentiment: sent}

	final := runPipeline(t, e, config.PipelineConfig{Sentiment: true})
	assert.Equal(t, pipeline.StatusComplete, final.Status)

	var texts []string
	var actions int
	for _, a := range e.sink.ofType(activity.TypeMessage) {
		texts = append(texts, a.Text)
		if a.SuggestedActions != nil {
			actions += len(a.SuggestedActions.Actions)
		}
	}
	assert.Contains(t, texts, "On its way")
	assert.Equal(t, 2, actions)
	assert.Equal(t, []string{"where is my truck"}, sent.seen)

	msgs, err := e.history.Load(context.Background(), "t1")
	require.NoError(t, err)
	var notes int
	for _, m := range msgs {
		if m.Role == domain.RoleSystem {
			notes++
		}
	}
	assert.Equal(t, 1, notes)
}

func TestStepsAbortOnFailedPrompt(t *testing.T) {
	e := newEnv(t, responding(domain.ChatResponse{Failed: true}), nil)
	sugg := &stubAgent{name: agents.NameSuggestions, err: errors.New("unused")}
	e.deps.Agents = agentMap{agents.NameSuggestions: sugg}

	final := runPipeline(t, e, config.PipelineConfig{})
	assert.Equal(t, pipeline.StatusAborted, final.Status)
	assert.Empty(t, sugg.seen)
}
