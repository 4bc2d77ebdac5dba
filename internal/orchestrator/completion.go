package orchestrator

import (
	"context"
	"errors"

	"github.com/soyeahso/botrelay/internal/chatconfig"
	"github.com/soyeahso/botrelay/internal/domain"
	"github.com/soyeahso/botrelay/internal/llm"
	"github.com/soyeahso/botrelay/internal/logging"
	"github.com/soyeahso/botrelay/internal/reqctx"
)

// TypeCompletion is a single LLM call over the thread's history.
const TypeCompletion = "completion"

// maxHistory bounds how many prior turns are sent to the model.
const maxHistory = 20

// Completion sends the conversation to the LLM and returns its reply.
type Completion struct {
	name        string
	system      string
	model       string
	temperature *float64
	client      llm.Client
	log         *logging.Logger
}

// NewCompletion builds a completion orchestrator. It needs an LLM client.
func NewCompletion(cfg chatconfig.ChatConfig, deps Deps) (Orchestrator, error) {
	if deps.LLM == nil {
		return nil, errors.New("completion orchestrator needs an llm provider")
	}
	c := &Completion{
		name:   cfg.Name(),
		system: cfg.String("system-prompt", ""),
		model:  cfg.String("model", ""),
		client: deps.LLM,
		log:    deps.Log.Sub("orchestrator." + cfg.Name()),
	}
	if v, ok := cfg["temperature"].(float64); ok {
		c.temperature = &v
	}
	return c, nil
}

func (c *Completion) Name() string { return c.name }

func (c *Completion) SendMessage(ctx context.Context, prompt string, rc *reqctx.Context, opts SendOptions) (*domain.ChatResponse, error) {
	if err := rc.InitHistory(ctx); err != nil {
		return nil, err
	}

	history := rc.History()
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	msgs := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		if !m.Replayable() || m.Message == "" {
			continue
		}
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Message})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: prompt})

	opts.notify()

	cctx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	resp, err := c.client.Complete(cctx, llm.CompletionRequest{
		Model:       c.model,
		System:      c.system,
		Messages:    msgs,
		Temperature: c.temperature,
	})
	if err != nil {
		c.log.Error().Err(err).Str("provider", c.client.Name()).Msg("completion failed")
		return &domain.ChatResponse{Failed: true, Message: err.Error()}, nil
	}

	if resp.StopReason == llm.StopContentFilter {
		c.log.Warn().Msg("response filtered by provider")
		if err := recordTurn(ctx, rc, prompt, "", nil); err != nil {
			c.log.Warn().Err(err).Msg("failed to record filtered turn")
		}
		return &domain.ChatResponse{Filtered: true}, nil
	}

	meta := map[string]any{
		"_model":         resp.Model,
		"_input_tokens":  resp.Usage.InputTokens,
		"_output_tokens": resp.Usage.OutputTokens,
	}
	if err := recordTurn(ctx, rc, prompt, resp.Content, meta); err != nil {
		c.log.Warn().Err(err).Msg("failed to record turn")
	}
	return &domain.ChatResponse{Message: resp.Content, Metadata: meta}, nil
}
