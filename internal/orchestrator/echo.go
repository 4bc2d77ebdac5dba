package orchestrator

import (
	"context"

	"github.com/soyeahso/botrelay/internal/chatconfig"
	"github.com/soyeahso/botrelay/internal/domain"
	"github.com/soyeahso/botrelay/internal/reqctx"
)

// TypeEcho repeats the prompt back. Useful without an LLM.
const TypeEcho = "echo"

// Echo answers with the prompt, optionally prefixed.
type Echo struct {
	name         string
	prefix       string
	responseType string
}

// NewEcho builds an echo orchestrator.
func NewEcho(cfg chatconfig.ChatConfig, _ Deps) (Orchestrator, error) {
	return &Echo{
		name:         cfg.Name(),
		prefix:       cfg.String("echo-prefix", ""),
		responseType: cfg.String("response-type", ""),
	}, nil
}

func (e *Echo) Name() string { return e.name }

func (e *Echo) SendMessage(ctx context.Context, prompt string, rc *reqctx.Context, opts SendOptions) (*domain.ChatResponse, error) {
	opts.notify()

	reply := e.prefix + prompt
	meta := map[string]any{}
	if e.responseType != "" {
		meta["response-type"] = e.responseType
	}
	if err := recordTurn(ctx, rc, prompt, reply, nil); err != nil {
		return nil, err
	}
	return &domain.ChatResponse{Message: reply, Metadata: meta}, nil
}
