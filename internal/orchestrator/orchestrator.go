// Package orchestrator produces AI responses for a conversation. The
// implementations here are reference orchestrators; real deployments
// register their own types on the Registry.
package orchestrator

import (
	"context"
	"time"

	"github.com/soyeahso/botrelay/internal/domain"
	"github.com/soyeahso/botrelay/internal/reqctx"
)

// WorkingNotifier asks the caller for another typing pulse during long
// internal steps.
type WorkingNotifier func()

// SendOptions are the per-request knobs passed to SendMessage.
type SendOptions struct {
	UseFunctions    bool
	Timeout         time.Duration
	WorkingNotifier WorkingNotifier
}

func (o SendOptions) notify() {
	if o.WorkingNotifier != nil {
		o.WorkingNotifier()
	}
}

// Orchestrator turns a prompt into a response. Filtered and failed
// outcomes are reported on the response, not as errors.
type Orchestrator interface {
	Name() string
	SendMessage(ctx context.Context, prompt string, rc *reqctx.Context, opts SendOptions) (*domain.ChatResponse, error)
}

// recordTurn appends the user prompt and, when non-empty, the reply to the
// thread's history.
func recordTurn(ctx context.Context, rc *reqctx.Context, prompt, reply string, meta map[string]any) error {
	if err := rc.AddMessage(ctx, domain.NewChatMessage(domain.RoleUser, prompt)); err != nil {
		return err
	}
	if reply == "" {
		return nil
	}
	msg := domain.NewChatMessage(domain.RoleAssistant, reply)
	for k, v := range meta {
		msg.AddMetadata(k, v)
	}
	return rc.AddMessage(ctx, msg)
}
