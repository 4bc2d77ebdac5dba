// Package agents holds the best-effort post-processing collaborators that
// run after a reply has been delivered.
package agents

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/soyeahso/botrelay/internal/domain"
	"github.com/soyeahso/botrelay/internal/llm"
	"github.com/soyeahso/botrelay/internal/logging"
	"github.com/soyeahso/botrelay/internal/reqctx"
)

// Agent processes a prompt in the context of a conversation.
type Agent interface {
	Name() string
	Process(ctx context.Context, prompt string, rc *reqctx.Context) (*domain.AgentResult, error)
}

// Builder constructs an agent.
type Builder func(name string, client llm.Client, log *logging.Logger) Agent

// Registry builds agents by name and keeps them until Reset.
type Registry struct {
	mu       sync.Mutex
	client   llm.Client
	builders map[string]Builder
	agents   map[string]Agent
	log      *logging.Logger
}

// NewRegistry creates a registry with the suggestions and sentiment agents.
func NewRegistry(client llm.Client, log *logging.Logger) *Registry {
	r := &Registry{
		client:   client,
		builders: make(map[string]Builder),
		agents:   make(map[string]Agent),
		log:      log.Sub("agents"),
	}
	r.Register(NameSuggestions, func(name string, c llm.Client, l *logging.Logger) Agent {
		return NewSuggestions(name, c, l)
	})
	r.Register(NameSentiment, func(name string, c llm.Client, l *logging.Logger) Agent {
		return NewSentiment(name, c, l)
	})
	return r
}

// Register adds a builder under name.
func (r *Registry) Register(name string, b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = b
}

// Get returns the named agent. Agents need an LLM client.
func (r *Registry) Get(name string) (Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[name]; ok {
		return a, nil
	}
	b, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", name)
	}
	if r.client == nil {
		return nil, fmt.Errorf("agent %q needs an llm provider", name)
	}
	a := b(name, r.client, r.log)
	r.agents[name] = a
	return a, nil
}

// Reset drops every built agent.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.agents)
}

// transcript renders the last n replayable messages as "role: text" lines.
func transcript(history []domain.ChatMessage, n int) string {
	var lines []string
	for _, m := range history {
		if m.Replayable() && m.Message != "" {
			lines = append(lines, m.Role+": "+m.Message)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
