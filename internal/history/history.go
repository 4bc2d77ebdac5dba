// Package history defines where conversation history comes from.
package history

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/botrelay/internal/domain"
)

// Provider loads and records the messages of a conversation thread.
type Provider interface {
	// Load returns the thread's messages in order. Unknown threads yield
	// an empty list.
	Load(ctx context.Context, threadID string) ([]domain.ChatMessage, error)

	// Append records messages at the end of the thread, creating it if needed.
	Append(ctx context.Context, threadID string, msgs ...domain.ChatMessage) error
}

// Lister is implemented by providers that can enumerate threads.
type Lister interface {
	Threads(ctx context.Context) ([]domain.Thread, error)
}

type thread struct {
	createdAt time.Time
	updatedAt time.Time
	messages  []domain.ChatMessage
}

// Memory is an in-memory Provider.
type Memory struct {
	mu      sync.RWMutex
	threads map[string]*thread
}

// NewMemory creates an empty in-memory provider.
func NewMemory() *Memory {
	return &Memory{threads: make(map[string]*thread)}
}

func (m *Memory) Load(_ context.Context, threadID string) ([]domain.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.threads[threadID]
	if !ok {
		return []domain.ChatMessage{}, nil
	}
	return slices.Clone(t.messages), nil
}

func (m *Memory) Append(_ context.Context, threadID string, msgs ...domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	t, ok := m.threads[threadID]
	if !ok {
		t = &thread{createdAt: now}
		m.threads[threadID] = t
	}
	t.messages = append(t.messages, msgs...)
	t.updatedAt = now
	return nil
}

// Threads lists every thread, most recently updated first.
func (m *Memory) Threads(_ context.Context) ([]domain.Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Thread, 0, len(m.threads))
	for id, t := range m.threads {
		out = append(out, domain.Thread{
			ID:           id,
			CreatedAt:    t.createdAt,
			UpdatedAt:    t.updatedAt,
			MessageCount: len(t.messages),
		})
	}
	slices.SortFunc(out, func(a, b domain.Thread) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return out, nil
}
