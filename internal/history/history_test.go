package history

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/botrelay/internal/domain"
)

func TestMemoryLoadUnknown(t *testing.T) {
	m := NewMemory()
	msgs, err := m.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestMemoryAppendPreservesOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Append(ctx, "t1", domain.NewChatMessage(domain.RoleUser, "one")))
	require.NoError(t, m.Append(ctx, "t1",
		domain.NewChatMessage(domain.RoleAssistant, "two"),
		domain.NewChatMessage(domain.RoleUser, "three"),
	))

	msgs, err := m.Load(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Message)
	assert.Equal(t, "two", msgs[1].Message)
	assert.Equal(t, "three", msgs[2].Message)
}

func TestMemoryLoadReturnsCopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Append(ctx, "t1", domain.NewChatMessage(domain.RoleUser, "one")))

	msgs, _ := m.Load(ctx, "t1")
	msgs[0].Message = "changed"

	again, _ := m.Load(ctx, "t1")
	assert.Equal(t, "one", again[0].Message)
}

func TestMemoryThreads(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Append(ctx, "a", domain.NewChatMessage(domain.RoleUser, "x")))
	require.NoError(t, m.Append(ctx, "b", domain.NewChatMessage(domain.RoleUser, "y"), domain.NewChatMessage(domain.RoleAssistant, "z")))

	threads, err := m.Threads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 2)

	counts := map[string]int{}
	for _, th := range threads {
		counts[th.ID] = th.MessageCount
		assert.False(t, th.CreatedAt.IsZero())
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, counts)
}

func TestMemoryConcurrentAppend(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Append(ctx, "t", domain.NewChatMessage(domain.RoleUser, "m"))
		}()
	}
	wg.Wait()

	msgs, err := m.Load(ctx, "t")
	require.NoError(t, err)
	assert.Len(t, msgs, 50)
}

var (
	_ Provider = (*Memory)(nil)
	_ Lister   = (*Memory)(nil)
)
