package stream

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/botrelay/internal/config"
)

func TestRelayDeliversBusMessagesToHub(t *testing.T) {
	log := testLog()
	bus := NewGoChannelBus(log)
	defer bus.Close()

	hub := NewHub(log)
	conn := &fakeConn{}
	hub.Add(NewSubscriber("s1", conn))
	other := &fakeConn{}
	hub.Add(NewSubscriber("s2", other))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay := NewRelay(bus, "activities", hub, log)
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	w := NewBusWriter("s1", "activities", bus.Publisher, log)
	assert.True(t, w.HasActiveChannel())

	// the relay subscribes asynchronously; keep pushing until a frame lands
	require.Eventually(t, func() bool {
		_ = w.Push(ctx, map[string]any{"watermark": "42"})
		return len(conn.received()) > 0
	}, 2*time.Second, 20*time.Millisecond)

	assert.Contains(t, string(conn.received()[0]), `"watermark":"42"`)
	assert.Empty(t, other.received())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRelayDropsMessagesWithoutStreamID(t *testing.T) {
	log := testLog()
	bus := NewGoChannelBus(log)
	defer bus.Close()

	hub := NewHub(log)
	conn := &fakeConn{}
	hub.Add(NewSubscriber("s1", conn))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = NewRelay(bus, "activities", hub, log).Run(ctx) }()

	w := NewBusWriter("s1", "activities", bus.Publisher, log)
	require.Eventually(t, func() bool {
		anon := message.NewMessage(watermill.NewUUID(), []byte(`{"anon":true}`))
		_ = bus.Publisher.Publish("activities", anon)
		_ = w.Push(ctx, map[string]any{"named": true})
		return len(conn.received()) > 0
	}, 2*time.Second, 20*time.Millisecond)

	for _, frame := range conn.received() {
		assert.NotContains(t, string(frame), "anon")
	}
}

func TestNewBusUnknownBackend(t *testing.T) {
	_, err := NewBus(context.Background(), config.StreamConfig{Bus: "kafka"}, testLog())
	assert.Error(t, err)
}

func TestNewBusGoChannel(t *testing.T) {
	bus, err := NewBus(context.Background(), config.StreamConfig{Bus: "gochannel"}, testLog())
	require.NoError(t, err)
	assert.NotNil(t, bus.Publisher)
	assert.NotNil(t, bus.Workers)
	assert.NoError(t, bus.Close())
}
