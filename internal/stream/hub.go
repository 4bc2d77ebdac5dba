package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/soyeahso/botrelay/internal/logging"
)

// ErrSubscriberClosed is returned when sending to a closed subscriber.
var ErrSubscriberClosed = errors.New("subscriber closed")

// Conn is the part of a websocket connection the hub writes to.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Subscriber is one websocket connection listening on a stream.
type Subscriber struct {
	ID          string
	StreamID    string
	ConnectedAt time.Time

	conn   Conn
	mu     sync.Mutex
	closed bool
}

// NewSubscriber wraps conn as a listener on streamID.
func NewSubscriber(streamID string, conn Conn) *Subscriber {
	return &Subscriber{
		ID:          uuid.New().String(),
		StreamID:    streamID,
		ConnectedAt: time.Now(),
		conn:        conn,
	}
}

// Send writes a text frame. Thread-safe.
func (s *Subscriber) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSubscriberClosed
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the underlying connection once.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Hub tracks websocket subscribers by stream id.
type Hub struct {
	mu      sync.RWMutex
	streams map[string]map[string]*Subscriber // streamID → subID → Subscriber
	log     *logging.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logging.Logger) *Hub {
	return &Hub{
		streams: make(map[string]map[string]*Subscriber),
		log:     log.Sub("hub"),
	}
}

// Add registers a subscriber.
func (h *Hub) Add(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.streams[s.StreamID]
	if !ok {
		subs = make(map[string]*Subscriber)
		h.streams[s.StreamID] = subs
	}
	subs[s.ID] = s
	h.log.Info().Str("stream", s.StreamID).Str("subId", s.ID).Msg("subscriber connected")
}

// Remove unregisters a subscriber. The connection is not closed.
func (h *Hub) Remove(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s.StreamID, s.ID)
	h.log.Info().Str("stream", s.StreamID).Str("subId", s.ID).Msg("subscriber disconnected")
}

func (h *Hub) removeLocked(streamID, subID string) {
	subs, ok := h.streams[streamID]
	if !ok {
		return
	}
	delete(subs, subID)
	if len(subs) == 0 {
		delete(h.streams, streamID)
	}
}

// Count returns the number of subscribers on streamID.
func (h *Hub) Count(streamID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[streamID])
}

// Total returns the number of subscribers across all streams.
func (h *Hub) Total() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.streams {
		n += len(subs)
	}
	return n
}

// Broadcast sends data to every subscriber of streamID and returns how many
// received it. A subscriber whose send fails is dropped and closed.
func (h *Hub) Broadcast(streamID string, data []byte) int {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.streams[streamID]))
	for _, s := range h.streams[streamID] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	sent := 0
	var failed []*Subscriber
	for _, s := range subs {
		if err := s.Send(data); err != nil {
			h.log.Warn().Err(err).Str("stream", streamID).Str("subId", s.ID).Msg("broadcast send failed, dropping subscriber")
			failed = append(failed, s)
			continue
		}
		sent++
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, s := range failed {
			h.removeLocked(streamID, s.ID)
		}
		h.mu.Unlock()
		for _, s := range failed {
			_ = s.Close()
		}
	}
	return sent
}

// CloseAll closes and removes every subscriber.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, subs := range h.streams {
		for _, s := range subs {
			_ = s.Close()
		}
		delete(h.streams, id)
	}
}

// HubWriter pushes payloads directly into the local hub.
type HubWriter struct {
	streamID string
	hub      *Hub
}

// NewHubWriter binds a writer to streamID on hub.
func NewHubWriter(streamID string, hub *Hub) *HubWriter {
	return &HubWriter{streamID: streamID, hub: hub}
}

func (w *HubWriter) StreamID() string { return w.streamID }

// HasActiveChannel reports whether the writer has a stream to deliver on.
// Clients may subscribe after the first push, so the subscriber count is
// not consulted.
func (w *HubWriter) HasActiveChannel() bool {
	return w.streamID != "" && w.hub != nil
}

func (w *HubWriter) Push(_ context.Context, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encoding stream payload")
	}
	w.hub.Broadcast(w.streamID, data)
	return nil
}
