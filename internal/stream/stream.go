// Package stream delivers activity batches to connected web chat clients.
//
// A Writer is bound to one stream id. Payloads go either straight into the
// local websocket Hub or onto a watermill topic, from which every gateway
// replica's Relay broadcasts into its own Hub.
package stream

import (
	"context"

	"github.com/soyeahso/botrelay/internal/config"
	"github.com/soyeahso/botrelay/internal/logging"
)

// Writer pushes payloads to the clients subscribed to one stream.
type Writer interface {
	StreamID() string
	Push(ctx context.Context, payload map[string]any) error
	HasActiveChannel() bool
}

// NopWriter is used when no stream can be resolved for a conversation.
type NopWriter struct{}

func (NopWriter) StreamID() string { return "" }

func (NopWriter) Push(context.Context, map[string]any) error { return nil }

func (NopWriter) HasActiveChannel() bool { return false }

// Factory hands out writers for stream ids according to the configured mode.
type Factory struct {
	mode  string
	hub   *Hub
	bus   *Bus
	topic string
	log   *logging.Logger
}

// NewFactory builds a Factory. bus may be nil in hub mode.
func NewFactory(cfg config.StreamConfig, hub *Hub, bus *Bus, log *logging.Logger) *Factory {
	return &Factory{
		mode:  cfg.Mode,
		hub:   hub,
		bus:   bus,
		topic: cfg.Topic,
		log:   log.Sub("stream"),
	}
}

// Writer returns the writer for streamID.
func (f *Factory) Writer(streamID string) Writer {
	if streamID == "" {
		return NopWriter{}
	}
	if f.mode == "bus" && f.bus != nil {
		return &BusWriter{streamID: streamID, topic: f.topic, pub: f.bus.Publisher, log: f.log}
	}
	return &HubWriter{streamID: streamID, hub: f.hub}
}
