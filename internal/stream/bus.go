package stream

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/soyeahso/botrelay/internal/config"
	"github.com/soyeahso/botrelay/internal/logging"
)

// MetadataStreamID is the message metadata key carrying the target stream.
const MetadataStreamID = "stream_id"

// Bus bundles the watermill publisher and subscribers shared by the stream
// relay and the pipeline dispatcher.
type Bus struct {
	Publisher message.Publisher
	// Subscriber delivers every message to every subscriber.
	Subscriber message.Subscriber
	// Workers shares messages between subscribers of one consumer group.
	Workers message.Subscriber

	closers []io.Closer
}

// NewBus builds the bus backend named by cfg.Bus.
func NewBus(ctx context.Context, cfg config.StreamConfig, log *logging.Logger) (*Bus, error) {
	switch cfg.Bus {
	case "", "gochannel":
		return NewGoChannelBus(log), nil
	case "redis":
		return NewRedisBus(ctx, cfg, log)
	default:
		return nil, errors.Errorf("unknown stream bus %q", cfg.Bus)
	}
}

// NewGoChannelBus is an in-process bus. Messages are not persisted.
func NewGoChannelBus(log *logging.Logger) *Bus {
	gc := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logging.Watermill(log.Sub("bus")))
	return &Bus{Publisher: gc, Subscriber: gc, Workers: gc, closers: []io.Closer{gc}}
}

// NewRedisBus connects to Redis streams. The fan-out subscriber reads
// without a consumer group; workers share cfg.Redis.Group.
func NewRedisBus(ctx context.Context, cfg config.StreamConfig, log *logging.Logger) (*Bus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "connecting to redis at %s", cfg.Redis.Addr)
	}

	wlog := logging.Watermill(log.Sub("bus"))
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, wlog)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "creating redis publisher")
	}

	fanout, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:       client,
		Unmarshaller: marshaler,
	}, wlog)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "creating redis subscriber")
	}

	consumer := cfg.Redis.Consumer
	if consumer == "" {
		consumer = defaultConsumerName()
	}
	workers, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: cfg.Redis.Group,
		Consumer:      consumer,
	}, wlog)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "creating redis group subscriber")
	}

	return &Bus{
		Publisher:  pub,
		Subscriber: fanout,
		Workers:    workers,
		closers:    []io.Closer{pub, fanout, workers, client},
	}, nil
}

// EnsureGroup creates group on stream at the tail ($) so a new group does
// not replay history. An existing group is left alone.
func EnsureGroup(ctx context.Context, client redis.UniversalClient, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return errors.Wrapf(err, "creating consumer group %s on %s", group, stream)
	}
	return nil
}

// EnsureRedisGroup is EnsureGroup for an address rather than a client.
func EnsureRedisGroup(ctx context.Context, cfg config.StreamConfig, stream string) error {
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
	defer client.Close()
	return EnsureGroup(ctx, client, stream, cfg.Redis.Group)
}

// Close releases every publisher, subscriber and connection of the bus.
func (b *Bus) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "botrelay"
	}
	return host + "-" + uuid.New().String()[:8]
}

// BusWriter publishes payloads to a watermill topic for the relays to pick up.
type BusWriter struct {
	streamID string
	topic    string
	pub      message.Publisher
	log      *logging.Logger
}

// NewBusWriter binds a writer to streamID on topic.
func NewBusWriter(streamID, topic string, pub message.Publisher, log *logging.Logger) *BusWriter {
	return &BusWriter{streamID: streamID, topic: topic, pub: pub, log: log}
}

func (w *BusWriter) StreamID() string { return w.streamID }

func (w *BusWriter) HasActiveChannel() bool {
	return w.streamID != "" && w.pub != nil
}

func (w *BusWriter) Push(ctx context.Context, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encoding stream payload")
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(MetadataStreamID, w.streamID)
	msg.SetContext(ctx)
	if err := w.pub.Publish(w.topic, msg); err != nil {
		return errors.Wrapf(err, "publishing to %s", w.topic)
	}
	return nil
}

// Relay copies bus messages into the local hub.
type Relay struct {
	sub   message.Subscriber
	topic string
	hub   *Hub
	log   *logging.Logger
}

// NewRelay builds a relay from the fan-out subscriber of bus.
func NewRelay(bus *Bus, topic string, hub *Hub, log *logging.Logger) *Relay {
	return &Relay{sub: bus.Subscriber, topic: topic, hub: hub, log: log.Sub("relay")}
}

// Run subscribes and broadcasts until ctx is cancelled or the subscription
// closes.
func (r *Relay) Run(ctx context.Context) error {
	ch, err := r.sub.Subscribe(ctx, r.topic)
	if err != nil {
		return errors.Wrapf(err, "subscribing to %s", r.topic)
	}
	r.log.Info().Str("topic", r.topic).Msg("relay started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				r.log.Info().Str("topic", r.topic).Msg("relay stopped")
				return nil
			}
			streamID := msg.Metadata.Get(MetadataStreamID)
			if streamID == "" {
				r.log.Warn().Str("msgId", msg.UUID).Msg("dropping message without stream id")
			} else {
				n := r.hub.Broadcast(streamID, msg.Payload)
				r.log.Trace().Str("stream", streamID).Int("subscribers", n).Msg("relayed")
			}
			msg.Ack()
		}
	}
}
