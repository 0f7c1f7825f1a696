package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	DefaultChannel      = "nlud:events"
	redisBuffer         = 256
	redisPublishTimeout = 2 * time.Second
)

// RedisBus broadcasts events to other replicas over a Redis pub/sub channel
// and delivers theirs. Events published by this process are stamped with its
// instance id and skipped on receipt.
type RedisBus struct {
	client   *redis.Client
	channel  string
	instance string
	log      zerolog.Logger

	out  chan Event
	done chan struct{}
}

// NewRedisBus starts the background publisher. Call Close to stop it.
func NewRedisBus(client *redis.Client, channel string, log zerolog.Logger) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	b := &RedisBus{
		client:   client,
		channel:  channel,
		instance: uuid.NewString(),
		log:      log.With().Str("component", "events").Str("channel", channel).Logger(),
		out:      make(chan Event, redisBuffer),
		done:     make(chan struct{}),
	}
	go b.loop()
	return b
}

// Instance returns the id stamped on events published by this process.
func (b *RedisBus) Instance() string { return b.instance }

// Publish enqueues e for broadcast. Events are dropped when the buffer is full.
func (b *RedisBus) Publish(e Event) {
	e.Origin = b.instance
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	select {
	case b.out <- e:
	default:
		b.log.Warn().Str("event", e.Name).Msg("event buffer full, dropping")
	}
}

func (b *RedisBus) loop() {
	defer close(b.done)
	for e := range b.out {
		payload, err := json.Marshal(e)
		if err != nil {
			b.log.Error().Err(err).Str("event", e.Name).Msg("encode event")
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), redisPublishTimeout)
		if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
			b.log.Error().Err(err).Str("event", e.Name).Msg("publish event")
		}
		cancel()
	}
}

// Subscribe delivers events from other replicas to h until ctx is done.
func (b *RedisBus) Subscribe(ctx context.Context, h Handler) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer func() {
		if err := pubsub.Close(); err != nil {
			b.log.Error().Err(err).Msg("close pubsub")
		}
	}()
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			e, keep := b.decode(msg.Payload)
			if keep {
				h(e)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (b *RedisBus) decode(payload string) (Event, bool) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		b.log.Error().Err(err).Msg("decode event")
		return Event{}, false
	}
	if e.Origin == b.instance {
		return Event{}, false
	}
	return e, true
}

// Close flushes pending events and stops the publisher. It does not close
// the Redis client.
func (b *RedisBus) Close() error {
	close(b.out)
	<-b.done
	return nil
}
