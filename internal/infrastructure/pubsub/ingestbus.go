package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

const (
	ingestMessageChannel = "codedrop:ingest:message"
)

// FeedMessageEvent is a raw chat-feed message relayed to the server for code
// extraction.
type FeedMessageEvent struct {
	MessageID  string `json:"message_id,omitempty"`
	Source     string `json:"source"`
	Text       string `json:"text"`
	ReceivedAt int64  `json:"received_at"` // unix millis
	Origin     string `json:"origin,omitempty"` // publishing instance ID
}

// IngestPublisher defines the interface for relaying feed messages.
type IngestPublisher interface {
	PublishFeedMessage(ctx context.Context, event FeedMessageEvent) error
}

// IngestSubscriber defines the interface for consuming relayed feed messages.
type IngestSubscriber interface {
	SubscribeFeedMessages(ctx context.Context, handler func(ctx context.Context, event FeedMessageEvent)) error
}

// RedisIngestBus relays feed messages over Redis Pub/Sub.
//
// Unlike fan-out style buses, messages are handled one at a time in arrival
// order: codes must be broadcast in the order they were observed.
type RedisIngestBus struct {
	client     *redis.Client
	logger     logger.Interface
	instanceID string
	now        func() time.Time

	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
}

// NewRedisIngestBus creates a new Redis-based ingest bus.
func NewRedisIngestBus(client *redis.Client, logger logger.Interface) *RedisIngestBus {
	return &RedisIngestBus{
		client:     client,
		logger:     logger,
		instanceID: uuid.NewString(),
		now:        time.Now,

		reconnectDelay:    time.Second,
		maxReconnectDelay: 30 * time.Second,
	}
}

// InstanceID returns the ID stamped on messages published by this bus.
func (b *RedisIngestBus) InstanceID() string {
	return b.instanceID
}

// PublishFeedMessage publishes a feed message for the server to ingest.
func (b *RedisIngestBus) PublishFeedMessage(ctx context.Context, event FeedMessageEvent) error {
	if event.ReceivedAt == 0 {
		event.ReceivedAt = b.now().UnixMilli()
	}
	event.Origin = b.instanceID

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal feed message event: %w", err)
	}

	if err := b.client.Publish(ctx, ingestMessageChannel, data).Err(); err != nil {
		b.logger.Errorw("failed to publish feed message",
			"source", event.Source,
			"message_id", event.MessageID,
			"error", err,
		)
		return fmt.Errorf("failed to publish feed message: %w", err)
	}

	b.logger.Debugw("feed message published to Redis",
		"source", event.Source,
		"message_id", event.MessageID,
	)
	return nil
}

// SubscribeFeedMessages consumes feed messages until ctx is cancelled,
// reconnecting with backoff when the subscription drops.
func (b *RedisIngestBus) SubscribeFeedMessages(ctx context.Context, handler func(ctx context.Context, event FeedMessageEvent)) error {
	return b.subscribeWithReconnect(ctx, ingestMessageChannel, func(payload string) {
		var event FeedMessageEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			b.logger.Warnw("failed to unmarshal feed message event",
				"payload", payload,
				"error", err,
			)
			return
		}
		handler(ctx, event)
	})
}

// subscribeWithReconnect resubscribes with exponential backoff until ctx
// ends. The delay starts over once a subscription is established.
func (b *RedisIngestBus) subscribeWithReconnect(ctx context.Context, channel string, handler func(payload string)) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = b.reconnectDelay
	expBackoff.MaxInterval = b.maxReconnectDelay

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := b.subscribe(ctx, channel, handler, expBackoff.Reset)
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(ctx.Err())
		}
		if err == nil {
			err = fmt.Errorf("subscription to %s closed", channel)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			b.logger.Warnw("ingest subscription disconnected, reconnecting",
				"channel", channel,
				"error", err,
				"backoff", next,
			)
		}),
	)
	return err
}

// subscribe reads one subscription until it fails or ctx ends.
func (b *RedisIngestBus) subscribe(ctx context.Context, channel string, handler func(payload string), onSubscribed func()) error {
	pubsub := b.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	_, err := pubsub.Receive(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}

	b.logger.Infow("subscribed to ingest channel",
		"channel", channel,
	)
	onSubscribed()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			b.logger.Infow("ingest subscriber stopped",
				"channel", channel,
				"reason", ctx.Err(),
			)
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				b.logger.Warnw("ingest channel closed",
					"channel", channel,
				)
				return nil
			}

			b.handleSafely(channel, msg.Payload, handler)
		}
	}
}

func (b *RedisIngestBus) handleSafely(channel, payload string, handler func(payload string)) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorw("ingest handler panicked",
				"channel", channel,
				"panic", fmt.Sprintf("%v", r),
			)
		}
	}()
	handler(payload)
}
