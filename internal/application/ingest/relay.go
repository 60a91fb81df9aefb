// Package ingest relays chat-feed messages from the feed consumer to the
// server's ingestion bus.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	feed "github.com/codedrop-io/codedrop/internal/infrastructure/ingest"
	"github.com/codedrop-io/codedrop/internal/infrastructure/pubsub"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

// FeedSource yields feed messages to a handler until ctx ends.
type FeedSource interface {
	Consume(ctx context.Context, handler func(context.Context, feed.FeedMessage) error) error
}

// Relay forwards every feed message to the ingestion bus, retrying publish
// failures with exponential backoff before giving up on the batch.
type Relay struct {
	source       FeedSource
	publisher    pubsub.IngestPublisher
	logger       logger.Interface
	maxTries     uint
	initialDelay time.Duration
}

func NewRelay(source FeedSource, publisher pubsub.IngestPublisher, log logger.Interface) *Relay {
	return &Relay{
		source:       source,
		publisher:    publisher,
		logger:       log,
		maxTries:     5,
		initialDelay: 200 * time.Millisecond,
	}
}

// Run blocks until ctx is cancelled or a message cannot be published.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Infow("feed relay started")
	err := r.source.Consume(ctx, r.forward)
	if ctx.Err() != nil {
		r.logger.Infow("feed relay stopped")
		return nil
	}
	return err
}

func (r *Relay) forward(ctx context.Context, msg feed.FeedMessage) error {
	event := pubsub.FeedMessageEvent{
		MessageID:  msg.MessageID,
		Source:     msg.Source,
		Text:       msg.Text,
		ReceivedAt: msg.ReceivedAt.UnixMilli(),
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = r.initialDelay
	expBackoff.MaxInterval = 5 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, r.publisher.PublishFeedMessage(ctx, event)
	}, backoff.WithBackOff(expBackoff), backoff.WithMaxTries(r.maxTries))
	if err != nil {
		r.logger.Errorw("failed to relay feed message",
			"message_id", msg.MessageID,
			"source", msg.Source,
			"error", err,
		)
		return fmt.Errorf("relay feed message %s: %w", msg.MessageID, err)
	}

	r.logger.Debugw("feed message relayed",
		"message_id", msg.MessageID,
		"source", msg.Source,
	)
	return nil
}
