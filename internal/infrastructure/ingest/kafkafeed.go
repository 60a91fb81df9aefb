// Package ingest reads raw chat-feed messages from Kafka.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	sharedConfig "github.com/codedrop-io/codedrop/internal/shared/config"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

// FeedMessage is one chat message pulled off the feed topic.
type FeedMessage struct {
	MessageID  string
	Source     string
	Text       string
	ReceivedAt time.Time
}

type feedPayload struct {
	MessageID string `json:"message_id"`
	Source    string `json:"source"`
	Text      string `json:"text"`
	Format    string `json:"format"` // "html" or empty for plain text
}

// decodeFeedMessage accepts either a JSON payload or a bare UTF-8 message body.
func decodeFeedMessage(msg kafka.Message) (FeedMessage, error) {
	out := FeedMessage{
		Source:     msg.Topic,
		ReceivedAt: msg.Time,
	}
	if out.ReceivedAt.IsZero() {
		out.ReceivedAt = time.Now()
	}

	body := strings.TrimSpace(string(msg.Value))
	if body == "" {
		return FeedMessage{}, errors.New("empty feed message")
	}

	if strings.HasPrefix(body, "{") {
		var p feedPayload
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			return FeedMessage{}, fmt.Errorf("unmarshal feed payload: %w", err)
		}
		out.Text = p.Text
		if strings.EqualFold(p.Format, "html") {
			out.Text = htmlToText(p.Text)
		}
		if strings.TrimSpace(out.Text) == "" {
			return FeedMessage{}, errors.New("feed payload has no text")
		}
		out.MessageID = p.MessageID
		if p.Source != "" {
			out.Source = p.Source
		}
	} else {
		out.Text = body
	}

	if out.MessageID == "" {
		out.MessageID = fmt.Sprintf("%d-%s", msg.Partition, strconv.FormatInt(msg.Offset, 10))
	}
	return out, nil
}

// KafkaFeedConsumer consumes chat-feed messages from a Kafka topic. Offsets
// are committed only after the handler succeeds, giving at-least-once delivery.
type KafkaFeedConsumer struct {
	reader *kafka.Reader
	logger logger.Interface
}

// NewKafkaFeedConsumer creates a consumer-group reader for the feed topic.
func NewKafkaFeedConsumer(cfg sharedConfig.IngestConfig, log logger.Interface) *KafkaFeedConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.KafkaGroupID,
		Topic:    cfg.KafkaTopic,
		MinBytes: 1,
		MaxBytes: 1 << 20,
		MaxWait:  250 * time.Millisecond,
	})
	return &KafkaFeedConsumer{reader: reader, logger: log}
}

// Consume reads messages and passes them to handler until ctx is cancelled.
// Malformed messages are committed and skipped; a handler error stops
// consumption without committing so the message is redelivered.
func (c *KafkaFeedConsumer) Consume(ctx context.Context, handler func(context.Context, FeedMessage) error) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			return fmt.Errorf("kafka read: %w", err)
		}

		feed, err := decodeFeedMessage(msg)
		if err != nil {
			c.logger.Warnw("skipping malformed feed message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		} else if err := handler(ctx, feed); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("kafka commit: %w", err)
		}
	}
}

// Close closes the underlying Kafka reader.
func (c *KafkaFeedConsumer) Close() error {
	return c.reader.Close()
}
