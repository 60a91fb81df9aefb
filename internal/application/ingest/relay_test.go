package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	feed "github.com/codedrop-io/codedrop/internal/infrastructure/ingest"
	"github.com/codedrop-io/codedrop/internal/infrastructure/pubsub"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishFeedMessage(ctx context.Context, event pubsub.FeedMessageEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type sliceSource struct {
	messages []feed.FeedMessage
}

func (s *sliceSource) Consume(ctx context.Context, handler func(context.Context, feed.FeedMessage) error) error {
	for _, m := range s.messages {
		if err := handler(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func newTestRelay(source FeedSource, pub pubsub.IngestPublisher) *Relay {
	r := NewRelay(source, pub, logger.NewNopLogger())
	r.initialDelay = time.Millisecond
	r.maxTries = 3
	return r
}

func TestRelay_ForwardsInOrder(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	source := &sliceSource{messages: []feed.FeedMessage{
		{MessageID: "1", Source: "telegram", Text: "FIRST111", ReceivedAt: at},
		{MessageID: "2", Source: "telegram", Text: "SECOND22", ReceivedAt: at},
	}}

	pub := new(mockPublisher)
	var order []string
	pub.On("PublishFeedMessage", mock.Anything, mock.AnythingOfType("pubsub.FeedMessageEvent")).
		Run(func(args mock.Arguments) {
			order = append(order, args.Get(1).(pubsub.FeedMessageEvent).Text)
		}).
		Return(nil)

	require.NoError(t, newTestRelay(source, pub).Run(context.Background()))
	assert.Equal(t, []string{"FIRST111", "SECOND22"}, order)
	pub.AssertNumberOfCalls(t, "PublishFeedMessage", 2)
}

func TestRelay_RetriesTransientPublishFailure(t *testing.T) {
	source := &sliceSource{messages: []feed.FeedMessage{{MessageID: "1", Source: "t", Text: "RETRY1234"}}}

	pub := new(mockPublisher)
	pub.On("PublishFeedMessage", mock.Anything, mock.Anything).Return(errors.New("redis down")).Once()
	pub.On("PublishFeedMessage", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, newTestRelay(source, pub).Run(context.Background()))
	pub.AssertNumberOfCalls(t, "PublishFeedMessage", 2)
}

func TestRelay_StopsAfterExhaustingRetries(t *testing.T) {
	source := &sliceSource{messages: []feed.FeedMessage{
		{MessageID: "1", Source: "t", Text: "LOST1234"},
		{MessageID: "2", Source: "t", Text: "NEVER123"},
	}}

	pub := new(mockPublisher)
	pub.On("PublishFeedMessage", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	err := newTestRelay(source, pub).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay feed message 1")
	pub.AssertNumberOfCalls(t, "PublishFeedMessage", 3)
}
