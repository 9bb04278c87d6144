package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/apiserver/internal/logger"
	"github.com/storefront/apiserver/internal/mq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	channel string
	data    []byte
	attrs   map[string]string
	err     error
}

func (b *fakeBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	b.channel, b.data, b.attrs = channel, data, attrs
	return "msg-1", nil
}

func (b *fakeBackend) Subscribe(ctx context.Context, channel string, handler mq.Handler) error {
	return handler(ctx, mq.Message{ID: "msg-1", Data: b.data, Attributes: b.attrs})
}

func (b *fakeBackend) Close() error { return nil }

func TestPublishRoundTrip(t *testing.T) {
	backend := &fakeBackend{}
	publisher := NewPublisher(mq.New(backend), logger.Discard())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	publisher.now = func() time.Time { return fixed }

	payload := map[string]any{"id": 7, "total": "15.00"}
	require.NoError(t, publisher.Publish(context.Background(), "storefront.orders", "order.created", payload))

	assert.Equal(t, "storefront.orders", backend.channel)
	assert.Equal(t, "order.created", backend.attrs[attrEventType])

	var received Event
	err := mq.New(backend).Subscribe(context.Background(), "storefront.orders", func(ctx context.Context, msg mq.Message) error {
		var err error
		received, err = Decode(msg)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, "order.created", received.Type)
	assert.True(t, fixed.Equal(received.OccurredAt))
	_, err = uuid.Parse(received.ID)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"id": 7, "total": "15.00"}`, string(received.Data))
}

func TestPublishWrapsBrokerError(t *testing.T) {
	boom := errors.New("connection refused")
	publisher := NewPublisher(mq.New(&fakeBackend{err: boom}), logger.Discard())

	err := publisher.Publish(context.Background(), "storefront.catalog", "product.created", struct{}{})
	assert.ErrorIs(t, err, boom)
}

func TestNilPublisherDropsEvents(t *testing.T) {
	var publisher *Publisher
	assert.NoError(t, publisher.Publish(context.Background(), "storefront.catalog", "category.created", nil))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(mq.Message{ID: "x", Data: []byte("not json")})
	assert.Error(t, err)
}
