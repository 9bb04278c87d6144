// Package events publishes storefront domain events to the configured
// message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/apiserver/internal/mq"
)

const attrEventType = "event_type"

// Event is the envelope written to the broker for every committed change.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// Publisher serializes events and hands them to an mq.MQ.
type Publisher struct {
	mq     *mq.MQ
	logger *slog.Logger
	now    func() time.Time
}

func NewPublisher(queue *mq.MQ, logger *slog.Logger) *Publisher {
	return &Publisher{mq: queue, logger: logger, now: time.Now}
}

// Publish wraps payload in an Event and sends it to channel. A nil Publisher
// drops the event.
func (p *Publisher) Publish(ctx context.Context, channel, eventType string, payload any) error {
	if p == nil || p.mq == nil {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	event := Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: p.now().UTC(),
		Data:       data,
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}

	messageID, err := p.mq.Publish(ctx, channel, body, map[string]string{attrEventType: eventType})
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", eventType, channel, err)
	}
	p.logger.Debug("event published", "channel", channel, "event", eventType, "event_id", event.ID, "message_id", messageID)
	return nil
}

// Decode parses a broker message produced by Publish.
func Decode(msg mq.Message) (Event, error) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return Event{}, fmt.Errorf("decode message %s: %w", msg.ID, err)
	}
	if event.Type == "" {
		event.Type = msg.Attributes[attrEventType]
	}
	return event, nil
}
