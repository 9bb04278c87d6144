package mq

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/storefront/apiserver/config"
	"google.golang.org/api/option"
)

// Attributes the Pub/Sub backend adds to every message, mirroring the AMQP
// properties set by the RabbitMQ backend.
const (
	AttrContentType = "content_type"
	AttrPublishedAt = "published_at"
)

// PubSubClient publishes to one topic per channel name. With ordering enabled
// messages on a channel share an ordering key and are delivered in publish
// order.
type PubSubClient struct {
	client             *pubsub.Client
	subscriptionSuffix string
	ordered            bool
	now                func() time.Time

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPubSubClient constructs a Pub/Sub client from config.
func NewPubSubClient(ctx context.Context, cfg config.PubSubConfig) (*PubSubClient, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, err
	}

	return &PubSubClient{
		client:             client,
		subscriptionSuffix: cfg.SubscriptionSuffix,
		ordered:            cfg.MessageOrdering,
		now:                time.Now,
		topics:             make(map[string]*pubsub.Topic),
	}, nil
}

// Publish sends a message to the named topic and waits for the server id.
func (p *PubSubClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("pubsub channel is required")
	}

	topic, err := p.topic(ctx, channel)
	if err != nil {
		return "", err
	}

	msg := p.message(channel, data, attrs)
	id, err := topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		if msg.OrderingKey != "" {
			// A failed publish pauses its ordering key until resumed.
			topic.ResumePublish(msg.OrderingKey)
		}
		return "", err
	}
	return id, nil
}

// Subscribe consumes messages from the channel's subscription until ctx is
// done. A handler error nacks the message for redelivery.
func (p *PubSubClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("pubsub channel is required")
	}

	topic, err := p.topic(ctx, channel)
	if err != nil {
		return err
	}

	sub, err := p.ensureSubscription(ctx, p.subscriptionName(channel), topic)
	if err != nil {
		return err
	}

	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if err := handler(ctx, fromPubSub(msg)); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Close flushes pending publishes and closes the client.
func (p *PubSubClient) Close() error {
	p.mu.Lock()
	for _, topic := range p.topics {
		topic.Stop()
	}
	p.topics = nil
	p.mu.Unlock()
	return p.client.Close()
}

func (p *PubSubClient) message(channel string, data []byte, attrs map[string]string) *pubsub.Message {
	attributes := make(map[string]string, len(attrs)+2)
	for key, value := range attrs {
		attributes[key] = value
	}
	attributes[AttrContentType] = "application/json"
	attributes[AttrPublishedAt] = p.now().UTC().Format(time.RFC3339Nano)

	msg := &pubsub.Message{Data: data, Attributes: attributes}
	if p.ordered {
		msg.OrderingKey = channel
	}
	return msg
}

func fromPubSub(msg *pubsub.Message) Message {
	return Message{
		ID:         msg.ID,
		Data:       msg.Data,
		Attributes: msg.Attributes,
	}
}

func (p *PubSubClient) topic(ctx context.Context, name string) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.topics == nil {
		return nil, errors.New("pubsub client is closed")
	}
	if topic, ok := p.topics[name]; ok {
		return topic, nil
	}

	topic := p.client.Topic(name)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		if topic, err = p.client.CreateTopic(ctx, name); err != nil {
			return nil, err
		}
	}
	topic.EnableMessageOrdering = p.ordered
	p.topics[name] = topic
	return topic, nil
}

func (p *PubSubClient) ensureSubscription(ctx context.Context, name string, topic *pubsub.Topic) (*pubsub.Subscription, error) {
	sub := p.client.Subscription(name)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return p.client.CreateSubscription(ctx, name, pubsub.SubscriptionConfig{
			Topic:                 topic,
			EnableMessageOrdering: p.ordered,
		})
	}
	return sub, nil
}

func (p *PubSubClient) subscriptionName(channel string) string {
	if p.subscriptionSuffix == "" {
		return channel
	}
	return channel + p.subscriptionSuffix
}
