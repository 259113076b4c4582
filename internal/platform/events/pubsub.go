package events

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/kalamitra/api/internal/domain"
)

// PubSubPublisher publishes events to a Pub/Sub topic with ordering by aggregate id.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubPublisher wraps an existing topic handle.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("events: pubsub topic is required")
	}
	return &PubSubPublisher{topic: topic}, nil
}

// Publish sends the event and waits for the server acknowledgement.
func (p *PubSubPublisher) Publish(ctx context.Context, event domain.Event) error {
	data, err := Encode(event)
	if err != nil {
		return err
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attributes(event),
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("events: publish %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes pending messages.
func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return nil
}
