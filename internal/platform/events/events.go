// Package events publishes marketplace domain events to Pub/Sub or Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kalamitra/api/internal/domain"
)

// Attribute and header names carried alongside every encoded event.
const (
	AttrEventID     = "eventId"
	AttrEventType   = "eventType"
	AttrAggregateID = "aggregateId"
)

type envelope struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	AggregateID string         `json:"aggregateId"`
	OccurredAt  time.Time      `json:"occurredAt"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// Encode renders the JSON body shared by every transport.
func Encode(event domain.Event) ([]byte, error) {
	if event.Type == "" {
		return nil, fmt.Errorf("events: event type is required")
	}
	data, err := json.Marshal(envelope{
		ID:          event.ID,
		Type:        event.Type,
		AggregateID: event.AggregateID,
		OccurredAt:  event.OccurredAt.UTC(),
		Payload:     event.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("events: marshal %s: %w", event.Type, err)
	}
	return data, nil
}

func attributes(event domain.Event) map[string]string {
	attrs := map[string]string{AttrEventType: event.Type}
	if event.ID != "" {
		attrs[AttrEventID] = event.ID
	}
	if event.AggregateID != "" {
		attrs[AttrAggregateID] = event.AggregateID
	}
	return attrs
}

// Nop discards events. It is used when no transport is configured.
type Nop struct{}

// Publish implements services.EventPublisher.
func (Nop) Publish(context.Context, domain.Event) error { return nil }

// Close implements io.Closer.
func (Nop) Close() error { return nil }
