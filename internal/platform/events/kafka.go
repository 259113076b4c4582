package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kalamitra/api/internal/domain"
	"github.com/kalamitra/api/internal/platform/observability"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic keyed by aggregate id so events for one listing stay ordered.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a synchronous writer for brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) (*KafkaPublisher, error) {
	var addrs []string
	for _, broker := range brokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			addrs = append(addrs, broker)
		}
	}
	if len(addrs) == 0 {
		return nil, errors.New("events: at least one kafka broker is required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("events: kafka topic is required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		ErrorLogger:  kafka.LoggerFunc(observability.NewPrintfAdapter(logger, zapcore.WarnLevel).Printf),
	}
	return &KafkaPublisher{writer: writer}, nil
}

// Publish writes a single message and waits for the broker acknowledgement.
func (p *KafkaPublisher) Publish(ctx context.Context, event domain.Event) error {
	msg, err := kafkaMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: kafka write %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func kafkaMessage(event domain.Event) (kafka.Message, error) {
	data, err := Encode(event)
	if err != nil {
		return kafka.Message{}, err
	}
	attrs := attributes(event)
	headers := make([]kafka.Header, 0, len(attrs))
	for _, key := range []string{AttrEventID, AttrEventType, AttrAggregateID} {
		if value, ok := attrs[key]; ok {
			headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
		}
	}
	return kafka.Message{
		Key:     []byte(event.AggregateID),
		Value:   data,
		Headers: headers,
		Time:    event.OccurredAt,
	}, nil
}
