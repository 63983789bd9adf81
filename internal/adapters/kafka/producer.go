// Package kafka publishes checkout events to a Kafka topic.
package kafka

import (
	"context"

	"github.com/robertarktes/tour-checkout/internal/outbox"
	"github.com/segmentio/kafka-go"
)

type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

// Publish keys the message by aggregate id so events of one attempt stay
// ordered within a partition.
func (p *Producer) Publish(ctx context.Context, msg outbox.Message) error {
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.AggregateID),
		Value: msg.Body,
		Headers: []kafka.Header{
			{Key: "message-id", Value: []byte(msg.ID)},
			{Key: "event-type", Value: []byte(msg.EventType)},
		},
	})
}

func (p *Producer) Close() error { return p.w.Close() }
