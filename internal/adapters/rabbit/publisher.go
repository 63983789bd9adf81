package rabbit

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/tour-checkout/internal/outbox"
)

const Exchange = "checkout.events"

type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

// Publish routes msg by its event type.
func (p *Publisher) Publish(ctx context.Context, msg outbox.Message) error {
	return p.ch.PublishWithContext(ctx, Exchange, msg.EventType, false, false, amqp.Publishing{
		MessageId:    msg.ID,
		Type:         msg.EventType,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         msg.Body,
	})
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
