package main

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/tour-checkout/internal/observability"
	"github.com/robertarktes/tour-checkout/internal/outbox"
)

type Recorder interface {
	LogEnvelope(ctx context.Context, env outbox.Envelope) error
}

type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Handler writes every checkout event it receives to the audit trail.
type Handler struct {
	recorder Recorder
	logger   observability.Logger
}

func NewHandler(recorder Recorder, logger observability.Logger) *Handler {
	return &Handler{recorder: recorder, logger: logger}
}

// Handle acks a recorded or undecodable delivery and requeues one the store
// failed to take.
func (h *Handler) Handle(ctx context.Context, body []byte, ack Acknowledger) error {
	var env outbox.Envelope
	if err := json.Unmarshal(body, &env); err != nil || env.EventID == "" {
		h.logger.WithField("body", string(body)).Warn("dropping malformed checkout event")
		return ack.Ack(false)
	}

	log := h.logger.WithFields(map[string]interface{}{
		"event_id":   env.EventID,
		"event_type": env.EventType,
		"order_id":   env.AggregateID,
	})
	if err := h.recorder.LogEnvelope(ctx, env); err != nil {
		log.WithField("error", err.Error()).Error("failed to record checkout event")
		if nackErr := ack.Nack(false, true); nackErr != nil {
			return errors.Wrap(nackErr, "nack delivery")
		}
		return nil
	}
	log.Debug("checkout event recorded")
	return ack.Ack(false)
}

// Serve handles deliveries until ctx ends or the channel closes.
func (h *Handler) Serve(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			if err := h.Handle(ctx, d.Body, deliveryAck{d}); err != nil {
				return err
			}
		}
	}
}

type deliveryAck struct {
	d amqp.Delivery
}

func (a deliveryAck) Ack(multiple bool) error { return a.d.Ack(multiple) }

func (a deliveryAck) Nack(multiple, requeue bool) error { return a.d.Nack(multiple, requeue) }
