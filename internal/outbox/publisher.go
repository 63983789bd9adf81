// Package outbox relays ledger events committed to the outbox table to the
// configured message broker.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/tour-checkout/internal/adapters/crdb"
	"github.com/robertarktes/tour-checkout/internal/observability"
)

type Store interface {
	ClaimUnpublishedOutbox(ctx context.Context, limit int, lease time.Duration) ([]crdb.OutboxRecord, error)
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
}

// Message is one encoded Envelope ready for a broker. ID lets consumers drop
// redeliveries.
type Message struct {
	ID          string
	EventType   string
	AggregateID string
	Body        []byte
}

type Broker interface {
	Publish(ctx context.Context, msg Message) error
}

type Publisher struct {
	store     Store
	broker    Broker
	logger    observability.Logger
	interval  time.Duration
	lease     time.Duration
	batchSize int
	now       func() time.Time
}

func NewPublisher(store Store, broker Broker, logger observability.Logger) *Publisher {
	return &Publisher{
		store:     store,
		broker:    broker,
		logger:    logger,
		interval:  5 * time.Second,
		lease:     time.Minute,
		batchSize: 50,
		now:       time.Now,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PublishBatch(ctx); err != nil && ctx.Err() == nil {
				p.logger.WithField("error", err.Error()).Error("outbox batch failed")
			}
		}
	}
}

// PublishBatch relays one claimed batch of unpublished records and returns
// how many made it to the broker. A record that fails stays NEW and is
// claimed again once its lease ends. Delivery is at least once: a crash
// between Publish and MarkPublished relays the record again with the same
// message id.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	records, err := p.store.ClaimUnpublishedOutbox(ctx, p.batchSize, p.lease)
	if err != nil {
		return 0, errors.Wrap(err, "load outbox")
	}
	if len(records) == 0 {
		observability.OutboxLag.Set(0)
		return 0, nil
	}
	observability.OutboxLag.Set(p.now().Sub(records[0].CreatedAt).Seconds())

	published := 0
	for _, rec := range records {
		log := p.logger.WithFields(map[string]interface{}{
			"outbox_id":  rec.ID.String(),
			"event_type": rec.EventType,
		})

		body, err := json.Marshal(Envelope{
			EventID:      rec.DedupeKey,
			EventType:    rec.EventType,
			EventVersion: EventVersion,
			OccurredAt:   rec.CreatedAt.UTC(),
			AggregateID:  rec.AggregateID.String(),
			Data:         json.RawMessage(rec.Payload),
		})
		if err != nil {
			log.WithField("error", err.Error()).Error("failed to encode outbox record")
			continue
		}
		msg := Message{ID: rec.DedupeKey, EventType: rec.EventType, AggregateID: rec.AggregateID.String(), Body: body}
		if err := p.broker.Publish(ctx, msg); err != nil {
			observability.OutboxPublishFailures.Inc()
			log.WithField("error", err.Error()).Warn("failed to publish outbox record")
			continue
		}
		if err := p.store.MarkPublished(ctx, rec.ID, p.now()); err != nil {
			log.WithField("error", err.Error()).Error("failed to mark outbox record published")
			continue
		}
		published++
	}
	return published, nil
}
