package mongo

import (
	"context"
	"time"

	"github.com/robertarktes/tour-checkout/internal/observability"
	"github.com/robertarktes/tour-checkout/internal/outbox"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID          string    `bson:"_id"`
	Action      string    `bson:"action"`
	AggregateID string    `bson:"aggregate_id"`
	OccurredAt  time.Time `bson:"occurred_at"`
	RecordedAt  time.Time `bson:"recorded_at"`
	Data        bson.M    `bson:"data"`
}

// LogEnvelope stores one checkout event. The event id is the document id,
// so a redelivered event is stored once.
func (a *AuditLogger) LogEnvelope(ctx context.Context, env outbox.Envelope) error {
	var data bson.M
	if len(env.Data) > 0 {
		if err := bson.UnmarshalExtJSON(env.Data, false, &data); err != nil {
			return err
		}
	}

	_, err := a.coll.InsertOne(ctx, AuditLog{
		ID:          env.EventID,
		Action:      env.EventType,
		AggregateID: env.AggregateID,
		OccurredAt:  env.OccurredAt,
		RecordedAt:  time.Now(),
		Data:        data,
	})
	if mongo.IsDuplicateKeyError(err) {
		a.logger.WithField("event_id", env.EventID).Debug("audit event already recorded")
		return nil
	}
	if err != nil {
		a.logger.WithField("event_id", env.EventID).WithField("error", err.Error()).Error("failed to insert audit log")
		return err
	}
	return nil
}

// History returns the audit trail of one attempt, oldest first.
func (a *AuditLogger) History(ctx context.Context, aggregateID string) ([]AuditLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}})
	cur, err := a.coll.Find(ctx, bson.M{"aggregate_id": aggregateID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var logs []AuditLog
	if err := cur.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
