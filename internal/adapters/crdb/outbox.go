package crdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED
	DedupeKey     string
}

func (r *Repository) InsertOutbox(ctx context.Context, tx pgx.Tx, record OutboxRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6)
	`, record.ID, record.AggregateType, record.AggregateID, record.EventType, record.Payload, record.DedupeKey)
	return err
}

// ClaimUnpublishedOutbox leases up to limit NEW records to the caller until
// lease runs out. Rows locked or leased by another publisher are skipped, so
// replicas never relay the same record at the same time. A record whose lease
// expires before MarkPublished is claimed again, which makes delivery at
// least once.
func (r *Repository) ClaimUnpublishedOutbox(ctx context.Context, limit int, lease time.Duration) ([]OutboxRecord, error) {
	var records []OutboxRecord
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		records = records[:0]
		now := r.now()

		rows, err := tx.Query(ctx, `
			SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
			FROM outbox
			WHERE status = 'NEW' AND (claimed_until IS NULL OR claimed_until < $2)
			ORDER BY created_at ASC LIMIT $1
			FOR UPDATE SKIP LOCKED
		`, limit, now)
		if err != nil {
			return err
		}
		ids := make([]string, 0, limit)
		for rows.Next() {
			var rec OutboxRecord
			err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
			if err != nil {
				rows.Close()
				return err
			}
			records = append(records, rec)
			ids = append(ids, rec.ID.String())
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		_, err = tx.Exec(ctx, `UPDATE outbox SET claimed_until = $2 WHERE id = ANY($1::UUID[])`, ids, now.Add(lease))
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *Repository) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1 AND status = 'NEW'
	`, id, publishedAt)
	return err
}
