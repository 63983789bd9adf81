package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/tour-checkout/internal/domain"
	"github.com/robertarktes/tour-checkout/internal/observability"
)

const (
	SerializationFailureCode = "40001"
)

const (
	StatusAwaitingWidget = "AWAITING_WIDGET"
	StatusSucceeded      = "SUCCEEDED"
	StatusFailed         = "FAILED"
	StatusAbandoned      = "ABANDONED"
)

const (
	EventAttemptCreated   = "checkout.attempt.created"
	EventAttemptSettled   = "checkout.attempt.settled"
	EventAttemptAbandoned = "checkout.attempt.abandoned"
)

// AttemptRecord is the ledger row of one checkout attempt.
type AttemptRecord struct {
	ID            uuid.UUID  `json:"id"`
	OrderID       string     `json:"orderId"`
	PurchaseID    string     `json:"purchaseId,omitempty"`
	UserKey       string     `json:"userKey,omitempty"`
	PackageSlug   string     `json:"packageSlug"`
	CheckoutType  string     `json:"checkoutType"`
	TravelDate    string     `json:"travelDate"`
	Travellers    int        `json:"travellers"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	PaymentID     string     `json:"paymentId,omitempty"`
	FailureCode   string     `json:"failureCode,omitempty"`
	FailureReason string     `json:"failureReason,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	SettledAt     *time.Time `json:"settledAt,omitempty"`
}

// Repository is the CockroachDB attempt ledger. Every state change writes an
// outbox record in the same transaction.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() { observability.DBTxDuration.Observe(time.Since(start).Seconds()) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repository) RecordAttempt(ctx context.Context, a domain.Attempt) error {
	rec := AttemptRecord{
		ID:           a.ID,
		OrderID:      a.Handle.OrderID,
		PurchaseID:   a.Handle.PurchaseID,
		UserKey:      a.UserKey(),
		PackageSlug:  a.Package.Slug,
		CheckoutType: string(a.Package.CheckoutType),
		TravelDate:   a.Form.TravelDate.Value(),
		Travellers:   a.Form.Travellers,
		Amount:       a.Handle.Amount,
		Currency:     a.Handle.Currency,
		Status:       StatusAwaitingWidget,
		CreatedAt:    a.CreatedAt,
	}

	return r.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO attempts (id, order_id, purchase_id, user_key, package_slug, checkout_type,
				travel_date, travellers, amount, currency, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, rec.ID, rec.OrderID, rec.PurchaseID, rec.UserKey, rec.PackageSlug, rec.CheckoutType,
			rec.TravelDate, rec.Travellers, rec.Amount, rec.Currency, rec.Status, rec.CreatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return errors.Wrapf(domain.ErrConflict, "attempt for order %s", rec.OrderID)
			}
			return err
		}
		return r.insertEvent(ctx, tx, rec.ID, EventAttemptCreated, rec)
	})
}

// SettleAttempt moves an awaiting attempt to its terminal status. Settling
// twice fails with ErrAlreadySettled.
func (r *Repository) SettleAttempt(ctx context.Context, a domain.Attempt, out domain.PaymentOutcome) error {
	status := StatusFailed
	if out.Succeeded() {
		status = StatusSucceeded
	}
	settledAt := out.SettledAt
	if settledAt.IsZero() {
		settledAt = r.now()
	}

	return r.WithTx(ctx, func(tx pgx.Tx) error {
		var rec AttemptRecord
		err := tx.QueryRow(ctx, `
			UPDATE attempts
			SET status = $2, payment_id = $3, failure_code = $4, failure_reason = $5, settled_at = $6
			WHERE order_id = $1 AND status = $7
			RETURNING id, order_id, purchase_id, user_key, package_slug, checkout_type,
				travel_date, travellers, amount, currency, status, payment_id, failure_code,
				failure_reason, created_at, settled_at
		`, a.Handle.OrderID, status, out.PaymentID, out.Code, out.Reason, settledAt, StatusAwaitingWidget).Scan(rec.scanTargets()...)
		if errors.Is(err, pgx.ErrNoRows) {
			return r.settledOrMissing(ctx, tx, a.Handle.OrderID)
		}
		if err != nil {
			return err
		}
		return r.insertEvent(ctx, tx, rec.ID, EventAttemptSettled, out)
	})
}

func (r *Repository) settledOrMissing(ctx context.Context, tx pgx.Tx, orderID string) error {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM attempts WHERE order_id = $1`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrapf(domain.ErrNotFound, "attempt for order %s", orderID)
	}
	if err != nil {
		return err
	}
	return errors.Wrapf(domain.ErrAlreadySettled, "attempt for order %s is %s", orderID, status)
}

func (r *Repository) CountRecentAttempts(ctx context.Context, userKey, slug string, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM attempts
		WHERE user_key = $1 AND package_slug = $2 AND created_at >= $3
	`, userKey, slug, since).Scan(&n)
	return n, err
}

func (r *Repository) GetAttempt(ctx context.Context, orderID string) (*AttemptRecord, error) {
	var rec AttemptRecord
	err := r.pool.QueryRow(ctx, `
		SELECT id, order_id, purchase_id, user_key, package_slug, checkout_type,
			travel_date, travellers, amount, currency, status, payment_id, failure_code,
			failure_reason, created_at, settled_at
		FROM attempts WHERE order_id = $1
	`, orderID).Scan(rec.scanTargets()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(domain.ErrNotFound, "attempt for order %s", orderID)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetStaleAttempts returns attempts still awaiting the widget that were
// created before cutoff.
func (r *Repository) GetStaleAttempts(ctx context.Context, cutoff time.Time, limit int) ([]AttemptRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, purchase_id, user_key, package_slug, checkout_type,
			travel_date, travellers, amount, currency, status, payment_id, failure_code,
			failure_reason, created_at, settled_at
		FROM attempts WHERE status = $1 AND created_at <= $2
		ORDER BY created_at ASC LIMIT $3
	`, StatusAwaitingWidget, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttemptRecord
	for rows.Next() {
		var rec AttemptRecord
		if err := rows.Scan(rec.scanTargets()...); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AbandonAttempt closes an attempt whose widget never called back.
func (r *Repository) AbandonAttempt(ctx context.Context, orderID string) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		var rec AttemptRecord
		err := tx.QueryRow(ctx, `
			UPDATE attempts SET status = $2, settled_at = $3
			WHERE order_id = $1 AND status = $4
			RETURNING id, order_id, purchase_id, user_key, package_slug, checkout_type,
				travel_date, travellers, amount, currency, status, payment_id, failure_code,
				failure_reason, created_at, settled_at
		`, orderID, StatusAbandoned, r.now(), StatusAwaitingWidget).Scan(rec.scanTargets()...)
		if errors.Is(err, pgx.ErrNoRows) {
			return r.settledOrMissing(ctx, tx, orderID)
		}
		if err != nil {
			return err
		}
		return r.insertEvent(ctx, tx, rec.ID, EventAttemptAbandoned, rec)
	})
}

func (r *Repository) insertEvent(ctx context.Context, tx pgx.Tx, aggregateID uuid.UUID, eventType string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "encode %s", eventType)
	}
	return r.InsertOutbox(ctx, tx, OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "attempt",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       b,
		DedupeKey:     aggregateID.String() + ":" + eventType,
	})
}

func (rec *AttemptRecord) scanTargets() []any {
	return []any{
		&rec.ID, &rec.OrderID, &rec.PurchaseID, &rec.UserKey, &rec.PackageSlug, &rec.CheckoutType,
		&rec.TravelDate, &rec.Travellers, &rec.Amount, &rec.Currency, &rec.Status, &rec.PaymentID,
		&rec.FailureCode, &rec.FailureReason, &rec.CreatedAt, &rec.SettledAt,
	}
}
