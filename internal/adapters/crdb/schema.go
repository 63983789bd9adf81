package crdb

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
	id UUID PRIMARY KEY,
	order_id STRING NOT NULL UNIQUE,
	purchase_id STRING NOT NULL DEFAULT '',
	user_key STRING NOT NULL DEFAULT '',
	package_slug STRING NOT NULL,
	checkout_type STRING NOT NULL,
	travel_date STRING NOT NULL,
	travellers INT NOT NULL,
	amount INT8 NOT NULL,
	currency STRING NOT NULL,
	status STRING NOT NULL CHECK (status IN ('AWAITING_WIDGET', 'SUCCEEDED', 'FAILED', 'ABANDONED')),
	payment_id STRING NOT NULL DEFAULT '',
	failure_code STRING NOT NULL DEFAULT '',
	failure_reason STRING NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	settled_at TIMESTAMPTZ,
	INDEX attempts_user_pkg_idx (user_key, package_slug, created_at),
	INDEX attempts_status_idx (status, created_at)
);
CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type STRING NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type STRING NOT NULL,
	payload_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status STRING NOT NULL DEFAULT 'NEW',
	dedupe_key STRING NOT NULL DEFAULT '',
	claimed_until TIMESTAMPTZ,
	INDEX outbox_status_idx (status, created_at)
);
ALTER TABLE outbox ADD COLUMN IF NOT EXISTS claimed_until TIMESTAMPTZ;
`

// Migrate creates the ledger tables when they do not exist yet.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}
