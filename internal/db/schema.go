package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the tables this service owns plus the read-only
// counter registry it consumes. Amounts are stored as decimal strings to
// preserve precision, matching the wire representation.
const Schema = `
CREATE TABLE IF NOT EXISTS counters (
	counter_id  UUID PRIMARY KEY,
	code        VARCHAR(20) NOT NULL UNIQUE,
	name        VARCHAR(100) NOT NULL,
	address     VARCHAR(200) NOT NULL DEFAULT '',
	is_active   BOOLEAN NOT NULL DEFAULT TRUE,
	max_staff   INTEGER NOT NULL DEFAULT 1,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS counter_staff (
	counter_staff_id UUID PRIMARY KEY,
	counter_id       UUID NOT NULL REFERENCES counters(counter_id),
	user_id          UUID NOT NULL,
	is_active        BOOLEAN NOT NULL DEFAULT TRUE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (counter_id, user_id)
);

CREATE TABLE IF NOT EXISTS counter_transactions (
	id                UUID PRIMARY KEY,
	code              VARCHAR(40) NOT NULL UNIQUE,
	kind              VARCHAR(20) NOT NULL,
	customer_id       UUID NOT NULL,
	amount_value      TEXT NOT NULL,
	counter_id        UUID NOT NULL,
	assigned_staff_id UUID,
	status            VARCHAR(20) NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	resolved_at       TIMESTAMPTZ,
	version           BIGINT NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_counter_tx_customer ON counter_transactions (customer_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_counter_tx_counter_pending ON counter_transactions (counter_id, created_at) WHERE status = 'PENDING';
`

// Migrate applies the schema. Idempotent; safe to run at startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
