package postgres

import (
	"context"
	"fmt"

	"grainledger/pkg/logger"
)

// Quantities are stored as BIGINT in fixed-point 1/10000 units, matching
// types.Quantity. Monetary columns are NUMERIC and scan into shopspring
// decimals via the codec registered on every connection.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id            UUID PRIMARY KEY,
		sku           TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL,
		quantity      BIGINT NOT NULL DEFAULT 0,
		unit_cost     NUMERIC(18,2) NOT NULL DEFAULT 0,
		unit_price    NUMERIC(18,2) NOT NULL DEFAULT 0,
		min_quantity  BIGINT NOT NULL DEFAULT 0,
		active        BOOLEAN NOT NULL DEFAULT TRUE,
		version       INTEGER NOT NULL DEFAULT 1,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS stock_movements (
		id             UUID PRIMARY KEY,
		product_id     UUID NOT NULL REFERENCES products(id),
		actor_id       UUID NOT NULL,
		kind           TEXT NOT NULL,
		quantity       BIGINT NOT NULL,
		stock_before   BIGINT NOT NULL,
		stock_after    BIGINT NOT NULL,
		unit_price     NUMERIC(18,2) NOT NULL DEFAULT 0,
		total_value    NUMERIC(18,2) NOT NULL DEFAULT 0,
		description    TEXT NOT NULL DEFAULT '',
		reference_kind TEXT,
		reference_id   UUID,
		metadata       JSONB,
		created_at     TIMESTAMPTZ NOT NULL,
		recorded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_movements_product_created
		ON stock_movements (product_id, created_at, id)`,
	`CREATE INDEX IF NOT EXISTS idx_movements_reference
		ON stock_movements (reference_kind, reference_id)
		WHERE reference_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_movements_actor_created
		ON stock_movements (actor_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS sales (
		id         UUID PRIMARY KEY,
		number     TEXT NOT NULL UNIQUE,
		actor_id   UUID NOT NULL,
		total      NUMERIC(18,2) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS sale_lines (
		id         UUID PRIMARY KEY,
		sale_id    UUID NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
		line_no    INTEGER NOT NULL,
		product_id UUID NOT NULL REFERENCES products(id),
		quantity   BIGINT NOT NULL,
		unit_price NUMERIC(18,2) NOT NULL DEFAULT 0,
		UNIQUE (sale_id, line_no)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_lines_product
		ON sale_lines (product_id)`,

	`CREATE TABLE IF NOT EXISTS period_reports (
		id           UUID PRIMARY KEY,
		actor_id     UUID NOT NULL,
		period_type  TEXT NOT NULL,
		period_start TIMESTAMPTZ NOT NULL,
		status       TEXT NOT NULL DEFAULT 'pending',
		data         JSONB NOT NULL,
		generated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (period_type, period_start, actor_id)
	)`,

	`CREATE TABLE IF NOT EXISTS repair_trail (
		id                 UUID PRIMARY KEY,
		action             TEXT NOT NULL,
		target_id          UUID NOT NULL,
		actor_id           UUID,
		details            JSONB,
		details_compressed BYTEA,
		compression_algo   TEXT NOT NULL DEFAULT 'none',
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_repair_trail_target
		ON repair_trail (target_id, created_at)`,
}

// Migrate creates the schema. Statements are idempotent, so running it on
// every start is safe.
func Migrate(ctx context.Context, pool *Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	logger.Info(ctx, "schema migrated", "statements", len(schemaStatements))
	return nil
}
