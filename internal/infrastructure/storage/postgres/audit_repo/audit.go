// Package audit_repo provides the PostgreSQL scan queries for the
// consistency auditor. Everything here is read-only.
package audit_repo

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	"grainledger/internal/core/apperror"
	"grainledger/internal/domain/audit"
	"grainledger/internal/infrastructure/storage/postgres"
)

// AuditRepo implements audit.Repository.
type AuditRepo struct {
	txManager *postgres.TxManager
}

var _ audit.Repository = (*AuditRepo)(nil)

// NewAuditRepo creates a new audit query repository.
func NewAuditRepo(txManager *postgres.TxManager) *AuditRepo {
	return &AuditRepo{txManager: txManager}
}

func (r *AuditRepo) SalesWithoutMovements(ctx context.Context, sampleLimit int) (int64, []audit.SaleSample, error) {
	const predicate = `
		EXISTS (SELECT 1 FROM sale_lines l WHERE l.sale_id = s.id)
		AND NOT EXISTS (
			SELECT 1
			FROM sale_lines l
			JOIN stock_movements m
				ON m.reference_kind = 'sale_line' AND m.reference_id = l.id
			WHERE l.sale_id = s.id
		)
	`

	var count int64
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx,
		"SELECT count(*) FROM sales s WHERE "+predicate,
	).Scan(&count)
	if err != nil {
		return 0, nil, apperror.NewDatabase(fmt.Errorf("count sales without movements: %w", err))
	}
	if count == 0 {
		return 0, nil, nil
	}

	var samples []audit.SaleSample
	err = pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &samples,
		`SELECT s.id AS sale_id, s.number FROM sales s WHERE `+predicate+
			` ORDER BY s.created_at LIMIT $1`,
		sampleLimit,
	)
	if err != nil {
		return 0, nil, apperror.NewDatabase(fmt.Errorf("sample sales without movements: %w", err))
	}
	return count, samples, nil
}

func (r *AuditRepo) LinesWithoutMovements(ctx context.Context, sampleLimit int) (int64, []audit.LineSample, error) {
	const predicate = `
		NOT EXISTS (
			SELECT 1 FROM stock_movements m
			WHERE m.reference_kind = 'sale_line' AND m.reference_id = l.id
		)
	`

	var count int64
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx,
		"SELECT count(*) FROM sale_lines l WHERE "+predicate,
	).Scan(&count)
	if err != nil {
		return 0, nil, apperror.NewDatabase(fmt.Errorf("count lines without movements: %w", err))
	}
	if count == 0 {
		return 0, nil, nil
	}

	var samples []audit.LineSample
	err = pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &samples,
		`SELECT l.id AS line_id, l.sale_id, l.product_id, l.line_no
		 FROM sale_lines l WHERE `+predicate+
			` ORDER BY l.sale_id, l.line_no LIMIT $1`,
		sampleLimit,
	)
	if err != nil {
		return 0, nil, apperror.NewDatabase(fmt.Errorf("sample lines without movements: %w", err))
	}
	return count, samples, nil
}

func (r *AuditRepo) OrphanReferences(ctx context.Context, sampleLimit int) (int64, []audit.OrphanSample, error) {
	// Purchases live in an external system, so only sale line references
	// can be resolved here.
	const predicate = `
		m.reference_kind = 'sale_line'
		AND NOT EXISTS (SELECT 1 FROM sale_lines l WHERE l.id = m.reference_id)
	`

	var count int64
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx,
		"SELECT count(*) FROM stock_movements m WHERE "+predicate,
	).Scan(&count)
	if err != nil {
		return 0, nil, apperror.NewDatabase(fmt.Errorf("count orphan references: %w", err))
	}
	if count == 0 {
		return 0, nil, nil
	}

	var samples []audit.OrphanSample
	err = pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &samples,
		`SELECT m.id AS movement_id, m.reference_kind, m.reference_id
		 FROM stock_movements m WHERE `+predicate+
			` ORDER BY m.created_at LIMIT $1`,
		sampleLimit,
	)
	if err != nil {
		return 0, nil, apperror.NewDatabase(fmt.Errorf("sample orphan references: %w", err))
	}
	return count, samples, nil
}

func (r *AuditRepo) LineMovementTotals(ctx context.Context) ([]audit.LineTotals, error) {
	// Movement totals flip to an outflow basis so they compare directly
	// against the line figures.
	const sql = `
		SELECT
			l.id         AS line_id,
			l.sale_id    AS sale_id,
			l.product_id AS product_id,
			l.quantity   AS line_quantity,
			l.unit_price AS unit_price,
			-SUM(CASE
				WHEN m.kind IN ('initial','in','adjustment','return') THEN m.quantity
				WHEN m.kind IN ('out','damage','transfer') THEN -m.quantity
				ELSE m.quantity
			END)                  AS movement_quantity,
			-SUM(m.total_value)   AS movement_value
		FROM sale_lines l
		JOIN stock_movements m
			ON m.reference_kind = 'sale_line' AND m.reference_id = l.id
		GROUP BY l.id, l.sale_id, l.product_id, l.quantity, l.unit_price
		ORDER BY l.sale_id, l.line_no
	`

	var totals []audit.LineTotals
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &totals, sql); err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("select line movement totals: %w", err))
	}
	return totals, nil
}
