// Package sales_repo provides the PostgreSQL sale repository and the
// repair candidate queries that join sales against the movement ledger.
package sales_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"grainledger/internal/core/apperror"
	"grainledger/internal/core/entity"
	"grainledger/internal/core/id"
	"grainledger/internal/domain/repair"
	"grainledger/internal/domain/sales"
	"grainledger/internal/infrastructure/storage/postgres"
)

const (
	salesTable     = "sales"
	saleLinesTable = "sale_lines"
)

var saleLineColumns = []string{"id", "sale_id", "line_no", "product_id", "quantity", "unit_price"}

// SaleRepo implements sales.Repository and repair.Repository.
type SaleRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var (
	_ sales.Repository  = (*SaleRepo)(nil)
	_ repair.Repository = (*SaleRepo)(nil)
)

// NewSaleRepo creates a new sale repository.
func NewSaleRepo(txManager *postgres.TxManager) *SaleRepo {
	return &SaleRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts the sale and its lines in one transaction. Lines go over
// the COPY protocol when there are enough of them to matter.
func (r *SaleRepo) Create(ctx context.Context, sale *entity.Sale) error {
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		q := r.builder.Insert(salesTable).
			Columns("id", "number", "actor_id", "total", "created_at").
			Values(sale.ID, sale.Number, sale.ActorID, sale.Total, sale.CreatedAt)

		sql, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
			return apperror.NewDatabase(fmt.Errorf("insert sale: %w", err))
		}

		return r.insertLines(ctx, sale.Lines)
	})
}

func (r *SaleRepo) insertLines(ctx context.Context, lines []entity.SaleLine) error {
	if len(lines) == 0 {
		return nil
	}

	if len(lines) >= 50 {
		rows := make([][]any, 0, len(lines))
		for _, l := range lines {
			rows = append(rows, []any{l.ID, l.SaleID, l.LineNo, l.ProductID, l.Quantity, l.UnitPrice})
		}
		inserter := postgres.NewBatchInserter(r.txManager)
		if _, err := inserter.CopyFromSlice(ctx, saleLinesTable, saleLineColumns, rows); err != nil {
			return apperror.NewDatabase(fmt.Errorf("copy sale lines: %w", err))
		}
		return nil
	}

	q := r.builder.Insert(saleLinesTable).Columns(saleLineColumns...)
	for _, l := range lines {
		q = q.Values(l.ID, l.SaleID, l.LineNo, l.ProductID, l.Quantity, l.UnitPrice)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase(fmt.Errorf("insert sale lines: %w", err))
	}
	return nil
}

func (r *SaleRepo) GetByID(ctx context.Context, saleID id.ID) (*entity.Sale, error) {
	q := r.builder.Select("id", "number", "actor_id", "total", "created_at").
		From(salesTable).
		Where(squirrel.Eq{"id": saleID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var sale entity.Sale
	err = pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &sale, sql, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("sale", saleID)
		}
		return nil, apperror.NewDatabase(fmt.Errorf("select sale: %w", err))
	}

	lines, err := r.linesOf(ctx, saleID)
	if err != nil {
		return nil, err
	}
	sale.Lines = lines
	return &sale, nil
}

func (r *SaleRepo) linesOf(ctx context.Context, saleID id.ID) ([]entity.SaleLine, error) {
	q := r.builder.Select(saleLineColumns...).
		From(saleLinesTable).
		Where(squirrel.Eq{"sale_id": saleID}).
		OrderBy("line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var lines []entity.SaleLine
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &lines, sql, args...); err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("select sale lines: %w", err))
	}
	return lines, nil
}

func (r *SaleRepo) List(ctx context.Context, limit, offset uint64) ([]*entity.Sale, error) {
	q := r.builder.Select("id", "number", "actor_id", "total", "created_at").
		From(salesTable).
		OrderBy("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var out []*entity.Sale
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("select sales: %w", err))
	}
	return out, nil
}

// UnlinkedSaleLines returns sale lines with no referencing movement,
// oldest sale first.
func (r *SaleRepo) UnlinkedSaleLines(ctx context.Context) ([]repair.UnlinkedLine, error) {
	sql := `
		SELECT
			l.id         AS line_id,
			s.id         AS sale_id,
			s.number     AS sale_number,
			s.created_at AS sale_created_at,
			l.product_id,
			l.quantity,
			l.unit_price
		FROM sale_lines l
		JOIN sales s ON s.id = l.sale_id
		WHERE NOT EXISTS (
			SELECT 1 FROM stock_movements m
			WHERE m.reference_kind = 'sale_line' AND m.reference_id = l.id
		)
		ORDER BY s.created_at, l.id
	`

	var lines []repair.UnlinkedLine
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &lines, sql); err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("select unlinked lines: %w", err))
	}
	return lines, nil
}
