// Package ledger_repo provides the PostgreSQL movement ledger repository.
package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"grainledger/internal/core/apperror"
	"grainledger/internal/core/entity"
	"grainledger/internal/core/id"
	"grainledger/internal/core/types"
	"grainledger/internal/domain/ledger"
	"grainledger/internal/infrastructure/storage/postgres"
)

const movementsTable = "stock_movements"

var movementColumns = []string{
	"id", "product_id", "actor_id", "kind", "quantity",
	"stock_before", "stock_after", "unit_price", "total_value",
	"description", "reference_kind", "reference_id", "metadata",
	"created_at", "recorded_at",
}

// signedQuantityExpr folds the kind sign convention into SQL: adding kinds
// count positive, subtracting kinds negative, corrections carry their own
// sign. Must stay in lockstep with MovementKind.Sign.
const signedQuantityExpr = `CASE
	WHEN kind IN ('initial','in','adjustment','return') THEN quantity
	WHEN kind IN ('out','damage','transfer') THEN -quantity
	ELSE quantity
END`

// MovementRepo implements ledger.MovementRepository. The ledger is
// append-only; this repo has no update or delete statements.
type MovementRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ ledger.MovementRepository = (*MovementRepo)(nil)

// NewMovementRepo creates a new movement repository.
func NewMovementRepo(txManager *postgres.TxManager) *MovementRepo {
	return &MovementRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *MovementRepo) Create(ctx context.Context, m *entity.StockMovement) error {
	q := r.builder.Insert(movementsTable).
		Columns(movementColumns...).
		Values(
			m.ID, m.ProductID, m.ActorID, m.Kind, m.Quantity,
			m.StockBefore, m.StockAfter, m.UnitPrice, m.TotalValue,
			m.Description, m.ReferenceKind, m.ReferenceID, m.Metadata,
			m.CreatedAt, m.RecordedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase(fmt.Errorf("insert movement: %w", err))
	}
	return nil
}

func (r *MovementRepo) ListByProduct(ctx context.Context, productID id.ID) ([]*entity.StockMovement, error) {
	return r.List(ctx, ledger.MovementFilter{ProductID: &productID})
}

func (r *MovementRepo) List(ctx context.Context, filter ledger.MovementFilter) ([]*entity.StockMovement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		OrderBy("created_at", "id")

	if filter.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *filter.ProductID})
	}
	if filter.ActorID != nil {
		q = q.Where(squirrel.Eq{"actor_id": *filter.ActorID})
	}
	if filter.Kind != nil {
		q = q.Where(squirrel.Eq{"kind": *filter.Kind})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.Lt{"created_at": *filter.ToDate})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var movements []*entity.StockMovement
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("select movements: %w", err))
	}
	return movements, nil
}

func (r *MovementRepo) SumByProduct(ctx context.Context, productID id.ID) (ledger.Projection, error) {
	sql := fmt.Sprintf(`
		SELECT
			COALESCE(SUM(%s), 0) AS quantity,
			COALESCE(SUM(total_value), 0) AS value
		FROM %s
		WHERE product_id = $1
	`, signedQuantityExpr, movementsTable)

	var row struct {
		Quantity types.Quantity `db:"quantity"`
		Value    types.Money    `db:"value"`
	}
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, productID); err != nil {
		return ledger.Projection{}, apperror.NewDatabase(fmt.Errorf("sum movements: %w", err))
	}
	return ledger.Projection{Quantity: row.Quantity, Value: row.Value}, nil
}

func (r *MovementRepo) HasKind(ctx context.Context, productID id.ID, kind entity.MovementKind) (bool, error) {
	sql := fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s WHERE product_id = $1 AND kind = $2
		)
	`, movementsTable)

	var exists bool
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, productID, kind).Scan(&exists)
	if err != nil {
		return false, apperror.NewDatabase(fmt.Errorf("check kind: %w", err))
	}
	return exists, nil
}

func (r *MovementRepo) HasReference(ctx context.Context, ref entity.Reference) (bool, error) {
	sql := fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s WHERE reference_kind = $1 AND reference_id = $2
		)
	`, movementsTable)

	var exists bool
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, ref.Kind, ref.ID).Scan(&exists)
	if err != nil {
		return false, apperror.NewDatabase(fmt.Errorf("check reference: %w", err))
	}
	return exists, nil
}

func (r *MovementRepo) SumByReference(ctx context.Context, ref entity.Reference) (types.Quantity, types.Money, error) {
	sql := fmt.Sprintf(`
		SELECT
			COALESCE(SUM(%s), 0) AS quantity,
			COALESCE(SUM(total_value), 0) AS value
		FROM %s
		WHERE reference_kind = $1 AND reference_id = $2
	`, signedQuantityExpr, movementsTable)

	var row struct {
		Quantity types.Quantity `db:"quantity"`
		Value    types.Money    `db:"value"`
	}
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, ref.Kind, ref.ID); err != nil {
		return 0, types.ZeroMoney(), apperror.NewDatabase(fmt.Errorf("sum reference movements: %w", err))
	}
	return row.Quantity, row.Value, nil
}

func (r *MovementRepo) LastRecordedAt(ctx context.Context, from, to time.Time, actorID id.ID) (time.Time, error) {
	sql := fmt.Sprintf(`
		SELECT MAX(recorded_at)
		FROM %s
		WHERE actor_id = $1 AND created_at >= $2 AND created_at < $3
	`, movementsTable)

	var last *time.Time
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, actorID, from, to).Scan(&last)
	if err != nil {
		return time.Time{}, apperror.NewDatabase(fmt.Errorf("query last recorded: %w", err))
	}
	if last == nil {
		return time.Time{}, nil
	}
	return *last, nil
}
