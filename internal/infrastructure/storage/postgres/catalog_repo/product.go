// Package catalog_repo provides the PostgreSQL product repository.
package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"grainledger/internal/core/apperror"
	"grainledger/internal/core/entity"
	"grainledger/internal/core/id"
	"grainledger/internal/core/types"
	"grainledger/internal/domain/ledger"
	"grainledger/internal/infrastructure/storage/postgres"
)

const productsTable = "products"

var productColumns = []string{
	"id", "sku", "name", "quantity",
	"unit_cost", "unit_price", "min_quantity",
	"active", "version", "created_at", "updated_at",
}

// ProductRepo implements ledger.ProductRepository.
type ProductRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ ledger.ProductRepository = (*ProductRepo)(nil)

// NewProductRepo creates a new product repository.
func NewProductRepo(txManager *postgres.TxManager) *ProductRepo {
	return &ProductRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *ProductRepo) Create(ctx context.Context, p *entity.Product) error {
	q := r.builder.Insert(productsTable).
		Columns(productColumns...).
		Values(
			p.ID, p.SKU, p.Name, p.Quantity,
			p.UnitCost, p.UnitPrice, p.MinQuantity,
			p.Active, p.Version, p.CreatedAt, p.UpdatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return apperror.NewDatabase(fmt.Errorf("insert product: %w", err))
	}
	return nil
}

func (r *ProductRepo) GetByID(ctx context.Context, productID id.ID) (*entity.Product, error) {
	return r.get(ctx, productID, false)
}

// GetForUpdate locks the product row until the surrounding transaction
// ends. Concurrent recorders of the same product serialize here.
func (r *ProductRepo) GetForUpdate(ctx context.Context, productID id.ID) (*entity.Product, error) {
	return r.get(ctx, productID, true)
}

func (r *ProductRepo) get(ctx context.Context, productID id.ID, forUpdate bool) (*entity.Product, error) {
	q := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"id": productID})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var p entity.Product
	err = pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &p, sql, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("product", productID)
		}
		return nil, apperror.NewDatabase(fmt.Errorf("select product: %w", err))
	}
	return &p, nil
}

func (r *ProductRepo) SetQuantity(ctx context.Context, productID id.ID, quantity types.Quantity) error {
	q := r.builder.Update(productsTable).
		Set("quantity", quantity).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": productID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("update quantity: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("product", productID)
	}
	return nil
}

func (r *ProductRepo) ListActive(ctx context.Context) ([]*entity.Product, error) {
	q := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"active": true}).
		OrderBy("sku")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var products []*entity.Product
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &products, sql, args...); err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("select products: %w", err))
	}
	return products, nil
}
