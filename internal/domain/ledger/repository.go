// Package ledger provides the stock movement recorder and balance projector.
// The movement ledger is the source of truth for stock; the product's
// quantity field is a cache maintained inside the recorder's transaction.
package ledger

import (
	"context"
	"time"

	"grainledger/internal/core/entity"
	"grainledger/internal/core/id"
	"grainledger/internal/core/types"
)

// Projection is the ledger-derived balance of a product.
type Projection struct {
	Quantity types.Quantity `json:"quantity"`
	Value    types.Money    `json:"value"`
}

// MovementFilter narrows movement queries.
type MovementFilter struct {
	ProductID *id.ID
	ActorID   *id.ID
	Kind      *entity.MovementKind
	FromDate  *time.Time
	ToDate    *time.Time // exclusive
	Limit     int
	Offset    int
}

// MovementRepository defines storage operations for the movement ledger.
// Movements are append-only; there are no update or delete operations.
type MovementRepository interface {
	// Create appends a movement. Must be called inside the recorder's
	// transaction so the ledger and the product cache commit together.
	Create(ctx context.Context, m *entity.StockMovement) error

	// ListByProduct returns the full history of a product ordered by
	// (created_at, id), the replay order of the projector.
	ListByProduct(ctx context.Context, productID id.ID) ([]*entity.StockMovement, error)

	// List returns movements matching the filter, ordered by (created_at, id).
	List(ctx context.Context, filter MovementFilter) ([]*entity.StockMovement, error)

	// SumByProduct folds a product's history into its projected balance.
	SumByProduct(ctx context.Context, productID id.ID) (Projection, error)

	// HasKind reports whether the product has at least one movement of kind.
	// Backfill idempotence relies on this existence query.
	HasKind(ctx context.Context, productID id.ID, kind entity.MovementKind) (bool, error)

	// HasReference reports whether any movement links to the given record.
	HasReference(ctx context.Context, ref entity.Reference) (bool, error)

	// SumByReference totals the movements linked to one record.
	SumByReference(ctx context.Context, ref entity.Reference) (types.Quantity, types.Money, error)

	// LastRecordedAt returns the insert time of the most recently inserted
	// movement whose effective time falls in the window, or the zero time
	// when there is none. Backdated backfills keep their insert time, so
	// this is what report staleness compares against.
	LastRecordedAt(ctx context.Context, from, to time.Time, actorID id.ID) (time.Time, error)
}

// ProductRepository defines the product operations the ledger needs.
type ProductRepository interface {
	Create(ctx context.Context, p *entity.Product) error

	GetByID(ctx context.Context, productID id.ID) (*entity.Product, error)

	// GetForUpdate locks the product row for the current transaction.
	// Serializes concurrent recorders of the same product.
	GetForUpdate(ctx context.Context, productID id.ID) (*entity.Product, error)

	// SetQuantity writes the denormalized quantity cache. Only the recorder
	// and the repair service call this, always inside a transaction that
	// also appends the covering movement.
	SetQuantity(ctx context.Context, productID id.ID, quantity types.Quantity) error

	// ListActive returns products that participate in audits and repairs.
	ListActive(ctx context.Context) ([]*entity.Product, error)
}
