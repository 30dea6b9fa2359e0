// Package sales holds the persistence contract for sale documents. Sales
// are collaborator data for the ledger: the engine reads them during
// audits and repairs and writes them only from seeding tools.
package sales

import (
	"context"

	"grainledger/internal/core/entity"
	"grainledger/internal/core/id"
)

// Repository persists sales together with their lines.
type Repository interface {
	// Create inserts a sale and all of its lines atomically.
	Create(ctx context.Context, sale *entity.Sale) error

	// GetByID loads a sale with its lines. Returns a not-found app
	// error when the sale does not exist.
	GetByID(ctx context.Context, saleID id.ID) (*entity.Sale, error)

	// List returns sales ordered by creation time, newest first.
	List(ctx context.Context, limit, offset uint64) ([]*entity.Sale, error)
}
