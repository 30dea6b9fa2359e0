package entity

import (
	"context"
	"strings"
	"time"

	"grainledger/internal/core/apperror"
	"grainledger/internal/core/id"
	"grainledger/internal/core/types"
)

// Product is a stock-keeping item of the store.
//
// Quantity is a denormalized cache of the movement ledger: the ledger is the
// source of truth and Quantity must always equal the fold of the product's
// movement history. Every write path that changes it goes through the
// movement recorder's transaction; nothing else writes it directly.
type Product struct {
	ID          id.ID          `db:"id" json:"id"`
	SKU         string         `db:"sku" json:"sku"`
	Name        string         `db:"name" json:"name"`
	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	UnitCost    types.Money    `db:"unit_cost" json:"unitCost"`
	UnitPrice   types.Money    `db:"unit_price" json:"unitPrice"`
	MinQuantity types.Quantity `db:"min_quantity" json:"minQuantity"`
	Active      bool           `db:"active" json:"active"`

	// Version for optimistic locking (incremented on each update)
	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewProduct creates a product with zero stock.
func NewProduct(sku, name string, unitCost, unitPrice types.Money) *Product {
	now := time.Now().UTC()
	return &Product{
		ID:        id.New(),
		SKU:       sku,
		Name:      name,
		UnitCost:  unitCost,
		UnitPrice: unitPrice,
		Active:    true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks entity invariants (no database access).
func (p *Product) Validate(ctx context.Context) error {
	if strings.TrimSpace(p.SKU) == "" {
		return apperror.NewValidation("product sku is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return apperror.NewValidation("product name is required")
	}
	if p.UnitCost.IsNegative() || p.UnitPrice.IsNegative() {
		return apperror.NewValidation("product prices must not be negative")
	}
	if p.MinQuantity.IsNegative() {
		return apperror.NewValidation("minimum quantity must not be negative")
	}
	return nil
}

// BelowMinimum reports whether the cached quantity is under the reorder threshold.
func (p *Product) BelowMinimum() bool {
	return p.Quantity < p.MinQuantity
}

// Touch updates the timestamp and increments version.
func (p *Product) Touch() {
	p.UpdatedAt = time.Now().UTC()
	p.Version++
}
