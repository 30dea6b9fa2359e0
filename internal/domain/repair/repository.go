package repair

import (
	"context"
	"time"

	"grainledger/internal/core/id"
	"grainledger/internal/core/types"
)

// UnlinkedLine is a sale line with no referencing movement, joined with
// the sale fields the backfill needs.
type UnlinkedLine struct {
	LineID        id.ID          `db:"line_id"`
	SaleID        id.ID          `db:"sale_id"`
	SaleNumber    string         `db:"sale_number"`
	SaleCreatedAt time.Time      `db:"sale_created_at"`
	ProductID     id.ID          `db:"product_id"`
	Quantity      types.Quantity `db:"quantity"`
	UnitPrice     types.Money    `db:"unit_price"`
}

// Repository exposes the queries that find repair candidates.
type Repository interface {
	// UnlinkedSaleLines returns sale lines with no referencing movement,
	// oldest sale first.
	UnlinkedSaleLines(ctx context.Context) ([]UnlinkedLine, error)
}

// Action labels a repair-trail entry.
type Action string

const (
	ActionBackfillInitial  Action = "backfill_initial"
	ActionBackfillSaleLine Action = "backfill_sale_line"
	ActionCorrection       Action = "correction"
	ActionRecalculate      Action = "recalculate"
)

// Trail records what a live repair run did, for after-the-fact review.
// Payloads can grow large on big runs, so the storage implementation
// compresses them.
type Trail interface {
	Log(ctx context.Context, action Action, targetID id.ID, details any) error
}

// NopTrail discards trail entries.
type NopTrail struct{}

func (NopTrail) Log(context.Context, Action, id.ID, any) error { return nil }
