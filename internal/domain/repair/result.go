// Package repair synthesizes the ledger entries the POS failed to record
// and reconciles drifted balances. Every repair is itself a ledger entry
// (or a direct, provenance-tagged insert for historical backfills), so the
// movement history stays the complete story of what happened to stock.
package repair

import (
	"time"

	"grainledger/internal/core/id"
	"grainledger/internal/core/types"
)

// ItemError captures a per-item failure. Batch jobs keep going after an
// item fails; the caller decides what a partial result means.
type ItemError struct {
	TargetID id.ID  `json:"targetId"`
	Err      string `json:"error"`
}

// BackfillResult summarizes one backfill run. In dry-run mode Created lists
// what a live run would create, in the same shape a live run reports.
type BackfillResult[T any] struct {
	DryRun  bool        `json:"dryRun"`
	Created []T         `json:"created"`
	Skipped int         `json:"skipped"`
	Errors  []ItemError `json:"errors"`
}

// InitialBackfill is one synthesized opening movement.
type InitialBackfill struct {
	ProductID id.ID          `json:"productId"`
	SKU       string         `json:"sku"`
	Quantity  types.Quantity `json:"quantity"`
	AnchorAt  time.Time      `json:"anchorAt"`
}

// LineBackfill is one synthesized sale-line movement.
type LineBackfill struct {
	LineID    id.ID          `json:"lineId"`
	SaleID    id.ID          `json:"saleId"`
	ProductID id.ID          `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
	UnitPrice types.Money    `json:"unitPrice"`
}

// Correction is one drift fix applied (or planned) by reconciliation.
type Correction struct {
	ProductID id.ID          `json:"productId"`
	SKU       string         `json:"sku"`
	Cached    types.Quantity `json:"cached"`
	Projected types.Quantity `json:"projected"`
	Delta     types.Quantity `json:"delta"`
}

// ReconcileResult summarizes one reconciliation run.
type ReconcileResult struct {
	DryRun    bool         `json:"dryRun"`
	Corrected []Correction `json:"corrected"`
	Errors    []ItemError  `json:"errors"`
}

// CacheFix is one denormalized quantity rewrite from recalculation.
type CacheFix struct {
	ProductID id.ID          `json:"productId"`
	SKU       string         `json:"sku"`
	Previous  types.Quantity `json:"previous"`
	New       types.Quantity `json:"new"`
}

// RecalculateResult summarizes one cache recalculation run.
type RecalculateResult struct {
	DryRun  bool        `json:"dryRun"`
	Updated []CacheFix  `json:"updated"`
	Errors  []ItemError `json:"errors"`
}
