// Package audit provides the read-only consistency auditor. It scans the
// full dataset for ledger invariant violations and reports them without
// mutating anything; findings are report rows, never errors.
package audit

import (
	"time"

	"grainledger/internal/core/entity"
	"grainledger/internal/core/id"
	"grainledger/internal/core/types"
)

// CheckName identifies one consistency check.
type CheckName string

const (
	CheckSalesWithoutMovements CheckName = "sales_without_movements"
	CheckLinesWithoutMovements CheckName = "sale_lines_without_movements"
	CheckOrphanReferences      CheckName = "orphan_references"
	CheckLineQuantityMismatch  CheckName = "line_quantity_mismatch"
	CheckLineValueMismatch     CheckName = "line_value_mismatch"
	CheckBalanceDrift          CheckName = "balance_drift"
	CheckChainBreaks           CheckName = "chain_breaks"
)

// Sample points at one offending record with a short human-readable detail.
type Sample struct {
	Entity string `json:"entity"` // sale, sale_line, movement, product
	ID     id.ID  `json:"id"`
	Detail string `json:"detail"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name    CheckName `json:"name"`
	Count   int64     `json:"count"`
	Samples []Sample  `json:"samples,omitempty"` // capped at the sample limit
}

// Report is the full audit outcome.
type Report struct {
	RanAt       time.Time     `json:"ranAt"`
	Checks      []CheckResult `json:"checks"`
	TotalIssues int64         `json:"totalIssues"`
}

// Healthy reports whether the scan found no violations. Used to gate
// "is the system healthy" decisions.
func (r *Report) Healthy() bool {
	return r.TotalIssues == 0
}

// Check returns the result for a named check, or nil.
func (r *Report) Check(name CheckName) *CheckResult {
	for i := range r.Checks {
		if r.Checks[i].Name == name {
			return &r.Checks[i]
		}
	}
	return nil
}

// --- Repository sample rows ---

// SaleSample is a sale with no associated movements.
type SaleSample struct {
	SaleID id.ID  `db:"sale_id" json:"saleId"`
	Number string `db:"number" json:"number"`
}

// LineSample is a sale line with no associated movements.
type LineSample struct {
	LineID    id.ID `db:"line_id" json:"lineId"`
	SaleID    id.ID `db:"sale_id" json:"saleId"`
	ProductID id.ID `db:"product_id" json:"productId"`
	LineNo    int   `db:"line_no" json:"lineNo"`
}

// OrphanSample is a movement whose weak reference points at a missing row.
type OrphanSample struct {
	MovementID    id.ID                `db:"movement_id" json:"movementId"`
	ReferenceKind entity.ReferenceKind `db:"reference_kind" json:"referenceKind"`
	ReferenceID   id.ID                `db:"reference_id" json:"referenceId"`
}

// LineTotals pairs a sale line with the totals of its linked movements,
// on an outflow (magnitude) basis.
type LineTotals struct {
	LineID           id.ID          `db:"line_id" json:"lineId"`
	SaleID           id.ID          `db:"sale_id" json:"saleId"`
	ProductID        id.ID          `db:"product_id" json:"productId"`
	LineQuantity     types.Quantity `db:"line_quantity" json:"lineQuantity"`
	UnitPrice        types.Money    `db:"unit_price" json:"unitPrice"`
	MovementQuantity types.Quantity `db:"movement_quantity" json:"movementQuantity"`
	MovementValue    types.Money    `db:"movement_value" json:"movementValue"`
}
