package audit

import "context"

// Repository exposes the cross-table scan queries the auditor needs.
// Every query is read-only.
type Repository interface {
	// SalesWithoutMovements counts sales that have at least one line but
	// no movement referencing any of their lines, returning up to
	// sampleLimit examples.
	SalesWithoutMovements(ctx context.Context, sampleLimit int) (int64, []SaleSample, error)

	// LinesWithoutMovements counts sale lines with no referencing
	// movement.
	LinesWithoutMovements(ctx context.Context, sampleLimit int) (int64, []LineSample, error)

	// OrphanReferences counts movements whose reference points at a
	// sale line or purchase line that no longer exists.
	OrphanReferences(ctx context.Context, sampleLimit int) (int64, []OrphanSample, error)

	// LineMovementTotals returns, for every sale line that has at least
	// one referencing movement, the line figures next to the summed
	// movement figures (net outflow basis).
	LineMovementTotals(ctx context.Context) ([]LineTotals, error)
}
