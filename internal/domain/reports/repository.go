// Package reports generates the daily and monthly movement aggregates.
// Reports are stored snapshots: regeneration replaces the whole row, and
// staleness is decided against the newest movement in the period.
package reports

import (
	"context"
	"time"

	"grainledger/internal/core/entity"
	"grainledger/internal/core/id"
)

// Repository persists period reports.
type Repository interface {
	// Get loads one report. Returns a not-found app error when absent.
	Get(ctx context.Context, periodType entity.PeriodType, periodStart time.Time, actorID id.ID) (*entity.PeriodReport, error)

	// Insert stores a new report. A report already covering the same
	// period for the same actor surfaces as a report-exists app error.
	Insert(ctx context.Context, report *entity.PeriodReport) error

	// Delete removes one report. Deleting an absent report is a no-op.
	Delete(ctx context.Context, periodType entity.PeriodType, periodStart time.Time, actorID id.ID) error

	// ListDaily returns the daily reports with period start in [from, to),
	// ordered by period start.
	ListDaily(ctx context.Context, from, to time.Time, actorID id.ID) ([]*entity.PeriodReport, error)

	// SetStatus updates the approval status of one report.
	SetStatus(ctx context.Context, reportID id.ID, status entity.ReportStatus) error
}
