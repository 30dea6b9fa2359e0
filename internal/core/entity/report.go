package entity

import (
	"time"

	"grainledger/internal/core/id"
	"grainledger/internal/core/types"
)

// PeriodType is the reporting window of a snapshot.
type PeriodType string

const (
	PeriodDaily   PeriodType = "daily"
	PeriodMonthly PeriodType = "monthly"
)

// ReportStatus tracks the downstream approval workflow.
type ReportStatus string

const (
	ReportPending  ReportStatus = "pending"
	ReportApproved ReportStatus = "approved"
)

// KindAggregate accumulates movement totals for one movement kind.
type KindAggregate struct {
	Count    int64          `json:"count"`
	Quantity types.Quantity `json:"quantity"` // signed net quantity
	Value    types.Money    `json:"value"`    // signed net value
}

// ReportData is the aggregate payload of a period report. Downstream
// consumers (rendering, export) treat it as opaque; it is regenerable from
// the movement ledger at any time.
type ReportData struct {
	MovementCount int64                          `json:"movementCount"`
	TotalQuantity types.Quantity                 `json:"totalQuantity"` // signed net
	TotalValue    types.Money                    `json:"totalValue"`    // signed net
	ByKind        map[MovementKind]KindAggregate `json:"byKind,omitempty"`
}

// Accumulate folds one movement into the aggregate.
func (d *ReportData) Accumulate(m *StockMovement) {
	if d.ByKind == nil {
		d.ByKind = make(map[MovementKind]KindAggregate)
	}
	agg := d.ByKind[m.Kind]
	agg.Count++
	agg.Quantity += m.SignedQuantity()
	agg.Value = agg.Value.Add(m.TotalValue)
	d.ByKind[m.Kind] = agg

	d.MovementCount++
	d.TotalQuantity += m.SignedQuantity()
	d.TotalValue = d.TotalValue.Add(m.TotalValue)
}

// Merge adds another aggregate into this one. Used when a monthly report is
// composed from its contributing daily reports.
func (d *ReportData) Merge(other ReportData) {
	if d.ByKind == nil && len(other.ByKind) > 0 {
		d.ByKind = make(map[MovementKind]KindAggregate)
	}
	for kind, agg := range other.ByKind {
		cur := d.ByKind[kind]
		cur.Count += agg.Count
		cur.Quantity += agg.Quantity
		cur.Value = cur.Value.Add(agg.Value)
		d.ByKind[kind] = cur
	}
	d.MovementCount += other.MovementCount
	d.TotalQuantity += other.TotalQuantity
	d.TotalValue = d.TotalValue.Add(other.TotalValue)
}

// PeriodReport is a denormalized snapshot of movement aggregates for one
// actor and period. One report exists per (period type, period start, actor);
// regeneration replaces the row, it is never patched in place.
type PeriodReport struct {
	ID          id.ID        `db:"id" json:"id"`
	ActorID     id.ID        `db:"actor_id" json:"actorId"`
	PeriodType  PeriodType   `db:"period_type" json:"periodType"`
	PeriodStart time.Time    `db:"period_start" json:"periodStart"`
	Status      ReportStatus `db:"status" json:"status"`
	Data        ReportData   `db:"-" json:"data"`
	GeneratedAt time.Time    `db:"generated_at" json:"generatedAt"`
}

// NewPeriodReport creates a pending report snapshot.
func NewPeriodReport(periodType PeriodType, periodStart time.Time, actorID id.ID, data ReportData) *PeriodReport {
	return &PeriodReport{
		ID:          id.New(),
		ActorID:     actorID,
		PeriodType:  periodType,
		PeriodStart: periodStart,
		Status:      ReportPending,
		Data:        data,
		GeneratedAt: time.Now().UTC(),
	}
}

// StaleAgainst reports whether a movement recorded at t postdates this
// snapshot, meaning the snapshot no longer reflects the live ledger.
func (r *PeriodReport) StaleAgainst(t time.Time) bool {
	return t.After(r.GeneratedAt)
}

// DayWindow returns the [start, end) UTC window of a daily period.
func DayWindow(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// MonthWindow returns the [start, end) UTC window of a monthly period.
func MonthWindow(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
