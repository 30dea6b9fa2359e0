// Package memory implements the repositories on in-process maps. It backs
// the domain tests and the seed tool's offline mode; production runs use
// the postgres implementations.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"grainledger/internal/core/apperror"
	"grainledger/internal/core/entity"
	"grainledger/internal/core/id"
	"grainledger/internal/core/tx"
	"grainledger/internal/core/types"
	"grainledger/internal/domain/audit"
	"grainledger/internal/domain/ledger"
	"grainledger/internal/domain/repair"
	"grainledger/internal/domain/reports"
	"grainledger/internal/domain/sales"
)

// Store holds all datasets behind one mutex. The sub-repositories returned
// by its accessors share the store, so cross-table queries see one
// consistent state.
type Store struct {
	mu        sync.RWMutex
	products  map[id.ID]*entity.Product
	movements []*entity.StockMovement
	sales     map[id.ID]*entity.Sale
	reports   map[string]*entity.PeriodReport
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		products: make(map[id.ID]*entity.Product),
		sales:    make(map[id.ID]*entity.Sale),
		reports:  make(map[string]*entity.PeriodReport),
	}
}

// Products returns the product repository view.
func (s *Store) Products() *ProductStore { return &ProductStore{s} }

// Movements returns the movement repository view.
func (s *Store) Movements() *MovementStore { return &MovementStore{s} }

// Sales returns the sale repository view.
func (s *Store) Sales() *SaleStore { return &SaleStore{s} }

// Reports returns the period report repository view.
func (s *Store) Reports() *ReportStore { return &ReportStore{s} }

// Audit returns the audit query view.
func (s *Store) Audit() *AuditStore { return &AuditStore{s} }

// Repair returns the repair query view.
func (s *Store) Repair() *RepairStore { return &RepairStore{s} }

// TxManager satisfies tx.Manager without real transactions. The store's
// mutex already serializes individual operations; tests that need
// multi-step atomicity drive the store from one goroutine.
type TxManager struct{}

var _ tx.ReadOnlyManager = TxManager{}

func (TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- products ---

type ProductStore struct{ s *Store }

var _ ledger.ProductRepository = (*ProductStore)(nil)

func (r *ProductStore) Create(_ context.Context, p *entity.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[p.ID]; ok {
		return apperror.NewValidation(fmt.Sprintf("product %s already exists", p.ID))
	}
	clone := *p
	r.s.products[p.ID] = &clone
	return nil
}

func (r *ProductStore) GetByID(_ context.Context, productID id.ID) (*entity.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.products[productID]
	if !ok {
		return nil, apperror.NewNotFound("product", productID.String())
	}
	clone := *p
	return &clone, nil
}

func (r *ProductStore) GetForUpdate(ctx context.Context, productID id.ID) (*entity.Product, error) {
	return r.GetByID(ctx, productID)
}

func (r *ProductStore) SetQuantity(_ context.Context, productID id.ID, quantity types.Quantity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[productID]
	if !ok {
		return apperror.NewNotFound("product", productID.String())
	}
	p.Quantity = quantity
	p.Touch()
	return nil
}

func (r *ProductStore) ListActive(_ context.Context) ([]*entity.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.Product
	for _, p := range r.s.products {
		if !p.Active {
			continue
		}
		clone := *p
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

// --- movements ---

type MovementStore struct{ s *Store }

var _ ledger.MovementRepository = (*MovementStore)(nil)

func (r *MovementStore) Create(_ context.Context, m *entity.StockMovement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	clone := *m
	r.s.movements = append(r.s.movements, &clone)
	return nil
}

// snapshot returns the movements matching keep in replay order.
func (r *MovementStore) snapshot(keep func(*entity.StockMovement) bool) []*entity.StockMovement {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.StockMovement
	for _, m := range r.s.movements {
		if keep != nil && !keep(m) {
			continue
		}
		clone := *m
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (r *MovementStore) ListByProduct(_ context.Context, productID id.ID) ([]*entity.StockMovement, error) {
	return r.snapshot(func(m *entity.StockMovement) bool {
		return m.ProductID == productID
	}), nil
}

func (r *MovementStore) List(_ context.Context, filter ledger.MovementFilter) ([]*entity.StockMovement, error) {
	out := r.snapshot(func(m *entity.StockMovement) bool {
		if filter.ProductID != nil && m.ProductID != *filter.ProductID {
			return false
		}
		if filter.ActorID != nil && m.ActorID != *filter.ActorID {
			return false
		}
		if filter.Kind != nil && m.Kind != *filter.Kind {
			return false
		}
		if filter.FromDate != nil && m.CreatedAt.Before(*filter.FromDate) {
			return false
		}
		if filter.ToDate != nil && !m.CreatedAt.Before(*filter.ToDate) {
			return false
		}
		return true
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MovementStore) SumByProduct(_ context.Context, productID id.ID) (ledger.Projection, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var projection ledger.Projection
	projection.Value = types.ZeroMoney()
	for _, m := range r.s.movements {
		if m.ProductID != productID {
			continue
		}
		projection.Quantity += m.SignedQuantity()
		projection.Value = projection.Value.Add(m.TotalValue)
	}
	return projection, nil
}

func (r *MovementStore) HasKind(_ context.Context, productID id.ID, kind entity.MovementKind) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, m := range r.s.movements {
		if m.ProductID == productID && m.Kind == kind {
			return true, nil
		}
	}
	return false, nil
}

func (r *MovementStore) HasReference(_ context.Context, ref entity.Reference) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, m := range r.s.movements {
		if m.ReferenceKind != nil && *m.ReferenceKind == ref.Kind &&
			m.ReferenceID != nil && *m.ReferenceID == ref.ID {
			return true, nil
		}
	}
	return false, nil
}

func (r *MovementStore) SumByReference(_ context.Context, ref entity.Reference) (types.Quantity, types.Money, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var quantity types.Quantity
	value := types.ZeroMoney()
	for _, m := range r.s.movements {
		if m.ReferenceKind == nil || *m.ReferenceKind != ref.Kind ||
			m.ReferenceID == nil || *m.ReferenceID != ref.ID {
			continue
		}
		quantity += m.SignedQuantity()
		value = value.Add(m.TotalValue)
	}
	return quantity, value, nil
}

func (r *MovementStore) LastRecordedAt(_ context.Context, from, to time.Time, actorID id.ID) (time.Time, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var last time.Time
	for _, m := range r.s.movements {
		if m.ActorID != actorID {
			continue
		}
		if m.CreatedAt.Before(from) || !m.CreatedAt.Before(to) {
			continue
		}
		if m.RecordedAt.After(last) {
			last = m.RecordedAt
		}
	}
	return last, nil
}

// --- sales ---

type SaleStore struct{ s *Store }

var _ sales.Repository = (*SaleStore)(nil)

func (r *SaleStore) Create(_ context.Context, sale *entity.Sale) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sales[sale.ID]; ok {
		return apperror.NewValidation(fmt.Sprintf("sale %s already exists", sale.ID))
	}
	clone := *sale
	clone.Lines = append([]entity.SaleLine(nil), sale.Lines...)
	r.s.sales[sale.ID] = &clone
	return nil
}

func (r *SaleStore) GetByID(_ context.Context, saleID id.ID) (*entity.Sale, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sale, ok := r.s.sales[saleID]
	if !ok {
		return nil, apperror.NewNotFound("sale", saleID.String())
	}
	clone := *sale
	clone.Lines = append([]entity.SaleLine(nil), sale.Lines...)
	return &clone, nil
}

func (r *SaleStore) List(_ context.Context, limit, offset uint64) ([]*entity.Sale, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.Sale
	for _, sale := range r.s.sales {
		clone := *sale
		clone.Lines = append([]entity.SaleLine(nil), sale.Lines...)
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset > 0 {
		if offset >= uint64(len(out)) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < uint64(len(out)) {
		out = out[:limit]
	}
	return out, nil
}

// --- reports ---

type ReportStore struct{ s *Store }

var _ reports.Repository = (*ReportStore)(nil)

func reportKey(periodType entity.PeriodType, periodStart time.Time, actorID id.ID) string {
	return fmt.Sprintf("%s|%s|%s", periodType, periodStart.UTC().Format(time.RFC3339), actorID)
}

func (r *ReportStore) Get(_ context.Context, periodType entity.PeriodType, periodStart time.Time, actorID id.ID) (*entity.PeriodReport, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	report, ok := r.s.reports[reportKey(periodType, periodStart, actorID)]
	if !ok {
		return nil, apperror.NewNotFound("period report", periodStart.Format(time.DateOnly))
	}
	clone := *report
	return &clone, nil
}

func (r *ReportStore) Insert(_ context.Context, report *entity.PeriodReport) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := reportKey(report.PeriodType, report.PeriodStart, report.ActorID)
	if _, ok := r.s.reports[key]; ok {
		return apperror.NewReportExists(string(report.PeriodType), report.PeriodStart.Format(time.DateOnly), report.ActorID.String())
	}
	clone := *report
	r.s.reports[key] = &clone
	return nil
}

func (r *ReportStore) Delete(_ context.Context, periodType entity.PeriodType, periodStart time.Time, actorID id.ID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.reports, reportKey(periodType, periodStart, actorID))
	return nil
}

func (r *ReportStore) ListDaily(_ context.Context, from, to time.Time, actorID id.ID) ([]*entity.PeriodReport, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.PeriodReport
	for _, report := range r.s.reports {
		if report.PeriodType != entity.PeriodDaily || report.ActorID != actorID {
			continue
		}
		if report.PeriodStart.Before(from) || !report.PeriodStart.Before(to) {
			continue
		}
		clone := *report
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.Before(out[j].PeriodStart) })
	return out, nil
}

func (r *ReportStore) SetStatus(_ context.Context, reportID id.ID, status entity.ReportStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, report := range r.s.reports {
		if report.ID == reportID {
			report.Status = status
			return nil
		}
	}
	return apperror.NewNotFound("period report", reportID.String())
}

// --- audit queries ---

type AuditStore struct{ s *Store }

var _ audit.Repository = (*AuditStore)(nil)

func (r *AuditStore) lineHasMovement(lineID id.ID) bool {
	for _, m := range r.s.movements {
		if m.ReferenceKind != nil && *m.ReferenceKind == entity.ReferenceSaleLine &&
			m.ReferenceID != nil && *m.ReferenceID == lineID {
			return true
		}
	}
	return false
}

func (r *AuditStore) sortedSales() []*entity.Sale {
	var out []*entity.Sale
	for _, sale := range r.s.sales {
		out = append(out, sale)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (r *AuditStore) SalesWithoutMovements(_ context.Context, sampleLimit int) (int64, []audit.SaleSample, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var (
		count   int64
		samples []audit.SaleSample
	)
	for _, sale := range r.sortedSales() {
		if len(sale.Lines) == 0 {
			continue
		}
		linked := false
		for _, line := range sale.Lines {
			if r.lineHasMovement(line.ID) {
				linked = true
				break
			}
		}
		if linked {
			continue
		}
		count++
		if len(samples) < sampleLimit {
			samples = append(samples, audit.SaleSample{SaleID: sale.ID, Number: sale.Number})
		}
	}
	return count, samples, nil
}

func (r *AuditStore) LinesWithoutMovements(_ context.Context, sampleLimit int) (int64, []audit.LineSample, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var (
		count   int64
		samples []audit.LineSample
	)
	for _, sale := range r.sortedSales() {
		for _, line := range sale.Lines {
			if r.lineHasMovement(line.ID) {
				continue
			}
			count++
			if len(samples) < sampleLimit {
				samples = append(samples, audit.LineSample{
					LineID:    line.ID,
					SaleID:    sale.ID,
					ProductID: line.ProductID,
					LineNo:    line.LineNo,
				})
			}
		}
	}
	return count, samples, nil
}

func (r *AuditStore) OrphanReferences(_ context.Context, sampleLimit int) (int64, []audit.OrphanSample, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	lines := make(map[id.ID]bool)
	for _, sale := range r.s.sales {
		for _, line := range sale.Lines {
			lines[line.ID] = true
		}
	}
	var (
		count   int64
		samples []audit.OrphanSample
	)
	for _, m := range r.s.movements {
		if m.ReferenceKind == nil || m.ReferenceID == nil {
			continue
		}
		if *m.ReferenceKind == entity.ReferenceSaleLine && lines[*m.ReferenceID] {
			continue
		}
		if *m.ReferenceKind != entity.ReferenceSaleLine {
			// No purchase dataset in memory; purchase references resolve
			// as orphans only when tests plant them.
			continue
		}
		count++
		if len(samples) < sampleLimit {
			samples = append(samples, audit.OrphanSample{
				MovementID:    m.ID,
				ReferenceKind: *m.ReferenceKind,
				ReferenceID:   *m.ReferenceID,
			})
		}
	}
	return count, samples, nil
}

func (r *AuditStore) LineMovementTotals(_ context.Context) ([]audit.LineTotals, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []audit.LineTotals
	for _, sale := range r.sortedSales() {
		for _, line := range sale.Lines {
			var (
				quantity types.Quantity
				value    = types.ZeroMoney()
				linked   bool
			)
			for _, m := range r.s.movements {
				if m.ReferenceKind == nil || *m.ReferenceKind != entity.ReferenceSaleLine ||
					m.ReferenceID == nil || *m.ReferenceID != line.ID {
					continue
				}
				linked = true
				quantity -= m.SignedQuantity()
				value = value.Sub(m.TotalValue)
			}
			if !linked {
				continue
			}
			out = append(out, audit.LineTotals{
				LineID:           line.ID,
				SaleID:           sale.ID,
				ProductID:        line.ProductID,
				LineQuantity:     line.Quantity,
				UnitPrice:        line.UnitPrice,
				MovementQuantity: quantity,
				MovementValue:    value,
			})
		}
	}
	return out, nil
}

// --- repair queries ---

type RepairStore struct{ s *Store }

var _ repair.Repository = (*RepairStore)(nil)

func (r *RepairStore) UnlinkedSaleLines(_ context.Context) ([]repair.UnlinkedLine, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []repair.UnlinkedLine
	scanner := &AuditStore{r.s}
	for _, sale := range r.s.sales {
		for _, line := range sale.Lines {
			if scanner.lineHasMovement(line.ID) {
				continue
			}
			out = append(out, repair.UnlinkedLine{
				LineID:        line.ID,
				SaleID:        sale.ID,
				SaleNumber:    sale.Number,
				SaleCreatedAt: sale.CreatedAt,
				ProductID:     line.ProductID,
				Quantity:      line.Quantity,
				UnitPrice:     line.UnitPrice,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SaleCreatedAt.Equal(out[j].SaleCreatedAt) {
			return out[i].SaleCreatedAt.Before(out[j].SaleCreatedAt)
		}
		return out[i].LineID.String() < out[j].LineID.String()
	})
	return out, nil
}
