package repair

import (
	"context"
	"fmt"
	"time"

	"grainledger/internal/core/actor"
	"grainledger/internal/core/apperror"
	"grainledger/internal/core/entity"
	"grainledger/internal/core/id"
	"grainledger/internal/core/tx"
	"grainledger/internal/domain/ledger"
	"grainledger/pkg/logger"
)

// AnchorFunc resolves the backdated timestamp for a synthesized opening
// movement. The default anchors to the product's creation time.
type AnchorFunc func(p *entity.Product) time.Time

// AnchorProductCreated backdates opening movements to product creation.
func AnchorProductCreated(p *entity.Product) time.Time {
	return p.CreatedAt
}

// AnchorFixed backdates every opening movement to the same instant.
func AnchorFixed(at time.Time) AnchorFunc {
	return func(*entity.Product) time.Time { return at }
}

// Service runs the backfill and reconciliation jobs. All methods are
// idempotent: candidates are found by existence queries, so a re-run after
// a successful run plans nothing.
type Service struct {
	recorder  *ledger.Service
	movements ledger.MovementRepository
	products  ledger.ProductRepository
	repo      Repository
	trail     Trail
	txManager tx.Manager
	actor     actor.Actor
	anchorAt  AnchorFunc
}

// NewService creates the repair service. All writes are attributed to the
// given actor; maintenance jobs pass actor.System().
func NewService(
	recorder *ledger.Service,
	movements ledger.MovementRepository,
	products ledger.ProductRepository,
	repo Repository,
	trail Trail,
	txManager tx.Manager,
	as actor.Actor,
	anchorAt AnchorFunc,
) *Service {
	if trail == nil {
		trail = NopTrail{}
	}
	if anchorAt == nil {
		anchorAt = AnchorProductCreated
	}
	return &Service{
		recorder:  recorder,
		movements: movements,
		products:  products,
		repo:      repo,
		trail:     trail,
		txManager: txManager,
		actor:     as,
		anchorAt:  anchorAt,
	}
}

// BackfillInitialMovements synthesizes an opening movement for every active
// product that carries a positive quantity but has no initial-kind entry.
// The movement is backdated to the anchor and goes straight into the ledger
// without touching the quantity cache: the cache already holds the balance
// the movement establishes.
func (s *Service) BackfillInitialMovements(ctx context.Context, dryRun bool) (BackfillResult[InitialBackfill], error) {
	result := BackfillResult[InitialBackfill]{DryRun: dryRun}

	products, err := s.products.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("list products: %w", err)
	}

	for _, p := range products {
		if !p.Quantity.IsPositive() {
			continue
		}

		has, err := s.movements.HasKind(ctx, p.ID, entity.MovementInitial)
		if err != nil {
			result.Errors = append(result.Errors, ItemError{TargetID: p.ID, Err: err.Error()})
			continue
		}
		if has {
			result.Skipped++
			continue
		}

		item := InitialBackfill{
			ProductID: p.ID,
			SKU:       p.SKU,
			Quantity:  p.Quantity,
			AnchorAt:  s.anchorAt(p).UTC(),
		}

		if !dryRun {
			if err := s.createInitial(ctx, p, item); err != nil {
				result.Errors = append(result.Errors, ItemError{TargetID: p.ID, Err: err.Error()})
				continue
			}
		}
		result.Created = append(result.Created, item)
	}

	logger.Info(ctx, "initial backfill finished",
		"dry_run", dryRun,
		"created", len(result.Created),
		"skipped", result.Skipped,
		"errors", len(result.Errors),
	)
	return result, nil
}

func (s *Service) createInitial(ctx context.Context, p *entity.Product, item InitialBackfill) error {
	m := entity.NewStockMovement(p.ID, s.actor.ID, entity.MovementInitial, item.Quantity)
	m.CreatedAt = item.AnchorAt
	m.StockBefore = 0
	m.StockAfter = item.Quantity
	m.UnitPrice = p.UnitCost
	m.TotalValue = m.SignedValue()
	m.Description = "opening balance backfill"
	m.Metadata = entity.Metadata{
		"systemGenerated": true,
		"backfill":        string(ActionBackfillInitial),
	}

	if err := m.Validate(ctx); err != nil {
		return err
	}
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.movements.Create(ctx, m)
	})
	if err != nil {
		return err
	}
	return s.trail.Log(ctx, ActionBackfillInitial, p.ID, item)
}

// BackfillSaleLineMovements records the outflow movement for every sale
// line the POS never linked to the ledger. Historical sales may drive the
// balance negative; those movements are recorded anyway and the drift is
// left for reconciliation.
func (s *Service) BackfillSaleLineMovements(ctx context.Context, dryRun bool) (BackfillResult[LineBackfill], error) {
	result := BackfillResult[LineBackfill]{DryRun: dryRun}

	lines, err := s.repo.UnlinkedSaleLines(ctx)
	if err != nil {
		return result, fmt.Errorf("list unlinked sale lines: %w", err)
	}

	for _, line := range lines {
		ref := entity.Reference{Kind: entity.ReferenceSaleLine, ID: line.LineID}

		has, err := s.movements.HasReference(ctx, ref)
		if err != nil {
			result.Errors = append(result.Errors, ItemError{TargetID: line.LineID, Err: err.Error()})
			continue
		}
		if has {
			result.Skipped++
			continue
		}

		item := LineBackfill{
			LineID:    line.LineID,
			SaleID:    line.SaleID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		}

		if !dryRun {
			if err := s.createLineMovement(ctx, line, ref); err != nil {
				if apperror.IsInvalidQuantity(err) {
					// A line with no usable quantity cannot be booked;
					// leave it for a data fix instead of retrying forever.
					logger.Warn(ctx, "skipping sale line with unusable quantity",
						"line_id", line.LineID,
						"quantity", line.Quantity.String(),
					)
					result.Skipped++
					continue
				}
				result.Errors = append(result.Errors, ItemError{TargetID: line.LineID, Err: err.Error()})
				continue
			}
			s.verifyLineCoverage(ctx, line, ref)
		}
		result.Created = append(result.Created, item)
	}

	logger.Info(ctx, "sale line backfill finished",
		"dry_run", dryRun,
		"created", len(result.Created),
		"skipped", result.Skipped,
		"errors", len(result.Errors),
	)
	return result, nil
}

func (s *Service) createLineMovement(ctx context.Context, line UnlinkedLine, ref entity.Reference) error {
	price := line.UnitPrice
	_, err := s.recorder.Record(ctx, ledger.RecordInput{
		ProductID:   line.ProductID,
		ActorID:     s.actor.ID,
		Kind:        entity.MovementOut,
		Quantity:    line.Quantity,
		Description: fmt.Sprintf("sale %s backfill", line.SaleNumber),
		Reference:   &ref,
		UnitPrice:   &price,
		Metadata: entity.Metadata{
			"systemGenerated": true,
			"backfill":        string(ActionBackfillSaleLine),
			"saleCreatedAt":   line.SaleCreatedAt.UTC().Format(time.RFC3339),
		},
		AllowNegative: true,
	})
	if err != nil {
		return err
	}
	return s.trail.Log(ctx, ActionBackfillSaleLine, line.LineID, line)
}

// verifyLineCoverage confirms the just-backfilled line is now fully booked
// against the ledger. A shortfall means another writer raced the backfill;
// it is logged rather than failed because the next audit surfaces it anyway.
func (s *Service) verifyLineCoverage(ctx context.Context, line UnlinkedLine, ref entity.Reference) {
	qty, _, err := s.movements.SumByReference(ctx, ref)
	if err != nil {
		logger.Warn(ctx, "line coverage check failed", "line_id", line.LineID, "error", err)
		return
	}
	if booked := qty.Neg(); booked != line.Quantity {
		logger.Warn(ctx, "backfilled line not fully covered",
			"line_id", line.LineID,
			"line_quantity", line.Quantity.String(),
			"booked_quantity", booked.String(),
		)
	}
}

// ReconcileBalances finds every active product whose projected balance
// disagrees with the quantity cache and closes the gap with a correction
// movement. The cached quantity is what the store counted, so the
// correction completes the ledger rather than rewriting the count.
func (s *Service) ReconcileBalances(ctx context.Context, dryRun bool) (ReconcileResult, error) {
	result := ReconcileResult{DryRun: dryRun}

	products, err := s.products.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("list products: %w", err)
	}

	for _, p := range products {
		projection, err := s.movements.SumByProduct(ctx, p.ID)
		if err != nil {
			result.Errors = append(result.Errors, ItemError{TargetID: p.ID, Err: err.Error()})
			continue
		}
		if projection.Quantity == p.Quantity {
			continue
		}

		correction := Correction{
			ProductID: p.ID,
			SKU:       p.SKU,
			Cached:    p.Quantity,
			Projected: projection.Quantity,
			Delta:     p.Quantity - projection.Quantity,
		}

		if !dryRun {
			movement, err := s.recorder.Reconcile(ctx, p.ID, s.actor.ID, "balance reconciliation")
			if err != nil {
				result.Errors = append(result.Errors, ItemError{TargetID: p.ID, Err: err.Error()})
				continue
			}
			if movement == nil {
				// Drift closed between the scan and the lock.
				continue
			}
			if err := s.trail.Log(ctx, ActionCorrection, p.ID, correction); err != nil {
				result.Errors = append(result.Errors, ItemError{TargetID: p.ID, Err: err.Error()})
				continue
			}
		}
		result.Corrected = append(result.Corrected, correction)
	}

	logger.Info(ctx, "balance reconciliation finished",
		"dry_run", dryRun,
		"corrected", len(result.Corrected),
		"errors", len(result.Errors),
	)
	return result, nil
}

// RecalculateStock rewrites the quantity cache from the ledger without
// recording movements. The inverse of ReconcileBalances: use it when the
// ledger is known complete and the cache is the side that drifted.
func (s *Service) RecalculateStock(ctx context.Context, dryRun bool) (RecalculateResult, error) {
	result := RecalculateResult{DryRun: dryRun}

	products, err := s.products.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("list products: %w", err)
	}

	for _, p := range products {
		fix, changed, err := s.recalculateProduct(ctx, p.ID, dryRun)
		if err != nil {
			result.Errors = append(result.Errors, ItemError{TargetID: p.ID, Err: err.Error()})
			continue
		}
		if changed {
			result.Updated = append(result.Updated, fix)
		}
	}

	logger.Info(ctx, "stock recalculation finished",
		"dry_run", dryRun,
		"updated", len(result.Updated),
		"errors", len(result.Errors),
	)
	return result, nil
}

func (s *Service) recalculateProduct(ctx context.Context, productID id.ID, dryRun bool) (CacheFix, bool, error) {
	var (
		fix     CacheFix
		changed bool
	)
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		product, err := s.products.GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		projection, err := s.movements.SumByProduct(ctx, productID)
		if err != nil {
			return err
		}
		if projection.Quantity == product.Quantity {
			return nil
		}

		fix = CacheFix{
			ProductID: product.ID,
			SKU:       product.SKU,
			Previous:  product.Quantity,
			New:       projection.Quantity,
		}
		changed = true

		if dryRun {
			return nil
		}
		return s.products.SetQuantity(ctx, product.ID, projection.Quantity)
	})
	if err != nil {
		return CacheFix{}, false, err
	}
	if changed && !dryRun {
		if err := s.trail.Log(ctx, ActionRecalculate, fix.ProductID, fix); err != nil {
			return fix, true, err
		}
	}
	return fix, changed, nil
}
