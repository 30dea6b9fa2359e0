package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"grainledger/internal/core/tx"
	"grainledger/internal/core/types"
	"grainledger/internal/domain/ledger"
	"grainledger/pkg/logger"
)

// DefaultSampleLimit caps the number of example rows kept per check.
const DefaultSampleLimit = 5

// Service runs the consistency checks and assembles the audit report.
type Service struct {
	repo        Repository
	products    ledger.ProductRepository
	projector   *ledger.Projector
	txManager   tx.ReadOnlyManager
	epsilon     types.Money
	sampleLimit int
}

// NewService creates the auditor. epsilon bounds acceptable monetary
// rounding differences in the line value check.
func NewService(repo Repository, products ledger.ProductRepository, projector *ledger.Projector, txManager tx.ReadOnlyManager, epsilon types.Money) *Service {
	return &Service{
		repo:        repo,
		products:    products,
		projector:   projector,
		txManager:   txManager,
		epsilon:     epsilon,
		sampleLimit: DefaultSampleLimit,
	}
}

// Run executes every check and returns the aggregated report. A
// returned error means a check could not be executed at all; invariant
// violations never surface as errors. The checks share one read-only
// transaction so they all see the same snapshot.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	report := &Report{RanAt: time.Now().UTC()}

	checks := []struct {
		name CheckName
		fn   func(context.Context) (CheckResult, error)
	}{
		{CheckSalesWithoutMovements, s.checkSalesWithoutMovements},
		{CheckLinesWithoutMovements, s.checkLinesWithoutMovements},
		{CheckOrphanReferences, s.checkOrphanReferences},
		{CheckLineQuantityMismatch, s.checkLineQuantityMismatch},
		{CheckLineValueMismatch, s.checkLineValueMismatch},
		{CheckBalanceDrift, s.checkBalanceDrift},
		{CheckChainBreaks, s.checkChainBreaks},
	}

	err := s.txManager.ReadOnly(ctx, func(ctx context.Context) error {
		for _, c := range checks {
			result, err := c.fn(ctx)
			if err != nil {
				return fmt.Errorf("audit check %s: %w", c.name, err)
			}
			result.Name = c.name
			report.Checks = append(report.Checks, result)
			report.TotalIssues += result.Count
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "audit finished",
		"total_issues", report.TotalIssues,
		"healthy", report.Healthy(),
	)
	return report, nil
}

func (s *Service) checkSalesWithoutMovements(ctx context.Context) (CheckResult, error) {
	count, samples, err := s.repo.SalesWithoutMovements(ctx, s.sampleLimit)
	if err != nil {
		return CheckResult{}, err
	}
	result := CheckResult{Count: count}
	for _, sm := range samples {
		result.Samples = append(result.Samples, Sample{
			Entity: "sale",
			ID:     sm.SaleID,
			Detail: fmt.Sprintf("sale %s has no stock movements", sm.Number),
		})
	}
	return result, nil
}

func (s *Service) checkLinesWithoutMovements(ctx context.Context) (CheckResult, error) {
	count, samples, err := s.repo.LinesWithoutMovements(ctx, s.sampleLimit)
	if err != nil {
		return CheckResult{}, err
	}
	result := CheckResult{Count: count}
	for _, ls := range samples {
		result.Samples = append(result.Samples, Sample{
			Entity: "sale_line",
			ID:     ls.LineID,
			Detail: fmt.Sprintf("line %d of sale %s has no stock movement", ls.LineNo, ls.SaleID),
		})
	}
	return result, nil
}

func (s *Service) checkOrphanReferences(ctx context.Context) (CheckResult, error) {
	count, samples, err := s.repo.OrphanReferences(ctx, s.sampleLimit)
	if err != nil {
		return CheckResult{}, err
	}
	result := CheckResult{Count: count}
	for _, os := range samples {
		result.Samples = append(result.Samples, Sample{
			Entity: "movement",
			ID:     os.MovementID,
			Detail: fmt.Sprintf("references missing %s %s", os.ReferenceKind, os.ReferenceID),
		})
	}
	return result, nil
}

func (s *Service) checkLineQuantityMismatch(ctx context.Context) (CheckResult, error) {
	totals, err := s.repo.LineMovementTotals(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	var result CheckResult
	for _, t := range totals {
		if t.MovementQuantity == t.LineQuantity {
			continue
		}
		result.Count++
		if len(result.Samples) < s.sampleLimit {
			result.Samples = append(result.Samples, Sample{
				Entity: "sale_line",
				ID:     t.LineID,
				Detail: fmt.Sprintf("line quantity %s, movements total %s", t.LineQuantity, t.MovementQuantity),
			})
		}
	}
	return result, nil
}

func (s *Service) checkLineValueMismatch(ctx context.Context) (CheckResult, error) {
	totals, err := s.repo.LineMovementTotals(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	var result CheckResult
	for _, t := range totals {
		lineValue := t.LineQuantity.Decimal().Mul(decimal.Decimal(t.UnitPrice))
		if types.MoneyEqualWithin(types.Money(lineValue), t.MovementValue, s.epsilon) {
			continue
		}
		result.Count++
		if len(result.Samples) < s.sampleLimit {
			result.Samples = append(result.Samples, Sample{
				Entity: "sale_line",
				ID:     t.LineID,
				Detail: fmt.Sprintf("line value %s, movements total %s", lineValue.StringFixed(2), decimal.Decimal(t.MovementValue).StringFixed(2)),
			})
		}
	}
	return result, nil
}

func (s *Service) checkBalanceDrift(ctx context.Context) (CheckResult, error) {
	products, err := s.products.ListActive(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	var result CheckResult
	for _, p := range products {
		projection, err := s.projector.Project(ctx, p.ID)
		if err != nil {
			return CheckResult{}, fmt.Errorf("project product %s: %w", p.ID, err)
		}
		if projection.Quantity == p.Quantity {
			continue
		}
		result.Count++
		if len(result.Samples) < s.sampleLimit {
			result.Samples = append(result.Samples, Sample{
				Entity: "product",
				ID:     p.ID,
				Detail: fmt.Sprintf("%s: cached %s, projected %s", p.SKU, p.Quantity, projection.Quantity),
			})
		}
	}
	return result, nil
}

func (s *Service) checkChainBreaks(ctx context.Context) (CheckResult, error) {
	products, err := s.products.ListActive(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	var result CheckResult
	for _, p := range products {
		breaks, err := s.projector.ReplayChain(ctx, p.ID)
		if err != nil {
			return CheckResult{}, fmt.Errorf("replay product %s: %w", p.ID, err)
		}
		for _, b := range breaks {
			result.Count++
			if len(result.Samples) < s.sampleLimit {
				result.Samples = append(result.Samples, Sample{
					Entity: "movement",
					ID:     b.MovementID,
					Detail: fmt.Sprintf("%s: expected before %s, got %s (%s)", p.SKU, b.WantBefore, b.GotBefore, b.Reason),
				})
			}
		}
	}
	return result, nil
}
