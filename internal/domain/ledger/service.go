package ledger

import (
	"context"
	"fmt"

	"grainledger/internal/core/apperror"
	"grainledger/internal/core/entity"
	"grainledger/internal/core/id"
	"grainledger/internal/core/tx"
	"grainledger/internal/core/types"
	"grainledger/pkg/logger"
)

// Service is the movement recorder. Every stock change in the system goes
// through Record: it appends the ledger entry and updates the product's
// quantity cache in one transaction.
type Service struct {
	movements MovementRepository
	products  ProductRepository
	txManager tx.Manager
}

// NewService creates a new recorder.
func NewService(movements MovementRepository, products ProductRepository, txManager tx.Manager) *Service {
	return &Service{
		movements: movements,
		products:  products,
		txManager: txManager,
	}
}

// RecordInput describes one stock movement to record.
type RecordInput struct {
	ProductID id.ID
	ActorID   id.ID
	Kind      entity.MovementKind

	// Quantity is an unsigned magnitude, except for correction movements
	// where it is the signed delta.
	Quantity types.Quantity

	Description string
	Reference   *entity.Reference
	Metadata    entity.Metadata

	// UnitPrice overrides the price captured on the movement. When nil the
	// recorder uses the product's sale price for subtracting kinds and its
	// cost for adding kinds.
	UnitPrice *types.Money

	// AllowNegative lets the balance go below zero. Repair jobs that replay
	// historical sales need it; regular POS paths leave it false.
	AllowNegative bool
}

// Record validates the input, locks the product row, appends the movement
// and moves the quantity cache to the new balance. The movement insert and
// the cache update commit atomically.
func (s *Service) Record(ctx context.Context, in RecordInput) (*entity.StockMovement, error) {
	movement := entity.NewStockMovement(in.ProductID, in.ActorID, in.Kind, in.Quantity)
	movement.Description = in.Description
	movement.Metadata = in.Metadata
	if in.Reference != nil {
		movement.SetReference(*in.Reference)
	}

	if err := movement.Validate(ctx); err != nil {
		return nil, err
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		product, err := s.products.GetForUpdate(ctx, in.ProductID)
		if err != nil {
			return err
		}

		delta := movement.SignedQuantity()
		movement.StockBefore = product.Quantity
		movement.StockAfter = product.Quantity + delta

		if movement.StockAfter.IsNegative() && !in.AllowNegative {
			return apperror.NewInsufficientStock(
				product.ID.String(),
				delta.Abs().String(),
				product.Quantity.String(),
			)
		}

		movement.UnitPrice = s.priceFor(product, movement, in.UnitPrice)
		movement.TotalValue = movement.SignedValue()

		if err := s.movements.Create(ctx, movement); err != nil {
			return fmt.Errorf("append movement: %w", err)
		}
		if err := s.products.SetQuantity(ctx, product.ID, movement.StockAfter); err != nil {
			return fmt.Errorf("update quantity cache: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "recorded stock movement",
		"movement_id", movement.ID,
		"product_id", movement.ProductID,
		"kind", movement.Kind,
		"quantity", movement.Quantity,
		"stock_after", movement.StockAfter,
	)

	return movement, nil
}

// Reconcile compares a product's projected balance with its quantity cache
// and, when they differ, appends a correction movement that carries the
// ledger to the cached balance. The cached quantity reflects what the store
// actually counted; a drift means the ledger is missing entries, and the
// correction closes the gap. Returns nil when there is no drift.
func (s *Service) Reconcile(ctx context.Context, productID, actorID id.ID, description string) (*entity.StockMovement, error) {
	var movement *entity.StockMovement

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		product, err := s.products.GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}

		projection, err := s.movements.SumByProduct(ctx, productID)
		if err != nil {
			return fmt.Errorf("project balance: %w", err)
		}
		if projection.Quantity == product.Quantity {
			return nil
		}

		delta := product.Quantity - projection.Quantity
		m := entity.NewStockMovement(productID, actorID, entity.MovementCorrection, delta)
		m.Description = description
		m.StockBefore = projection.Quantity
		m.StockAfter = product.Quantity
		m.UnitPrice = product.UnitCost
		m.TotalValue = m.SignedValue()
		m.Metadata = entity.Metadata{
			"systemGenerated":  true,
			"previousQuantity": projection.Quantity.String(),
			"newQuantity":      product.Quantity.String(),
		}

		if err := m.Validate(ctx); err != nil {
			return err
		}
		if err := s.movements.Create(ctx, m); err != nil {
			return fmt.Errorf("append correction: %w", err)
		}
		if err := s.products.SetQuantity(ctx, product.ID, m.StockAfter); err != nil {
			return fmt.Errorf("update quantity cache: %w", err)
		}

		movement = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	if movement != nil {
		logger.Info(ctx, "reconciled product balance",
			"movement_id", movement.ID,
			"product_id", movement.ProductID,
			"delta", movement.Quantity,
			"stock_after", movement.StockAfter,
		)
	}

	return movement, nil
}

// priceFor resolves the unit price captured on the movement.
func (s *Service) priceFor(product *entity.Product, m *entity.StockMovement, override *types.Money) types.Money {
	if override != nil {
		return *override
	}
	if m.Kind.Sign() < 0 {
		return product.UnitPrice
	}
	return product.UnitCost
}
