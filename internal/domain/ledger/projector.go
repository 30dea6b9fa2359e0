package ledger

import (
	"context"
	"fmt"

	"grainledger/internal/core/id"
	"grainledger/internal/core/types"
)

// Projector computes a product's balance by folding its movement history.
// Read-only: it never mutates state. The auditor uses it to detect drift and
// the repair service uses it to compute correction deltas.
type Projector struct {
	movements MovementRepository
}

// NewProjector creates a projector over the movement ledger.
func NewProjector(movements MovementRepository) *Projector {
	return &Projector{movements: movements}
}

// Project returns the signed quantity and monetary value accumulated over
// the product's full history. A product with no movements projects to zero;
// whether that contradicts its cached quantity is the auditor's call.
func (p *Projector) Project(ctx context.Context, productID id.ID) (Projection, error) {
	projection, err := p.movements.SumByProduct(ctx, productID)
	if err != nil {
		return Projection{}, fmt.Errorf("project balance: %w", err)
	}
	return projection, nil
}

// ChainBreak describes one violated link in a product's movement chain.
type ChainBreak struct {
	ProductID  id.ID          `json:"productId"`
	MovementID id.ID          `json:"movementId"`
	Position   int            `json:"position"`
	WantBefore types.Quantity `json:"wantBefore"`
	GotBefore  types.Quantity `json:"gotBefore"`
	Reason     string         `json:"reason"`
}

// ReplayChain walks a product's history in (created_at, id) order and
// returns every violated invariant: a snapshot that does not equal
// before + signed(quantity), or consecutive movements that do not chain.
func (p *Projector) ReplayChain(ctx context.Context, productID id.ID) ([]ChainBreak, error) {
	movements, err := p.movements.ListByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("replay chain: %w", err)
	}

	var breaks []ChainBreak
	for i, m := range movements {
		if m.StockAfter != m.StockBefore+m.SignedQuantity() {
			breaks = append(breaks, ChainBreak{
				ProductID:  productID,
				MovementID: m.ID,
				Position:   i,
				WantBefore: m.StockBefore,
				GotBefore:  m.StockBefore,
				Reason:     "stock_after does not equal stock_before plus signed quantity",
			})
		}
		if i > 0 && !movements[i-1].ChainsTo(m) {
			breaks = append(breaks, ChainBreak{
				ProductID:  productID,
				MovementID: m.ID,
				Position:   i,
				WantBefore: movements[i-1].StockAfter,
				GotBefore:  m.StockBefore,
				Reason:     "stock_before does not continue the previous movement",
			})
		}
	}

	return breaks, nil
}
