package entity

import (
	"time"

	"grainledger/internal/core/id"
	"grainledger/internal/core/types"
)

// Sale is a point-of-sale transaction header. Sales are written by the POS
// surface (outside this subsystem); the ledger reads them to verify that each
// line item produced its `out` movement.
type Sale struct {
	ID        id.ID       `db:"id" json:"id"`
	Number    string      `db:"number" json:"number"`
	ActorID   id.ID       `db:"actor_id" json:"actorId"`
	Total     types.Money `db:"total" json:"total"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`

	Lines []SaleLine `db:"-" json:"lines,omitempty"`
}

// SaleLine is a line item of a sale.
//
// Invariants checked by the auditor:
//   - sum(movement.quantity where reference = line) == Quantity
//   - sum(movement.total_value)  ≈  Quantity x UnitPrice (within 0.01)
type SaleLine struct {
	ID        id.ID          `db:"id" json:"id"`
	SaleID    id.ID          `db:"sale_id" json:"saleId"`
	LineNo    int            `db:"line_no" json:"lineNo"`
	ProductID id.ID          `db:"product_id" json:"productId"`
	Quantity  types.Quantity `db:"quantity" json:"quantity"`
	UnitPrice types.Money    `db:"unit_price" json:"unitPrice"`
}

// LineTotal returns Quantity x UnitPrice.
func (l *SaleLine) LineTotal() types.Money {
	return l.Quantity.Decimal().Mul(l.UnitPrice)
}

// NewSale creates a sale header.
func NewSale(number string, actorID id.ID) *Sale {
	return &Sale{
		ID:        id.New(),
		Number:    number,
		ActorID:   actorID,
		CreatedAt: time.Now().UTC(),
	}
}

// AddLine appends a line item and keeps the header total in sync.
func (s *Sale) AddLine(productID id.ID, quantity types.Quantity, unitPrice types.Money) *SaleLine {
	line := SaleLine{
		ID:        id.New(),
		SaleID:    s.ID,
		LineNo:    len(s.Lines) + 1,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
	}
	s.Lines = append(s.Lines, line)
	s.Total = s.Total.Add(line.LineTotal())
	return &s.Lines[len(s.Lines)-1]
}
