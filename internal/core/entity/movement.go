package entity

import (
	"context"
	"time"

	"grainledger/internal/core/apperror"
	"grainledger/internal/core/id"
	"grainledger/internal/core/types"
)

// MovementKind classifies a stock movement.
type MovementKind string

const (
	// MovementInitial seeds the ledger with the opening stock of a product.
	MovementInitial MovementKind = "initial"
	// MovementIn is a purchase receipt.
	MovementIn MovementKind = "in"
	// MovementOut is a sale issue.
	MovementOut MovementKind = "out"
	// MovementAdjustment is a manual positive stock adjustment.
	MovementAdjustment MovementKind = "adjustment"
	// MovementCorrection is a reconciliation entry carrying a signed delta.
	MovementCorrection MovementKind = "correction"
	// MovementReturn is a customer return back into stock.
	MovementReturn MovementKind = "return"
	// MovementDamage writes off damaged or spoiled stock.
	MovementDamage MovementKind = "damage"
	// MovementTransfer moves stock out to another location.
	MovementTransfer MovementKind = "transfer"
)

// Valid reports whether k is a known movement kind.
func (k MovementKind) Valid() bool {
	switch k {
	case MovementInitial, MovementIn, MovementOut, MovementAdjustment,
		MovementCorrection, MovementReturn, MovementDamage, MovementTransfer:
		return true
	}
	return false
}

// Sign convention, applied uniformly:
//   - initial, in, adjustment, return store an unsigned magnitude and add;
//   - out, damage, transfer store an unsigned magnitude and subtract;
//   - correction stores the signed delta directly in Quantity.
//
// Sign returns +1 for additive kinds, -1 for subtractive kinds, 0 for correction.
func (k MovementKind) Sign() int {
	switch k {
	case MovementInitial, MovementIn, MovementAdjustment, MovementReturn:
		return 1
	case MovementOut, MovementDamage, MovementTransfer:
		return -1
	default:
		return 0
	}
}

// ReferenceKind discriminates the weak polymorphic link on a movement.
// The storage layer does not enforce these references; the auditor's orphan
// check is the integrity mechanism.
type ReferenceKind string

const (
	ReferenceSaleLine     ReferenceKind = "sale_line"
	ReferencePurchaseLine ReferenceKind = "purchase_line"
)

// Reference is a typed weak link from a movement to its source record.
type Reference struct {
	Kind ReferenceKind `json:"kind"`
	ID   id.ID         `json:"id"`
}

// StockMovement is an immutable ledger entry. Movements are append-only:
// corrections are new movements, never edits.
//
// Invariant: StockAfter = StockBefore + SignedQuantity(), and consecutive
// movements for the same product, ordered by (created_at, id), must chain:
// StockAfter[n] == StockBefore[n+1].
type StockMovement struct {
	ID        id.ID        `db:"id" json:"id"`
	ProductID id.ID        `db:"product_id" json:"productId"`
	ActorID   id.ID        `db:"actor_id" json:"actorId"`
	Kind      MovementKind `db:"kind" json:"kind"`

	// Quantity is an unsigned magnitude for every kind except correction,
	// which stores the signed delta. See MovementKind.Sign.
	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// Balance snapshot at record time
	StockBefore types.Quantity `db:"stock_before" json:"stockBefore"`
	StockAfter  types.Quantity `db:"stock_after" json:"stockAfter"`

	// Pricing at time of movement
	UnitPrice  types.Money `db:"unit_price" json:"unitPrice"`
	TotalValue types.Money `db:"total_value" json:"totalValue"` // signed

	Description string `db:"description" json:"description,omitempty"`

	// Weak polymorphic reference (sale line, purchase line, nil for manual)
	ReferenceKind *ReferenceKind `db:"reference_kind" json:"referenceKind,omitempty"`
	ReferenceID   *id.ID         `db:"reference_id" json:"referenceId,omitempty"`

	Metadata Metadata `db:"metadata" json:"metadata,omitempty"`

	// CreatedAt is the effective time of the movement; backfills backdate
	// it. RecordedAt is when the row was inserted and never moves, so
	// report staleness can see late-arriving entries in old periods.
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	RecordedAt time.Time `db:"recorded_at" json:"recordedAt"`
}

// NewStockMovement creates a movement with a generated time-ordered id.
// Balance snapshot fields are filled in by the recorder.
func NewStockMovement(productID, actorID id.ID, kind MovementKind, quantity types.Quantity) *StockMovement {
	return &StockMovement{
		ID:         id.New(),
		ProductID:  productID,
		ActorID:    actorID,
		Kind:       kind,
		Quantity:   quantity,
		CreatedAt:  time.Now().UTC(),
		RecordedAt: time.Now().UTC(),
	}
}

// SignedQuantity returns the delta this movement applies to the balance.
func (m *StockMovement) SignedQuantity() types.Quantity {
	switch m.Kind.Sign() {
	case 1:
		return m.Quantity
	case -1:
		return m.Quantity.Neg()
	default:
		return m.Quantity // correction stores the signed delta
	}
}

// SignedValue returns the monetary delta: SignedQuantity x UnitPrice.
func (m *StockMovement) SignedValue() types.Money {
	return m.SignedQuantity().Decimal().Mul(m.UnitPrice)
}

// Reference returns the typed weak link, if present.
func (m *StockMovement) Reference() *Reference {
	if m.ReferenceKind == nil || m.ReferenceID == nil {
		return nil
	}
	return &Reference{Kind: *m.ReferenceKind, ID: *m.ReferenceID}
}

// SetReference attaches a weak link to the movement's source record.
func (m *StockMovement) SetReference(ref Reference) {
	m.ReferenceKind = &ref.Kind
	m.ReferenceID = &ref.ID
}

// ChainsTo reports whether next continues this movement's balance chain.
func (m *StockMovement) ChainsTo(next *StockMovement) bool {
	return m.StockAfter == next.StockBefore
}

// Validate checks entity invariants (no database access).
func (m *StockMovement) Validate(ctx context.Context) error {
	if id.IsNil(m.ProductID) {
		return apperror.NewValidation("movement product is required")
	}
	if id.IsNil(m.ActorID) {
		return apperror.NewMissingActor()
	}
	if !m.Kind.Valid() {
		return apperror.NewValidation("unknown movement kind: " + string(m.Kind))
	}
	if m.Kind == MovementCorrection {
		if m.Quantity.IsZero() {
			return apperror.NewInvalidQuantity(string(m.Kind), m.Quantity.String())
		}
		return nil
	}
	if !m.Quantity.IsPositive() {
		return apperror.NewInvalidQuantity(string(m.Kind), m.Quantity.String())
	}
	return nil
}
