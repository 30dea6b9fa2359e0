// Package types provides the shared value types of the ledger.
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an exact monetary amount. It is an alias, not a named type, so
// the full decimal.Decimal API is available directly.
type Money = decimal.Decimal

// NewMoney builds Money from a float. Prefer NewMoneyFromString where the
// value originates as text.
func NewMoney(f float64) Money {
	return decimal.NewFromFloat(f)
}

// NewMoneyFromString parses a decimal string into Money.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney parses a decimal string and panics on error. For literals only.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ZeroMoney returns the zero amount.
func ZeroMoney() Money {
	return decimal.Zero
}

// MoneyEqualWithin reports whether two amounts agree within epsilon. The
// consistency checks use it so that per-line rounding never counts as drift.
func MoneyEqualWithin(a, b, epsilon Money) bool {
	return a.Sub(b).Abs().LessThanOrEqual(epsilon)
}

// Quantity is a stock amount in units of 1/10000, stored as a scaled
// integer. Rice is sold by weight, so fractional quantities are normal;
// four decimal places round-trip through a BIGINT column exactly.
type Quantity int64

// QuantityScale is the number of scaled units per whole unit.
const QuantityScale int64 = 10_000

// NewQuantityFromInt builds a Quantity from a whole-unit count.
func NewQuantityFromInt(v int64) Quantity { return Quantity(v * QuantityScale) }

// NewQuantityFromInt64Scaled builds a Quantity from an already scaled value.
func NewQuantityFromInt64Scaled(v int64) Quantity { return Quantity(v) }

// NewQuantityFromFloat64 rounds a float to the nearest scaled unit.
func NewQuantityFromFloat64(v float64) Quantity {
	return Quantity(math.Round(v * float64(QuantityScale)))
}

func (q Quantity) Int64Scaled() int64 { return int64(q) }

func (q Quantity) Float64() float64 { return float64(q) / float64(QuantityScale) }

// Decimal converts the quantity for monetary math (quantity x unit price).
func (q Quantity) Decimal() decimal.Decimal {
	return decimal.New(int64(q), -4)
}

func (q Quantity) IsZero() bool     { return q == 0 }
func (q Quantity) IsPositive() bool { return q > 0 }
func (q Quantity) IsNegative() bool { return q < 0 }
func (q Quantity) Neg() Quantity    { return -q }

func (q Quantity) Abs() Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// String formats the quantity with exactly four fractional digits.
func (q Quantity) String() string {
	return q.Decimal().StringFixed(4)
}

// MarshalJSON writes the quantity as a JSON number with four digits.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string. Digits
// beyond the fourth are truncated, not rounded.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		*q = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	v, err := ParseQuantity(s)
	if err != nil {
		return err
	}
	*q = v
	return nil
}

// ParseQuantity parses a decimal string into a scaled Quantity.
func ParseQuantity(s string) (Quantity, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse quantity %q: %w", s, err)
	}
	return Quantity(d.Shift(4).IntPart()), nil
}
