package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantity_String(t *testing.T) {
	tests := []struct {
		name string
		q    Quantity
		want string
	}{
		{"zero", 0, "0.0000"},
		{"whole", NewQuantityFromInt(25), "25.0000"},
		{"fractional", NewQuantityFromInt64Scaled(255000), "25.5000"},
		{"negative", NewQuantityFromInt(-3), "-3.0000"},
		{"sub-unit", NewQuantityFromInt64Scaled(1), "0.0001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.q.String())
		})
	}
}

func TestQuantity_JSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Quantity
	}{
		{"number", `12.5`, NewQuantityFromInt64Scaled(125000)},
		{"string", `"12.5"`, NewQuantityFromInt64Scaled(125000)},
		{"negative", `-0.25`, NewQuantityFromInt64Scaled(-2500)},
		{"truncates extra digits", `1.99999`, NewQuantityFromInt64Scaled(19999)},
		{"null", `null`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var q Quantity
			require.NoError(t, json.Unmarshal([]byte(tt.in), &q))
			assert.Equal(t, tt.want, q)
		})
	}

	out, err := json.Marshal(NewQuantityFromInt64Scaled(705000))
	require.NoError(t, err)
	assert.Equal(t, "70.5000", string(out))
}

func TestQuantity_Decimal(t *testing.T) {
	q := NewQuantityFromInt64Scaled(125000) // 12.5
	assert.True(t, q.Decimal().Equal(MustMoney("12.5")))
}

func TestMoneyEqualWithin(t *testing.T) {
	eps := MustMoney("0.01")

	assert.True(t, MoneyEqualWithin(MustMoney("100.00"), MustMoney("100.009"), eps))
	assert.True(t, MoneyEqualWithin(MustMoney("100.01"), MustMoney("100.00"), eps))
	assert.False(t, MoneyEqualWithin(MustMoney("100.02"), MustMoney("100.00"), eps))
}
