// Package entity provides the ledger domain entities.
package entity

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Metadata is the arbitrary key-value bag attached to stock movements.
// Repair jobs use it for provenance (systemGenerated, previous/new values);
// manual entries may carry anything the caller finds useful.
// Implements sql.Scanner and driver.Valuer for PostgreSQL JSONB mapping.
//
// CRITICAL: Uses json.Number to preserve numeric precision.
// Default Go JSON decoder converts numbers to float64, losing precision for decimals.
type Metadata map[string]any

// Scan implements sql.Scanner for reading from PostgreSQL JSONB.
// Uses custom decoder with UseNumber() to preserve numeric precision.
func (m *Metadata) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}

	var source []byte
	switch v := src.(type) {
	case []byte:
		source = v
	case string:
		source = []byte(v)
	default:
		return fmt.Errorf("unsupported type for Metadata: %T", src)
	}

	if len(source) == 0 {
		*m = nil
		return nil
	}

	// CRITICAL: UseNumber() preserves numeric precision
	decoder := json.NewDecoder(bytes.NewReader(source))
	decoder.UseNumber()

	var result map[string]any
	if err := decoder.Decode(&result); err != nil {
		return fmt.Errorf("failed to decode Metadata: %w", err)
	}

	*m = result
	return nil
}

// Value implements driver.Valuer for writing to PostgreSQL JSONB.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// --- Type-safe getters ---

// GetString returns string value or empty string if not found/wrong type.
func (m Metadata) GetString(key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// GetBool returns bool value or false if not found/wrong type.
func (m Metadata) GetBool(key string) bool {
	if m == nil {
		return false
	}
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

// GetDecimal returns a decimal value, handling json.Number and string forms.
func (m Metadata) GetDecimal(key string) (decimal.Decimal, bool) {
	if m == nil {
		return decimal.Zero, false
	}
	switch v := m[key].(type) {
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(v)
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(v), true
	default:
		return decimal.Zero, false
	}
}

// Set stores a value, allocating the map when needed.
func (m *Metadata) Set(key string, value any) {
	if *m == nil {
		*m = make(Metadata)
	}
	(*m)[key] = value
}
