// Package id provides UUIDv7 identifiers.
//
// The ledger orders movements by (created_at, id): UUIDv7 embeds a Unix
// timestamp in its leading bits, so the id tie-break inside one timestamp
// still follows insertion order and stays B-tree friendly in PostgreSQL.
package id

import "github.com/google/uuid"

// ID is an alias so the full uuid API stays available.
type ID = uuid.UUID

// New generates a time-ordered UUIDv7.
func New() ID {
	v7, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does; fall back to V4.
		return uuid.New()
	}
	return v7
}

// Parse converts a string to an ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse panics on an invalid string. For constants and tests.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns the zero ID.
func Nil() ID {
	return uuid.Nil
}

// IsNil reports whether the ID is the zero value.
func IsNil(id ID) bool {
	return id == uuid.Nil
}
