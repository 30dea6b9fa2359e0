// Package tx defines the transaction boundary used by domain services, so
// they stay independent of the storage backend.
package tx

import "context"

// Manager runs a function inside a transaction: fn's error rolls back,
// success commits. A transaction already active in ctx is reused, which is
// how the recorder nests repository calls into one atomic write.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager adds read-only transactions for batch reads that must see
// one consistent snapshot, such as the audit checks.
type ReadOnlyManager interface {
	Manager

	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
