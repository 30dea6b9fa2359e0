// Package actor provides the identity of whoever performs ledger writes.
// Movements are always attributed: operations that change stock require an
// explicit actor and fail otherwise, instead of falling back to a shared
// system account.
package actor

import (
	"context"

	"grainledger/internal/core/id"
)

// Actor identifies who performed an operation. The identity provider itself
// (users, roles, sessions) is an external collaborator; the ledger only needs
// a stable id and a display name for movement attribution.
type Actor struct {
	ID   id.ID
	Name string
	Role string // admin, owner, karyawan, kasir
}

// System returns the maintenance actor used by command-line repair jobs.
// It is still explicit: jobs pass it deliberately, it is never a fallback.
func System() Actor {
	return Actor{
		ID:   id.MustParse("00000000-0000-7000-8000-000000000001"),
		Name: "maintenance",
		Role: "admin",
	}
}

type actorKey struct{}

// WithActor adds an Actor to context.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// FromContext returns the Actor from context, if any.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// IDFromContext returns the actor id from context or id.Nil().
func IDFromContext(ctx context.Context) id.ID {
	if a, ok := FromContext(ctx); ok {
		return a.ID
	}
	return id.Nil()
}
