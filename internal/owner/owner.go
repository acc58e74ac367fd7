// Package owner carries caller identity through a context.Context.
//
// Goroutines have no identity of their own, so primitives that need to know
// "who is calling" (re-entrant locks, per-subscriber event signals) read an
// ID from the context instead. Each logical caller (an HTTP request, an
// action body, a WebSocket subscriber loop) attaches its own ID once and
// passes the context down.
//
// Usage:
//
//	ctx = owner.With(ctx)     // attach a fresh ID if none is present
//	ctx = owner.Fresh(ctx)    // always attach a new ID, hiding the parent's
//	id, ok := owner.From(ctx)
package owner

import (
	"context"

	"github.com/google/uuid"
)

// ID identifies one logical caller.
type ID string

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{}

// New returns a new, process-unique ID.
func New() ID {
	return ID(uuid.NewString())
}

// With returns ctx unchanged if it already carries an ID, otherwise a child
// context carrying a new one.
func With(ctx context.Context) context.Context {
	if _, ok := From(ctx); ok {
		return ctx
	}
	return WithID(ctx, New())
}

// Fresh returns a child context carrying a new ID, shadowing any ID
// inherited from ctx.
func Fresh(ctx context.Context) context.Context {
	return WithID(ctx, New())
}

// WithID returns a child context carrying id.
func WithID(ctx context.Context, id ID) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// From returns the ID carried by ctx, if any.
func From(ctx context.Context) (ID, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(contextKey{}).(ID)
	return id, ok && id != ""
}
