package remote

import "context"

// Provider hands out a Storage bound to fresh credentials. Implementations
// are consulted per operation so token refresh stays transparent to callers.
type Provider interface {
	Storage(ctx context.Context) (Storage, error)
}

// StaticProvider wraps an already-built Storage. Used with the in-memory
// backend in tests and dev mode.
type StaticProvider struct {
	S Storage
}

func (p StaticProvider) Storage(ctx context.Context) (Storage, error) { return p.S, nil }
