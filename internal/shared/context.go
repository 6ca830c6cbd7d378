package shared

import (
	"context"

	"github.com/google/uuid"
)

// Scope identifies who is calling and in which workspace. Every core
// operation takes it explicitly.
type Scope struct {
	WorkspaceID uuid.UUID
	ActorID     int64
}

// Validate fails with ErrUnauthenticated when no workspace was resolved.
func (s Scope) Validate() error {
	if s.WorkspaceID == uuid.Nil {
		return ErrUnauthenticated
	}
	return nil
}

type scopeContextKey struct{}

// ContextWithScope stores the request scope resolved by middleware.
func ContextWithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the scope; the zero Scope fails Validate.
func ScopeFromContext(ctx context.Context) Scope {
	scope, _ := ctx.Value(scopeContextKey{}).(Scope)
	return scope
}
