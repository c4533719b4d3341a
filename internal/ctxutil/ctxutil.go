// Package ctxutil provides shared context key accessors.
//
// mcp needs to read the caller's identity from the context that server's
// auth middleware populates. Both packages import ctxutil for this, so
// neither has to import the other.
package ctxutil

import (
	"context"

	"github.com/ashita-ai/scratchnotebook/internal/identity"
)

type contextKey string

const (
	keyPrincipal contextKey = "principal"
	keyRequestID contextKey = "request_id"
)

// WithPrincipal returns a new context carrying the given resolved caller.
func WithPrincipal(ctx context.Context, p *identity.Principal) context.Context {
	return context.WithValue(ctx, keyPrincipal, p)
}

// PrincipalFromContext extracts the resolved caller from the context.
func PrincipalFromContext(ctx context.Context) *identity.Principal {
	if v, ok := ctx.Value(keyPrincipal).(*identity.Principal); ok {
		return v
	}
	return nil
}

// TenantIDFromContext extracts the tenant identifier from the context.
// Returns the empty string if no principal has been resolved onto ctx yet.
func TenantIDFromContext(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.TenantID
	}
	return ""
}

// WithRequestID returns a new context carrying the given request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestIDFromContext extracts the request id from the context, if any.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keyRequestID).(string); ok {
		return v
	}
	return ""
}
