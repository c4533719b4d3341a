// Package identity resolves the caller of an MCP or HTTP request to a
// tenant, using the static bearer-token registry configured at startup.
//
// There is no token issuance anywhere in this system: a deployment that
// wants auth enabled provisions principal:token pairs out of band (an
// environment variable, a secrets manager) and hands tokens to callers
// directly, the same way original_source/scratch_notebook/auth.py's
// ScratchTokenAuthProvider does. Resolve never mutates the registry.
package identity

import (
	"crypto/subtle"
	"strings"

	"github.com/ashita-ai/scratchnotebook/internal/config"
	"github.com/ashita-ai/scratchnotebook/internal/domainerr"
)

// Principal is the resolved identity of a caller: which tenant they act as
// and the human-readable name they registered under.
type Principal struct {
	Name     string
	TenantID string
}

// Resolver looks up bearer tokens against a fixed registry.
type Resolver struct {
	enabled       bool
	defaultTenant string
	byToken       map[string]config.TokenEntry
}

// NewResolver builds a Resolver from configuration. When auth is disabled
// every request resolves to the configured default tenant, preserving the
// single-tenant deployment story described in spec §4.A.
func NewResolver(cfg config.Config) *Resolver {
	return &Resolver{
		enabled:       cfg.EnableAuth,
		defaultTenant: cfg.DefaultTenant,
		byToken:       cfg.TokenTable,
	}
}

// Enabled reports whether the registry is enforcing bearer tokens.
func (r *Resolver) Enabled() bool {
	return r.enabled
}

// DefaultTenant returns the tenant used when auth is disabled.
func (r *Resolver) DefaultTenant() string {
	return r.defaultTenant
}

// Resolve maps a bearer token to a Principal. When auth is disabled, token
// is ignored and every caller resolves to the default tenant. Token
// comparison is constant-time so registry lookups don't leak a valid
// prefix through response timing.
func (r *Resolver) Resolve(token string) (*Principal, error) {
	if !r.enabled {
		return &Principal{Name: r.defaultTenant, TenantID: r.defaultTenant}, nil
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domainerr.New(domainerr.Unauthorized, "missing bearer token")
	}
	for candidate, entry := range r.byToken {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			return &Principal{Name: entry.Principal, TenantID: entry.TenantID}, nil
		}
	}
	return nil, domainerr.New(domainerr.Unauthorized, "bearer token not recognized")
}
