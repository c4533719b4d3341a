package ctxutil

// AuditMeta carries the metadata needed to log a mutation for the audit
// trail: the tenant-migration record written the first time auth is
// enabled on a store that was previously implicit-single-tenant, and the
// eviction sweep summaries the lifecycle controller emits. It lives in
// ctxutil so server, mcp and lifecycle can populate and log it without
// circular imports.
type AuditMeta struct {
	RequestID    string
	TenantID     string
	ActorPrincipal string
	Operation    string
}
