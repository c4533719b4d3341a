package catalog

import "context"

// Embedder produces fixed-dimension vectors for pad/cell content. The
// catalog store calls it inside the same transaction as the content
// mutation that triggered it, so a vector never lags behind the content
// a reader can already see (spec §4.E). Implementations live in
// internal/search; catalog only depends on this narrow interface to avoid
// an import cycle.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Version() string
}

// ReadFilter narrows read_pad and list_cells.
type ReadFilter struct {
	CellIDs         []string
	Tags            []string
	Namespaces      []string
	IncludeMetadata bool
}

// ListFilter narrows list_pads.
type ListFilter struct {
	Namespaces []string
	Tags       []string
	Limit      int
}

// CreateResult is the outcome of create_pad: the persisted pad plus any
// ids evicted to make room for it under the discard policy.
type CreateResult struct {
	Pad               Scratchpad
	EvictedScratchpads []string
}

// MutateResult is the outcome of append_cell/replace_cell: the lightweight
// pad view plus the validation results for the affected cell(s).
type MutateResult struct {
	Pad     LeanScratchpad
	Results []ValidationResult
}

// Store is the tenant-scoped catalog contract. Every method is
// transactional: on error, the store is byte-identical to its state
// before the call (spec §8, testable property 2).
type Store interface {
	CreatePad(ctx context.Context, tenant string, pad Scratchpad, validator Validator, embedder Embedder) (CreateResult, error)
	ReadPad(ctx context.Context, tenant, scratchID string, filter ReadFilter) (Scratchpad, error)
	ListPads(ctx context.Context, tenant string, filter ListFilter) ([]PadListRow, error)
	ListCells(ctx context.Context, tenant, scratchID string, filter ReadFilter) ([]LeanCell, error)
	AppendCell(ctx context.Context, tenant, scratchID string, cell Cell, validator Validator, embedder Embedder) (MutateResult, error)
	ReplaceCell(ctx context.Context, tenant, scratchID, cellID string, newCell Cell, newIndex *int, validator Validator, embedder Embedder) (MutateResult, error)
	DeletePad(ctx context.Context, tenant, scratchID string) (bool, error)
	ListTags(ctx context.Context, tenant string, namespaces []string) (TagListing, error)

	CreateNamespace(ctx context.Context, tenant, name string) error
	ListNamespaces(ctx context.Context, tenant string) ([]Namespace, error)
	RenameNamespace(ctx context.Context, tenant, from, to string, migrate bool) (int, error)
	DeleteNamespace(ctx context.Context, tenant, name string, cascade bool) (int, error)

	UpsertSchema(ctx context.Context, tenant, scratchID, name string, entry SchemaEntry) (SchemaEntry, error)
	GetSchema(ctx context.Context, tenant, scratchID, name string) (SchemaEntry, error)
	ListSchemas(ctx context.Context, tenant, scratchID string) ([]SchemaEntry, error)

	// Validate re-runs validation for cells already in a pad, without
	// mutating them (scratch_validate).
	Validate(ctx context.Context, tenant, scratchID string, cellIDs []string, validator Validator) ([]ValidationResult, error)

	// Search delegates the k-NN query; implementations push tenant/
	// namespace/tag predicates below the vector index per spec §4.E.
	Search(ctx context.Context, tenant string, embedder Embedder, queryText string, namespaces, tags []string, limit int) ([]SearchHit, error)

	// Reembed recomputes every embedding row at the given version,
	// backing scratch_reembed maintenance after an embedding model change.
	Reembed(ctx context.Context, tenant string, embedder Embedder) (int, error)

	// EvictExpired deletes every pad in tenant whose last_access_at is
	// older than maxAgeSeconds; used by the preempt sweeper. Returns the
	// deleted scratch ids.
	EvictExpired(ctx context.Context, tenant string, maxAgeSeconds int64) ([]string, error)

	// Tenants returns the distinct tenant ids with at least one pad,
	// used by the first-enable migration scan.
	Tenants(ctx context.Context) ([]string, error)

	// MigrateTenant reassigns every pad owned by fromTenant to toTenant
	// in a single transaction, returning the number of pads moved. Used
	// once, at startup, by the first-enable migration (spec §4.A).
	MigrateTenant(ctx context.Context, fromTenant, toTenant string) (int, error)

	// SetNotifier registers n to receive a ChangeEvent after every
	// committed pad mutation. Passing nil disables notification.
	SetNotifier(n Notifier)

	Close() error
}

// Validator is the narrow interface catalog needs from internal/validate,
// again to avoid an import cycle: catalog calls it inside the same
// transaction boundary as the content write it validates.
type Validator interface {
	ValidateCell(ctx context.Context, cell Cell, resolver SchemaResolver) (ValidationResult, error)
}

// SchemaResolver resolves a "scratchpad://schemas/<name>" reference against
// the current pad's registry.
type SchemaResolver interface {
	ResolveSchema(name string) (map[string]any, bool)
}

// ChangeEvent is published after a pad mutation commits, feeding the SSE
// broker in internal/server without coupling the catalog to HTTP.
type ChangeEvent struct {
	Kind      string // "created", "appended", "replaced", "deleted"
	TenantID  string
	ScratchID string
}

// Notifier receives a ChangeEvent after each committed mutation. Publish
// must not block the caller; a slow or unavailable subscriber is the
// notifier's problem, not the catalog's.
type Notifier interface {
	Publish(event ChangeEvent)
}
