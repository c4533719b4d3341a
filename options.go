package scratchnotebook

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds every extension point after defaults are applied.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	storageDir  string
	databaseURL string
	logger      *slog.Logger
	version     string
	embedder    Embedder
	changeHooks []ChangeHook
}

// WithStorageDir overrides the sqlite data directory from config
// (SCRATCH_STORAGE_DIR).
func WithStorageDir(dir string) Option {
	return func(o *resolvedOptions) { o.storageDir = dir }
}

// WithDatabaseURL overrides the Postgres DSN from config (DATABASE_URL),
// used only when the configured catalog backend is postgres.
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithLogger sets the structured logger for the App. If not set, the
// default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported by the MCP server and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithEmbedder replaces the auto-detected embedder (hash/OpenAI) used for
// both write-time embedding and scratch_search queries.
func WithEmbedder(e Embedder) Option {
	return func(o *resolvedOptions) { o.embedder = e }
}

// WithChangeHook registers a hook that fires after every committed pad
// mutation. Multiple hooks may be registered; all registered hooks
// receive every event.
func WithChangeHook(h ChangeHook) Option {
	return func(o *resolvedOptions) { o.changeHooks = append(o.changeHooks, h) }
}
