package lifecycle_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/scratchnotebook/internal/catalog"
	"github.com/ashita-ai/scratchnotebook/internal/config"
	"github.com/ashita-ai/scratchnotebook/internal/lifecycle"
)

// fakeStore is a minimal catalog.Store double exercising only the methods
// the lifecycle controller and first-enable migration call.
type fakeStore struct {
	tenants        []string
	evictErr       error
	evictCalls     int
	evictedByTenant map[string][]string
	migrateFrom    string
	migrateTo      string
	migrateCount   int
	migrateErr     error
	migrateCalls   int
}

func (f *fakeStore) Tenants(context.Context) ([]string, error) { return f.tenants, nil }

func (f *fakeStore) EvictExpired(_ context.Context, tenant string, _ int64) ([]string, error) {
	f.evictCalls++
	if f.evictErr != nil {
		return nil, f.evictErr
	}
	return f.evictedByTenant[tenant], nil
}

func (f *fakeStore) MigrateTenant(_ context.Context, from, to string) (int, error) {
	f.migrateCalls++
	f.migrateFrom, f.migrateTo = from, to
	return f.migrateCount, f.migrateErr
}

func (f *fakeStore) CreatePad(context.Context, string, catalog.Scratchpad, catalog.Validator, catalog.Embedder) (catalog.CreateResult, error) {
	return catalog.CreateResult{}, nil
}
func (f *fakeStore) ReadPad(context.Context, string, string, catalog.ReadFilter) (catalog.Scratchpad, error) {
	return catalog.Scratchpad{}, nil
}
func (f *fakeStore) ListPads(context.Context, string, catalog.ListFilter) ([]catalog.PadListRow, error) {
	return nil, nil
}
func (f *fakeStore) ListCells(context.Context, string, string, catalog.ReadFilter) ([]catalog.LeanCell, error) {
	return nil, nil
}
func (f *fakeStore) AppendCell(context.Context, string, string, catalog.Cell, catalog.Validator, catalog.Embedder) (catalog.MutateResult, error) {
	return catalog.MutateResult{}, nil
}
func (f *fakeStore) ReplaceCell(context.Context, string, string, string, catalog.Cell, *int, catalog.Validator, catalog.Embedder) (catalog.MutateResult, error) {
	return catalog.MutateResult{}, nil
}
func (f *fakeStore) DeletePad(context.Context, string, string) (bool, error)  { return false, nil }
func (f *fakeStore) ListTags(context.Context, string, []string) (catalog.TagListing, error) {
	return catalog.TagListing{}, nil
}
func (f *fakeStore) CreateNamespace(context.Context, string, string) error { return nil }
func (f *fakeStore) ListNamespaces(context.Context, string) ([]catalog.Namespace, error) {
	return nil, nil
}
func (f *fakeStore) RenameNamespace(context.Context, string, string, string, bool) (int, error) {
	return 0, nil
}
func (f *fakeStore) DeleteNamespace(context.Context, string, string, bool) (int, error) {
	return 0, nil
}
func (f *fakeStore) UpsertSchema(context.Context, string, string, string, catalog.SchemaEntry) (catalog.SchemaEntry, error) {
	return catalog.SchemaEntry{}, nil
}
func (f *fakeStore) GetSchema(context.Context, string, string, string) (catalog.SchemaEntry, error) {
	return catalog.SchemaEntry{}, nil
}
func (f *fakeStore) ListSchemas(context.Context, string, string) ([]catalog.SchemaEntry, error) {
	return nil, nil
}
func (f *fakeStore) Validate(context.Context, string, string, []string, catalog.Validator) ([]catalog.ValidationResult, error) {
	return nil, nil
}
func (f *fakeStore) Search(context.Context, string, catalog.Embedder, string, []string, []string, int) ([]catalog.SearchHit, error) {
	return nil, nil
}
func (f *fakeStore) Reembed(context.Context, string, catalog.Embedder) (int, error) { return 0, nil }
func (f *fakeStore) SetNotifier(catalog.Notifier)                                   {}
func (f *fakeStore) Close() error                                                   { return nil }

var _ catalog.Store = (*fakeStore)(nil)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestController_InactiveWhenPolicyIsNotPreempt(t *testing.T) {
	store := &fakeStore{tenants: []string{"acme"}, evictedByTenant: map[string][]string{"acme": {"sp_1"}}}
	cfg := config.Config{EvictionPolicy: config.EvictionFail, PreemptInterval: 10 * time.Millisecond}
	ctrl := lifecycle.New(store, cfg, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctrl.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Second)
	defer drainCancel()
	ctrl.Drain(drainCtx)

	assert.Equal(t, 0, store.evictCalls, "inactive policy must never sweep")
}

func TestController_SweepsAndDrains(t *testing.T) {
	store := &fakeStore{
		tenants:         []string{"acme", "beta"},
		evictedByTenant: map[string][]string{"acme": {"sp_1"}},
	}
	cfg := config.Config{EvictionPolicy: config.EvictionPreempt, PreemptAge: time.Hour, PreemptInterval: 5 * time.Millisecond}
	ctrl := lifecycle.New(store, cfg, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctrl.Start(ctx)
	// New clamps the 5ms interval up to 100ms; wait long enough for at
	// least one tick.
	time.Sleep(250 * time.Millisecond)

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Second)
	defer drainCancel()
	ctrl.Drain(drainCtx)

	assert.Greater(t, store.evictCalls, 0, "preempt policy must sweep every tenant on each tick")

	// A second Start call after Drain must not panic and must remain inert
	// (started is a one-shot latch, matching the outbox worker idiom).
	ctrl.Start(context.Background())
}

func TestRunFirstEnableMigration_NoOpWhenAuthDisabled(t *testing.T) {
	store := &fakeStore{tenants: []string{"default"}}
	cfg := config.Config{EnableAuth: false, DefaultTenant: "default"}
	err := lifecycle.RunFirstEnableMigration(context.Background(), store, cfg, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, store.migrateCalls)
}

func TestRunFirstEnableMigration_NoOpWhenNoDefaultTenantData(t *testing.T) {
	store := &fakeStore{tenants: []string{"already-migrated"}}
	cfg := testAuthConfig(t, "already-migrated")
	err := lifecycle.RunFirstEnableMigration(context.Background(), store, cfg, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, store.migrateCalls)
}

func TestRunFirstEnableMigration_MigratesDefaultTenantToFirstConfigured(t *testing.T) {
	store := &fakeStore{tenants: []string{"default"}, migrateCount: 3}
	cfg := testAuthConfig(t, "tenant-auth")

	err := lifecycle.RunFirstEnableMigration(context.Background(), store, cfg, discardLogger())

	require.NoError(t, err)
	assert.Equal(t, 1, store.migrateCalls)
	assert.Equal(t, "default", store.migrateFrom)
	assert.Equal(t, "tenant-auth", store.migrateTo)
}

// testAuthConfig builds a Config via config.Load as if SCRATCH_AUTH_TOKENS
// had been set with tenant as the first configured principal.
func testAuthConfig(t *testing.T, tenant string) config.Config {
	t.Helper()
	t.Setenv("SCRATCH_ENABLE_AUTH", "true")
	t.Setenv("SCRATCH_AUTH_TOKENS", tenant+":secret")
	t.Setenv("SCRATCH_DEFAULT_TENANT", "default")
	t.Setenv("SCRATCH_ENABLE_HTTP", "false")
	t.Setenv("SCRATCH_ENABLE_SSE", "false")
	t.Setenv("SCRATCH_ENABLE_METRICS", "false")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}
