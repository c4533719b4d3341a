package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/scratchnotebook/internal/catalog"
	"github.com/ashita-ai/scratchnotebook/internal/config"
	"github.com/ashita-ai/scratchnotebook/internal/domainerr"
	"github.com/ashita-ai/scratchnotebook/internal/gate"
	"github.com/ashita-ai/scratchnotebook/internal/identity"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore is a minimal in-memory catalog.Store double, grounded on the
// same pattern as internal/lifecycle/lifecycle_test.go's fakeStore.
type fakeStore struct {
	pads map[string]catalog.Scratchpad

	createErr error
	readErr   error
}

var _ catalog.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{pads: map[string]catalog.Scratchpad{}}
}

func (f *fakeStore) CreatePad(ctx context.Context, tenant string, pad catalog.Scratchpad, validator catalog.Validator, embedder catalog.Embedder) (catalog.CreateResult, error) {
	if f.createErr != nil {
		return catalog.CreateResult{}, f.createErr
	}
	if pad.ScratchID == "" {
		pad.ScratchID = "generated-id"
	}
	pad.TenantID = tenant
	f.pads[tenant+"/"+pad.ScratchID] = pad
	return catalog.CreateResult{Pad: pad}, nil
}

func (f *fakeStore) ReadPad(ctx context.Context, tenant, scratchID string, filter catalog.ReadFilter) (catalog.Scratchpad, error) {
	if f.readErr != nil {
		return catalog.Scratchpad{}, f.readErr
	}
	pad, ok := f.pads[tenant+"/"+scratchID]
	if !ok {
		return catalog.Scratchpad{}, domainNotFound()
	}
	return pad, nil
}

func (f *fakeStore) ListPads(ctx context.Context, tenant string, filter catalog.ListFilter) ([]catalog.PadListRow, error) {
	var rows []catalog.PadListRow
	for key, pad := range f.pads {
		if pad.TenantID != tenant {
			continue
		}
		_ = key
		rows = append(rows, catalog.PadListRow{ScratchID: pad.ScratchID, Namespace: pad.Namespace, CellCount: len(pad.Cells)})
	}
	return rows, nil
}

func (f *fakeStore) ListCells(ctx context.Context, tenant, scratchID string, filter catalog.ReadFilter) ([]catalog.LeanCell, error) {
	pad, ok := f.pads[tenant+"/"+scratchID]
	if !ok {
		return nil, domainNotFound()
	}
	var cells []catalog.LeanCell
	for _, c := range pad.Cells {
		cells = append(cells, c.Lean())
	}
	return cells, nil
}

func (f *fakeStore) AppendCell(ctx context.Context, tenant, scratchID string, cell catalog.Cell, validator catalog.Validator, embedder catalog.Embedder) (catalog.MutateResult, error) {
	pad, ok := f.pads[tenant+"/"+scratchID]
	if !ok {
		return catalog.MutateResult{}, domainNotFound()
	}
	cell.Index = len(pad.Cells)
	pad.Cells = append(pad.Cells, cell)
	f.pads[tenant+"/"+scratchID] = pad
	return catalog.MutateResult{Pad: pad.Lean()}, nil
}

func (f *fakeStore) ReplaceCell(ctx context.Context, tenant, scratchID, cellID string, newCell catalog.Cell, newIndex *int, validator catalog.Validator, embedder catalog.Embedder) (catalog.MutateResult, error) {
	pad, ok := f.pads[tenant+"/"+scratchID]
	if !ok {
		return catalog.MutateResult{}, domainNotFound()
	}
	return catalog.MutateResult{Pad: pad.Lean()}, nil
}

func (f *fakeStore) DeletePad(ctx context.Context, tenant, scratchID string) (bool, error) {
	key := tenant + "/" + scratchID
	if _, ok := f.pads[key]; !ok {
		return false, nil
	}
	delete(f.pads, key)
	return true, nil
}

func (f *fakeStore) ListTags(ctx context.Context, tenant string, namespaces []string) (catalog.TagListing, error) {
	return catalog.TagListing{}, nil
}

func (f *fakeStore) CreateNamespace(ctx context.Context, tenant, name string) error { return nil }
func (f *fakeStore) ListNamespaces(ctx context.Context, tenant string) ([]catalog.Namespace, error) {
	return nil, nil
}
func (f *fakeStore) RenameNamespace(ctx context.Context, tenant, from, to string, migrate bool) (int, error) {
	return 0, nil
}
func (f *fakeStore) DeleteNamespace(ctx context.Context, tenant, name string, cascade bool) (int, error) {
	return 0, nil
}

func (f *fakeStore) UpsertSchema(ctx context.Context, tenant, scratchID, name string, entry catalog.SchemaEntry) (catalog.SchemaEntry, error) {
	return entry, nil
}
func (f *fakeStore) GetSchema(ctx context.Context, tenant, scratchID, name string) (catalog.SchemaEntry, error) {
	return catalog.SchemaEntry{}, domainNotFound()
}
func (f *fakeStore) ListSchemas(ctx context.Context, tenant, scratchID string) ([]catalog.SchemaEntry, error) {
	return nil, nil
}

func (f *fakeStore) Validate(ctx context.Context, tenant, scratchID string, cellIDs []string, validator catalog.Validator) ([]catalog.ValidationResult, error) {
	return nil, nil
}

func (f *fakeStore) Search(ctx context.Context, tenant string, embedder catalog.Embedder, queryText string, namespaces, tags []string, limit int) ([]catalog.SearchHit, error) {
	return nil, nil
}

func (f *fakeStore) Reembed(ctx context.Context, tenant string, embedder catalog.Embedder) (int, error) {
	return 0, nil
}

func (f *fakeStore) EvictExpired(ctx context.Context, tenant string, maxAgeSeconds int64) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) Tenants(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeStore) MigrateTenant(ctx context.Context, fromTenant, toTenant string) (int, error) {
	return 0, nil
}

func (f *fakeStore) SetNotifier(n catalog.Notifier) {}

func (f *fakeStore) Close() error { return nil }

func domainNotFound() error {
	return domainerr.New(domainerr.NotFound, "scratchpad not found")
}

type fakeValidator struct{}

func (fakeValidator) ValidateCell(ctx context.Context, cell catalog.Cell, resolver catalog.SchemaResolver) (catalog.ValidationResult, error) {
	return catalog.ValidationResult{Valid: true}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0, 0, 0}, nil
}
func (fakeEmbedder) Dimensions() int { return 3 }
func (fakeEmbedder) Version() string { return "fake" }

func newTestServer(store catalog.Store) *Server {
	cfg := config.Config{DefaultTenant: "default"}
	resolver := identity.NewResolver(cfg)
	return New(store, fakeValidator{}, fakeEmbedder{}, resolver, cfg, nil, discardLogger())
}

func makeReq(args map[string]any) mcplib.CallToolRequest {
	req := mcplib.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, r *mcplib.CallToolResult) string {
	t.Helper()
	require.NotNil(t, r)
	require.NotEmpty(t, r.Content)
	tc, ok := r.Content[0].(mcplib.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestServer_BuildsUnderlyingMCPServer(t *testing.T) {
	srv := newTestServer(newFakeStore())
	assert.NotNil(t, srv.MCPServer())
}

func TestHandleCreate_PersistsPadAndReturnsLeanView(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(store)

	req := makeReq(map[string]any{
		"scratch_id": "notes-1",
		"metadata":   map[string]any{"title": "Notes", "namespace": "proj/"},
		"cells":      []any{map[string]any{"language": "md", "content": "# hi"}},
	})

	result, err := srv.handleCreate(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &body))
	pad := body["scratchpad"].(map[string]any)
	assert.Equal(t, "notes-1", pad["ScratchID"])

	stored, ok := store.pads["default/notes-1"]
	require.True(t, ok)
	assert.Len(t, stored.Cells, 1)
}

func TestHandleRead_MissingScratchIDIsError(t *testing.T) {
	srv := newTestServer(newFakeStore())
	req := makeReq(map[string]any{})
	result, err := srv.handleRead(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleRead_UnknownPadReturnsDomainError(t *testing.T) {
	srv := newTestServer(newFakeStore())
	req := makeReq(map[string]any{"scratch_id": "ghost"})
	result, err := srv.handleRead(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.IsError)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, string(domainerr.NotFound), errObj["code"])
}

func TestHandleDelete_UnknownPadReturnsFalse(t *testing.T) {
	srv := newTestServer(newFakeStore())
	req := makeReq(map[string]any{"scratch_id": "ghost"})
	result, err := srv.handleDelete(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &body))
	assert.Equal(t, false, body["deleted"])
}

func TestHandleAppendCell_AppendsToExistingPad(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(store)
	_, err := srv.handleCreate(context.Background(), makeReq(map[string]any{"scratch_id": "pad-1"}))
	require.NoError(t, err)

	req := makeReq(map[string]any{
		"scratch_id": "pad-1",
		"cell":       map[string]any{"language": "text", "content": "note"},
	})
	result, err := srv.handleAppendCell(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError)

	stored := store.pads["default/pad-1"]
	require.Len(t, stored.Cells, 1)
	assert.Equal(t, "note", stored.Cells[0].Content)
}

func TestHandleNamespaceCreate_MissingNamespaceIsError(t *testing.T) {
	srv := newTestServer(newFakeStore())
	result, err := srv.handleNamespaceCreate(context.Background(), makeReq(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestGatedTool_RejectsWithUnavailableWhenDraining(t *testing.T) {
	cfg := config.Config{DefaultTenant: "default"}
	resolver := identity.NewResolver(cfg)
	g := gate.New()
	srv := New(newFakeStore(), fakeValidator{}, fakeEmbedder{}, resolver, cfg, g, discardLogger())

	g.Drain()

	gated := srv.gated(srv.handleCreate)
	result, err := gated(context.Background(), makeReq(map[string]any{"scratch_id": "pad-1"}))
	require.NoError(t, err)
	require.True(t, result.IsError)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, string(domainerr.Unavailable), errObj["code"])
}

func TestHandleReembed_CallsStoreReembed(t *testing.T) {
	srv := newTestServer(newFakeStore())
	result, err := srv.handleReembed(context.Background(), makeReq(map[string]any{}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &body))
	assert.Equal(t, float64(0), body["reembedded"])
}

func TestHandleUpsertSchema_MissingSchemaIsError(t *testing.T) {
	srv := newTestServer(newFakeStore())
	req := makeReq(map[string]any{"scratch_id": "pad-1", "name": "shape"})
	result, err := srv.handleUpsertSchema(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
