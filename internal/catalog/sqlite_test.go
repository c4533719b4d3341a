package catalog_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/scratchnotebook/internal/catalog"
	"github.com/ashita-ai/scratchnotebook/internal/config"
	"github.com/ashita-ai/scratchnotebook/internal/domainerr"
)

// hashEmbedder is a deterministic Embedder double so vector similarity is
// predictable without a real model, mirroring internal/search's HashEmbedder
// role in tests elsewhere in this module.
type hashEmbedder struct {
	version string
	vec     []float32
}

func (h hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) { return h.vec, nil }
func (h hashEmbedder) Dimensions() int                                           { return len(h.vec) }
func (h hashEmbedder) Version() string                                          { return h.version }

type noopValidator struct{}

func (noopValidator) ValidateCell(ctx context.Context, cell catalog.Cell, resolver catalog.SchemaResolver) (catalog.ValidationResult, error) {
	return catalog.ValidationResult{Valid: true}, nil
}

func openTestStore(t *testing.T) *catalog.SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{MaxScratchpads: 100, MaxCellsPerPad: 100, MaxCellBytes: 1 << 20}
	store, err := catalog.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "scratch.db"), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRenameNamespace_MigrateFalseWithPadsIsRejected(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	embedder := hashEmbedder{version: "v1", vec: []float32{1, 0, 0}}

	require.NoError(t, store.CreateNamespace(ctx, "tenant-a", "from-ns"))
	_, err := store.CreatePad(ctx, "tenant-a", catalog.Scratchpad{ScratchID: "pad-1", Namespace: "from-ns"}, noopValidator{}, embedder)
	require.NoError(t, err)

	_, err = store.RenameNamespace(ctx, "tenant-a", "from-ns", "to-ns", false)
	require.Error(t, err)
	var derr *domainerr.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domainerr.ValidationError, derr.Code)

	// the source namespace registry row must be untouched.
	namespaces, err := store.ListNamespaces(ctx, "tenant-a")
	require.NoError(t, err)
	names := make([]string, len(namespaces))
	for i, n := range namespaces {
		names[i] = n.Name
	}
	assert.Contains(t, names, "from-ns")
	assert.NotContains(t, names, "to-ns")
}

func TestRenameNamespace_MigrateTrueCascadesPads(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	embedder := hashEmbedder{version: "v1", vec: []float32{1, 0, 0}}

	require.NoError(t, store.CreateNamespace(ctx, "tenant-a", "from-ns"))
	_, err := store.CreatePad(ctx, "tenant-a", catalog.Scratchpad{ScratchID: "pad-1", Namespace: "from-ns"}, noopValidator{}, embedder)
	require.NoError(t, err)

	count, err := store.RenameNamespace(ctx, "tenant-a", "from-ns", "to-ns", true)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	pad, err := store.ReadPad(ctx, "tenant-a", "pad-1", catalog.ReadFilter{IncludeMetadata: true})
	require.NoError(t, err)
	assert.Equal(t, "to-ns", pad.Namespace)
}

func TestRenameNamespace_MigrateFalseOnEmptyNamespaceSucceeds(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.CreateNamespace(ctx, "tenant-a", "from-ns"))
	_, err := store.RenameNamespace(ctx, "tenant-a", "from-ns", "to-ns", false)
	require.NoError(t, err)

	namespaces, err := store.ListNamespaces(ctx, "tenant-a")
	require.NoError(t, err)
	names := make([]string, len(namespaces))
	for i, n := range namespaces {
		names[i] = n.Name
	}
	assert.Contains(t, names, "to-ns")
}

func TestReembed_RecomputesEmbeddingVersion(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	oldEmbedder := hashEmbedder{version: "v1", vec: []float32{1, 0, 0}}

	_, err := store.CreatePad(ctx, "tenant-a", catalog.Scratchpad{
		ScratchID: "pad-1",
		Cells:     []catalog.Cell{{Language: "text", Content: "hello world"}},
	}, noopValidator{}, oldEmbedder)
	require.NoError(t, err)

	newEmbedder := hashEmbedder{version: "v2", vec: []float32{0, 1, 0}}
	hitsBefore, err := store.Search(ctx, "tenant-a", newEmbedder, "hello", nil, nil, 10)
	require.NoError(t, err)
	require.Len(t, hitsBefore, 1)
	assert.True(t, hitsBefore[0].Stale)
	assert.Equal(t, "v1", hitsBefore[0].EmbeddingVersion)

	n, err := store.Reembed(ctx, "tenant-a", newEmbedder)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hitsAfter, err := store.Search(ctx, "tenant-a", newEmbedder, "hello", nil, nil, 10)
	require.NoError(t, err)
	require.Len(t, hitsAfter, 1)
	assert.False(t, hitsAfter[0].Stale)
	assert.Equal(t, "v2", hitsAfter[0].EmbeddingVersion)
}

func TestSearch_StaleHitsAreDownWeighted(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	oldEmbedder := hashEmbedder{version: "v1", vec: []float32{1, 0, 0}}

	_, err := store.CreatePad(ctx, "tenant-a", catalog.Scratchpad{
		ScratchID: "pad-1",
		Cells:     []catalog.Cell{{Language: "text", Content: "hello world"}},
	}, noopValidator{}, oldEmbedder)
	require.NoError(t, err)

	// query with the same embedder version: no penalty, score stays 1.0
	freshHits, err := store.Search(ctx, "tenant-a", oldEmbedder, "hello", nil, nil, 10)
	require.NoError(t, err)
	require.Len(t, freshHits, 1)
	assert.False(t, freshHits[0].Stale)

	newEmbedder := hashEmbedder{version: "v2", vec: []float32{1, 0, 0}}
	staleHits, err := store.Search(ctx, "tenant-a", newEmbedder, "hello", nil, nil, 10)
	require.NoError(t, err)
	require.Len(t, staleHits, 1)
	assert.True(t, staleHits[0].Stale)
	assert.Less(t, staleHits[0].Score, freshHits[0].Score)
}
