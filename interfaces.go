package scratchnotebook

import "context"

// Embedder generates fixed-dimension vectors from cell/pad content. When
// supplied via WithEmbedder, replaces the auto-detected hash/OpenAI
// embedder from internal/search for both write-time embedding and
// scratch_search queries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Version() string
}

// ChangeHook receives a notification every time a pad is created,
// mutated, or deleted, after the write has committed. Multiple hooks may
// be registered; a slow or blocking hook only delays its own goroutine —
// App fires each hook independently and does not wait for it before
// returning from Run.
type ChangeHook interface {
	OnPadChanged(ctx context.Context, event ChangeEvent) error
}
