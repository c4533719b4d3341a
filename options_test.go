package scratchnotebook

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) { return nil, nil }
func (fakeEmbedder) Dimensions() int                                      { return 3 }
func (fakeEmbedder) Version() string                                      { return "fake" }

type fakeChangeHook struct{}

func (fakeChangeHook) OnPadChanged(_ context.Context, _ ChangeEvent) error { return nil }

func TestOptions_ApplyDefaults(t *testing.T) {
	var o resolvedOptions
	assert.Empty(t, o.storageDir)
	assert.Empty(t, o.databaseURL)
	assert.Nil(t, o.logger)
	assert.Nil(t, o.embedder)
	assert.Empty(t, o.changeHooks)
}

func TestOptions_EachWithSetsItsField(t *testing.T) {
	logger := slog.Default()
	embedder := fakeEmbedder{}

	var o resolvedOptions
	for _, apply := range []Option{
		WithStorageDir("/data"),
		WithDatabaseURL("postgres://x"),
		WithLogger(logger),
		WithVersion("1.2.3"),
		WithEmbedder(embedder),
	} {
		apply(&o)
	}

	assert.Equal(t, "/data", o.storageDir)
	assert.Equal(t, "postgres://x", o.databaseURL)
	assert.Same(t, logger, o.logger)
	assert.Equal(t, "1.2.3", o.version)
	assert.Equal(t, embedder, o.embedder)
}

func TestWithChangeHook_AccumulatesRatherThanOverwrites(t *testing.T) {
	var o resolvedOptions
	h1, h2 := fakeChangeHook{}, fakeChangeHook{}
	WithChangeHook(h1)(&o)
	WithChangeHook(h2)(&o)
	assert.Len(t, o.changeHooks, 2)
}
