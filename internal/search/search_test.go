package search_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/scratchnotebook/internal/config"
	"github.com/ashita-ai/scratchnotebook/internal/search"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := search.NewHashEmbedder(32)
	v1, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Len(t, v1, 32)
}

func TestHashEmbedder_DifferentTextsDiffer(t *testing.T) {
	e := search.NewHashEmbedder(32)
	v1, _ := e.Embed(context.Background(), "hello")
	v2, _ := e.Embed(context.Background(), "goodbye")
	assert.NotEqual(t, v1, v2)
}

func TestHashEmbedder_ValuesWithinUnitRange(t *testing.T) {
	e := search.NewHashEmbedder(64)
	v, err := e.Embed(context.Background(), "bounds check")
	require.NoError(t, err)
	for _, f := range v {
		assert.GreaterOrEqual(t, f, float32(-1.0))
		assert.LessOrEqual(t, f, float32(1.0))
	}
}

func TestHashEmbedder_DefaultDimension(t *testing.T) {
	e := search.NewHashEmbedder(0)
	assert.Equal(t, 64, e.Dimensions())
}

func TestNew_SelectsHashEmbedderForDebugModel(t *testing.T) {
	cfg := config.Config{EmbeddingModel: "debug-hash", EmbeddingDimensions: 16}
	e, err := search.New(cfg)
	require.NoError(t, err)
	_, ok := e.(*search.HashEmbedder)
	assert.True(t, ok)
	assert.Equal(t, "debug-hash", e.Version())
}

func TestNew_RejectsRealModelWithoutAPIKey(t *testing.T) {
	cfg := config.Config{EmbeddingModel: "text-embedding-3-small", EmbeddingDimensions: 1536}
	_, err := search.New(cfg)
	require.Error(t, err)
}

func TestNew_SelectsOpenAIEmbedderWhenKeyPresent(t *testing.T) {
	cfg := config.Config{EmbeddingModel: "text-embedding-3-small", EmbeddingDimensions: 1536, OpenAIAPIKey: "sk-test"}
	e, err := search.New(cfg)
	require.NoError(t, err)
	_, ok := e.(*search.OpenAIEmbedder)
	assert.True(t, ok)
	assert.Equal(t, "text-embedding-3-small", e.Version())
}
