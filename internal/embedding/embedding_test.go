package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-price-must-flow/internal/cache"
	"github.com/Veraticus/the-price-must-flow/internal/common"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite clamps to zero", []float32{1, 0}, []float32{-1, 0}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func TestLocalProvider(t *testing.T) {
	provider, err := New(Config{Provider: ProviderLocal, Dimension: 128})
	require.NoError(t, err)
	ctx := context.Background()

	a, err := provider.Embed(ctx, "HALDIRAM BHUJIA SEV 200G")
	require.NoError(t, err)
	assert.Len(t, a, 128)

	again, err := provider.Embed(ctx, "HALDIRAM BHUJIA SEV 200G")
	require.NoError(t, err)
	assert.Equal(t, a, again, "local embeddings are deterministic")

	near, err := provider.Embed(ctx, "HALDIRAMS BHUJIA 200 G")
	require.NoError(t, err)
	far, err := provider.Embed(ctx, "VADILAL MANGO ICE CREAM 1L")
	require.NoError(t, err)

	assert.Greater(t, provider.Similarity(a, near), provider.Similarity(a, far))
	assert.InDelta(t, 1.0, provider.Similarity(a, a), 1e-6)
}

func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New(Config{Provider: "word2vec"})
	assert.Error(t, err)

	_, err = New(Config{Provider: ProviderCohere})
	assert.Error(t, err, "cohere needs an API key")

	_, err = New(Config{Provider: ProviderOpenAI})
	assert.Error(t, err, "openai needs an API key")
}

type countingBackend struct {
	err   error
	calls int
}

func (c *countingBackend) name() string { return "counting" }

func (c *countingBackend) embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func TestProvider_Cache(t *testing.T) {
	backend := &countingBackend{}
	store := cache.NewMemoryStore(0)
	defer func() { _ = store.Close() }()

	provider := newProvider(backend, Config{}).WithCache(store)
	ctx := context.Background()

	_, err := provider.Embed(ctx, "deep cashew")
	require.NoError(t, err)
	_, err = provider.Embed(ctx, "  DEEP CASHEW ")
	require.NoError(t, err)

	assert.Equal(t, 1, backend.calls, "normalized text should hit the cache")
}

func TestProvider_Errors(t *testing.T) {
	backend := &countingBackend{err: errors.New("connection refused")}
	provider := newProvider(backend, Config{})

	_, err := provider.Embed(context.Background(), "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrEmbeddingFailed)
	assert.Equal(t, 1, backend.calls, "permanent errors are not retried")

	dimProvider := newProvider(&countingBackend{}, Config{Dimension: 8})
	_, err = dimProvider.Embed(context.Background(), "anything")
	assert.ErrorIs(t, err, common.ErrEmbeddingFailed)
}
