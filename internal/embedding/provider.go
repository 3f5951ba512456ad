package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/the-price-must-flow/internal/cache"
	"github.com/Veraticus/the-price-must-flow/internal/common"
)

// backend is a concrete embedding API.
type backend interface {
	embed(ctx context.Context, texts []string) ([][]float32, error)
	name() string
}

// Provider implements service.EmbeddingProvider over a backend, with optional
// result caching and retries for transient remote failures.
type Provider struct {
	backend   backend
	cache     cache.Store
	retry     common.RetryOptions
	cacheTTL  time.Duration
	dimension int
}

func newProvider(b backend, cfg Config) *Provider {
	return &Provider{
		backend:   b,
		dimension: cfg.Dimension,
		cacheTTL:  cfg.CacheTTL,
		retry:     common.RetryOptions{MaxAttempts: cfg.MaxRetries},
	}
}

// WithCache memoizes embeddings in store.
func (p *Provider) WithCache(store cache.Store) *Provider {
	p.cache = store
	if p.cacheTTL <= 0 {
		p.cacheTTL = 24 * time.Hour
	}
	return p
}

// Name returns the backend model name.
func (p *Provider) Name() string {
	return p.backend.name()
}

// Embed returns the embedding for text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := p.cacheKey(text)
	if vec, ok := p.cached(ctx, key); ok {
		return vec, nil
	}

	var vectors [][]float32
	start := time.Now()
	err := common.WithRetry(ctx, func() error {
		var embedErr error
		vectors, embedErr = p.backend.embed(ctx, []string{text})
		return embedErr
	}, p.retry)
	if err != nil {
		slog.Warn("Embedding failed", "model", p.backend.name(), "text_len", len(text), "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrEmbeddingFailed, err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", common.ErrEmbeddingFailed)
	}

	vec := vectors[0]
	if p.dimension > 0 && len(vec) != p.dimension {
		return nil, fmt.Errorf("%w: dimension mismatch: got %d, want %d", common.ErrEmbeddingFailed, len(vec), p.dimension)
	}

	p.store(ctx, key, vec)
	return vec, nil
}

// Similarity returns the cosine similarity of two embeddings.
func (p *Provider) Similarity(a, b []float32) float64 {
	return Cosine(a, b)
}

func (p *Provider) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(strings.ToUpper(strings.TrimSpace(text))))
	return "embedding:" + p.backend.name() + ":" + hex.EncodeToString(sum[:])
}

func (p *Provider) cached(ctx context.Context, key string) ([]float32, bool) {
	if p.cache == nil {
		return nil, false
	}
	raw, ok, err := p.cache.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false
	}
	return vec, true
}

func (p *Provider) store(ctx context.Context, key string, vec []float32) {
	if p.cache == nil {
		return
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, key, raw, p.cacheTTL); err != nil {
		slog.Debug("Embedding cache write failed", "error", err)
	}
}
