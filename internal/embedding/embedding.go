// Package embedding provides text embedding providers for semantic product search.
package embedding

import (
	"fmt"
	"math"
	"net/http"
	"time"
)

// Provider names accepted by New.
const (
	ProviderLocal  = "local"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderCohere = "cohere"
)

// Config selects and configures an embedding provider.
type Config struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	ServerURL  string        `mapstructure:"server_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Dimension  int           `mapstructure:"dimension"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// New builds the provider described by cfg.
func New(cfg Config) (*Provider, error) {
	var backend backend
	var err error

	switch cfg.Provider {
	case "", ProviderLocal:
		backend = newHashingBackend(cfg.Dimension)
	case ProviderOllama, ProviderOpenAI:
		backend, err = newLangChainBackend(cfg)
	case ProviderCohere:
		backend, err = newCohereBackend(cfg, &http.Client{Timeout: timeoutOrDefault(cfg.Timeout)})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return newProvider(backend, cfg), nil
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Cosine returns the cosine similarity of a and b clamped to [0,1]. Vectors
// of different length or zero norm have similarity 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(0, math.Min(1, sim))
}
