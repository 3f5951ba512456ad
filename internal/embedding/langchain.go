package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// langChainBackend embeds through langchaingo, against Ollama or OpenAI.
type langChainBackend struct {
	model     embeddings.Embedder
	modelName string
}

func newLangChainBackend(cfg Config) (*langChainBackend, error) {
	var model embeddings.Embedder
	var err error

	switch cfg.Provider {
	case ProviderOllama:
		modelName := cfg.Model
		if modelName == "" {
			modelName = "nomic-embed-text"
		}
		opts := []ollama.Option{ollama.WithModel(modelName)}
		if cfg.ServerURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.ServerURL))
		}
		llm, ollamaErr := ollama.New(opts...)
		if ollamaErr != nil {
			return nil, fmt.Errorf("create ollama client: %w", ollamaErr)
		}
		model, err = embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create ollama embedder: %w", err)
		}
		return &langChainBackend{model: model, modelName: modelName}, nil

	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, errors.New("OpenAI API key required")
		}
		modelName := cfg.Model
		if modelName == "" {
			modelName = "text-embedding-3-small"
		}
		llm, openaiErr := openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithEmbeddingModel(modelName),
		)
		if openaiErr != nil {
			return nil, fmt.Errorf("create openai client: %w", openaiErr)
		}
		model, err = embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create openai embedder: %w", err)
		}
		return &langChainBackend{model: model, modelName: modelName}, nil

	default:
		return nil, fmt.Errorf("unsupported langchain provider: %s", cfg.Provider)
	}
}

func (l *langChainBackend) name() string { return l.modelName }

func (l *langChainBackend) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := l.model.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("count mismatch: got %d, want %d", len(vectors), len(texts))
	}
	return vectors, nil
}
