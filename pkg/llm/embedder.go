package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/xhad/docrag/internal/types"
)

// EmbedderConfig selects and configures an embedding provider.
type EmbedderConfig struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

// NewEmbedder builds the provider named by config.Provider.
func NewEmbedder(ctx context.Context, config EmbedderConfig) (types.Embedder, error) {
	switch config.Provider {
	case "", "openai":
		return NewOpenAIEmbedder(config)
	case "ollama":
		return NewOllamaEmbedder(config)
	case "gemini":
		return NewGeminiEmbedder(ctx, config)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", types.ErrInvalidConfig, config.Provider)
	}
}

// Gateway is the typed front of an embedding provider. It checks that the
// provider returned exactly one vector per input, all of one dimension.
type Gateway struct {
	provider  types.Embedder
	batchSize int
}

// NewGateway wraps provider. A batchSize of zero sends every input in one call.
func NewGateway(provider types.Embedder, batchSize int) *Gateway {
	if batchSize < 0 {
		batchSize = 0
	}
	return &Gateway{provider: provider, batchSize: batchSize}
}

func (g *Gateway) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	size := g.batchSize
	if size == 0 || size > len(texts) {
		size = len(texts)
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := g.provider.CreateEmbedding(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings: %w", err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", types.ErrEmbeddingMismatch, len(batch), end-start)
		}
		vectors = append(vectors, batch...)
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", types.ErrEmbeddingMismatch, i, len(v), dim)
		}
	}

	return vectors, nil
}

// OllamaEmbedder embeds through a local Ollama server.
type OllamaEmbedder struct {
	Config EmbedderConfig
	embed  *ollama.LLM
}

func NewOllamaEmbedder(config EmbedderConfig) (*OllamaEmbedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	emb, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama embedder: %w", err)
	}

	return &OllamaEmbedder{Config: config, embed: emb}, nil
}

func (e *OllamaEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embed.CreateEmbedding(ctx, texts)
}
