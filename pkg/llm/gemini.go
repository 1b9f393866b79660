package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/xhad/docrag/internal/types"
)

// GeminiEmbedder sends one BatchEmbedContents request per call.
type GeminiEmbedder struct {
	client *genai.Client
	model  *genai.EmbeddingModel
}

func NewGeminiEmbedder(ctx context.Context, config EmbedderConfig) (*GeminiEmbedder, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is required", types.ErrInvalidConfig)
	}
	if config.Model == "" {
		config.Model = "text-embedding-004"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiEmbedder{
		client: client,
		model:  client.EmbeddingModel(config.Model),
	}, nil
}

func (e *GeminiEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	batch := e.model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	resp, err := e.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings: %w", err)
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("%w: gemini returned an empty embedding at %d", types.ErrEmbeddingMismatch, i)
		}
		values := make([]float32, len(emb.Values))
		for j, v := range emb.Values {
			values[j] = float32(v)
		}
		vectors[i] = values
	}
	return vectors, nil
}

func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}
