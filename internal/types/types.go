package types

import (
	"context"

	"github.com/xhad/docrag/internal/models"
)

// Core interfaces
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// Extractor returns the text of every page in order; pages without text are empty strings.
type Extractor interface {
	ExtractPages(pdf []byte) ([]string, error)
}

type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, vectorSize int) error
	Upsert(ctx context.Context, name string, stableIDs []string, vectors [][]float32, payloads []models.Payload) error
	Search(ctx context.Context, name string, vector []float32, topK int, docID string) ([]models.Hit, error)
	DeleteDocument(ctx context.Context, name string, docID string) error
}

// Generator streams an answer for a system instruction and a user turn.
// Returning an error from onDelta stops generation.
type Generator interface {
	Stream(ctx context.Context, system, user string, onDelta func(delta string) error) error
}
