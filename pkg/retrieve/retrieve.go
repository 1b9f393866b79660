// Package retrieve finds the chunks relevant to a question and formats them
// as numbered, cited context for the answer generator.
package retrieve

import (
	"context"
	"fmt"
	"strings"

	"github.com/xhad/docrag/internal/logger"
	"github.com/xhad/docrag/internal/models"
	"github.com/xhad/docrag/internal/types"
)

// NoContext replaces the context block when no hit carries text.
const NoContext = "NO_CONTEXT"

const (
	DefaultTopK    = 6
	DefaultMaxTopK = 20
)

type Options struct {
	Collection string
	TopK       int
	// MaxTopK caps per-request TopK values.
	MaxTopK int
}

type Request struct {
	Query      string
	Collection string
	TopK       int
	DocID      string
}

type Pipeline struct {
	embedder types.Embedder
	store    types.VectorStore
	options  Options
}

func New(embedder types.Embedder, store types.VectorStore, options Options) *Pipeline {
	if options.Collection == "" {
		options.Collection = "docs"
	}
	if options.TopK == 0 {
		options.TopK = DefaultTopK
	}
	if options.MaxTopK == 0 {
		options.MaxTopK = DefaultMaxTopK
	}
	return &Pipeline{embedder: embedder, store: store, options: options}
}

// Retrieve embeds the query, searches the collection and assembles the
// context block. A zero TopK uses the pipeline default.
func (p *Pipeline) Retrieve(ctx context.Context, req Request) (models.Retrieval, error) {
	if strings.TrimSpace(req.Query) == "" {
		return models.Retrieval{}, types.ErrEmptyQuery
	}
	if req.Collection == "" {
		req.Collection = p.options.Collection
	}
	if req.TopK == 0 {
		req.TopK = p.options.TopK
	}
	if req.TopK < 1 {
		return models.Retrieval{}, fmt.Errorf("%w: top_k must be >= 1, got %d", types.ErrInvalidConfig, req.TopK)
	}
	if req.TopK > p.options.MaxTopK {
		req.TopK = p.options.MaxTopK
	}

	vectors, err := p.embedder.CreateEmbedding(ctx, []string{req.Query})
	if err != nil {
		return models.Retrieval{}, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return models.Retrieval{}, fmt.Errorf("%w: %d vectors for one query", types.ErrEmbeddingMismatch, len(vectors))
	}
	logger.Debug("query embedding: length=%d", len(vectors[0]))

	hits, err := p.store.Search(ctx, req.Collection, vectors[0], req.TopK, req.DocID)
	if err != nil {
		return models.Retrieval{}, err
	}
	logger.Debug("retrieved %d hits from %q (top_k=%d, doc_id=%q)", len(hits), req.Collection, req.TopK, req.DocID)

	citations, block := AssembleContext(hits)
	return models.Retrieval{Citations: citations, Context: block}, nil
}

// AssembleContext numbers hits by rank, from 1, and formats one entry per hit
// with text. Hits without text are skipped but keep their rank, so indexes
// can have gaps.
func AssembleContext(hits []models.Hit) ([]models.Citation, string) {
	citations := []models.Citation{}
	entries := make([]string, 0, len(hits))

	for i, h := range hits {
		rank := i + 1
		text := strings.TrimSpace(h.Payload.Text)
		if text == "" {
			continue
		}

		entries = append(entries, fmt.Sprintf("[%d] (doc=%s, page=%d, id=%s, score=%.3f)\n%s",
			rank, h.Payload.DocID, h.Payload.Page, h.Payload.StableID, h.Score, text))
		citations = append(citations, models.Citation{
			Index:    rank,
			DocID:    h.Payload.DocID,
			Page:     h.Payload.Page,
			StableID: h.Payload.StableID,
			Score:    h.Score,
		})
	}

	if len(entries) == 0 {
		return citations, NoContext
	}
	return citations, strings.Join(entries, "\n\n")
}
