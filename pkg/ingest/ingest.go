// Package ingest turns a PDF into embedded, stored chunks.
package ingest

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/xhad/docrag/internal/logger"
	"github.com/xhad/docrag/internal/models"
	"github.com/xhad/docrag/internal/types"
	"github.com/xhad/docrag/pkg/chunker"
	"github.com/xhad/docrag/pkg/pdftext"
)

const DefaultCollection = "docs"

type Options struct {
	Collection    string
	ChunkTokens   int
	OverlapTokens int
}

type Request struct {
	PDF   []byte
	DocID string
	// Zero values fall back to the pipeline's options.
	Collection    string
	ChunkTokens   int
	OverlapTokens int
	// ReplaceExisting removes the document's points before writing, so
	// chunks from an earlier, longer version do not linger.
	ReplaceExisting bool
}

type Pipeline struct {
	extractor types.Extractor
	tokenizer types.Tokenizer
	embedder  types.Embedder
	store     types.VectorStore
	options   Options
}

func New(extractor types.Extractor, tokenizer types.Tokenizer, embedder types.Embedder, store types.VectorStore, options Options) *Pipeline {
	if options.Collection == "" {
		options.Collection = DefaultCollection
	}
	if options.ChunkTokens == 0 {
		options.ChunkTokens = chunker.DefaultChunkTokens
		if options.OverlapTokens == 0 {
			options.OverlapTokens = chunker.DefaultOverlapTokens
		}
	}
	return &Pipeline{
		extractor: extractor,
		tokenizer: tokenizer,
		embedder:  embedder,
		store:     store,
		options:   options,
	}
}

// Ingest extracts, chunks, embeds and upserts one PDF. A document without
// extractable text returns status no_text_extracted and touches neither the
// embedder nor the store.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (models.IngestResult, error) {
	req = p.withDefaults(req)
	result := models.IngestResult{DocID: req.DocID}

	if strings.TrimSpace(req.DocID) == "" {
		return result, fmt.Errorf("%w: doc_id is required", types.ErrInvalidConfig)
	}
	chunks, err := chunker.NewWithConfig(chunker.ChunkerConfig{
		ChunkTokens:   req.ChunkTokens,
		OverlapTokens: req.OverlapTokens,
	}, p.tokenizer)
	if err != nil {
		return result, err
	}
	if !pdftext.IsPDF(req.PDF) {
		return result, types.ErrUnsupportedInput
	}

	logger.Section("Ingesting " + req.DocID)
	logger.Debug("[1/5] extracting text")
	pages, err := p.extractor.ExtractPages(req.PDF)
	if err != nil {
		return result, fmt.Errorf("failed to extract %s: %w", req.DocID, err)
	}
	result.Pages = len(pages)

	logger.Debug("[2/5] chunking %d pages (chunk_tokens=%d, overlap=%d)", len(pages), req.ChunkTokens, req.OverlapTokens)
	doc := models.ProcessedDocument{
		DocID:  req.DocID,
		Pages:  len(pages),
		Chunks: chunks.ChunkPages(req.DocID, pages),
	}
	if len(doc.Chunks) == 0 {
		logger.Warn("no text extracted from %s (scanned or image-only PDF?)", req.DocID)
		result.Status = models.StatusNoTextExtracted
		return result, nil
	}

	logger.Debug("[3/5] embedding %d chunks", len(doc.Chunks))
	vectors, err := p.embedder.CreateEmbedding(ctx, doc.Texts())
	if err != nil {
		return result, fmt.Errorf("failed to embed %s: %w", req.DocID, err)
	}
	if len(vectors) != len(doc.Chunks) {
		return result, fmt.Errorf("%w: %d vectors for %d chunks", types.ErrEmbeddingMismatch, len(vectors), len(doc.Chunks))
	}

	dim := len(vectors[0])
	logger.Debug("[4/5] ensuring collection %q (dim=%d)", req.Collection, dim)
	if err := p.store.EnsureCollection(ctx, req.Collection, dim); err != nil {
		return result, err
	}

	if req.ReplaceExisting {
		if err := p.store.DeleteDocument(ctx, req.Collection, req.DocID); err != nil {
			return result, err
		}
	}

	logger.Debug("[5/5] upserting %d points", len(doc.Chunks))
	stableIDs := make([]string, len(doc.Chunks))
	payloads := make([]models.Payload, len(doc.Chunks))
	for i, c := range doc.Chunks {
		stableIDs[i] = c.ID
		payloads[i] = c.Payload()
	}
	if err := p.store.Upsert(ctx, req.Collection, stableIDs, vectors, payloads); err != nil {
		return result, err
	}

	result.Chunks = len(doc.Chunks)
	result.Status = models.StatusOK
	logger.Info("ingested %s: %d pages, %d chunks into %q", req.DocID, result.Pages, result.Chunks, req.Collection)
	return result, nil
}

// Delete removes every chunk of docID from the collection.
func (p *Pipeline) Delete(ctx context.Context, collection, docID string) error {
	if collection == "" {
		collection = p.options.Collection
	}
	if strings.TrimSpace(docID) == "" {
		return fmt.Errorf("%w: doc_id is required", types.ErrInvalidConfig)
	}
	return p.store.DeleteDocument(ctx, collection, docID)
}

func (p *Pipeline) withDefaults(req Request) Request {
	if req.Collection == "" {
		req.Collection = p.options.Collection
	}
	if req.ChunkTokens == 0 {
		req.ChunkTokens = p.options.ChunkTokens
		if req.OverlapTokens == 0 {
			req.OverlapTokens = p.options.OverlapTokens
		}
	}
	return req
}

// DocIDFromFilename names a document after the base name of its file.
func DocIDFromFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	return path.Base(name)
}
