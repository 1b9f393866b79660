package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xhad/docrag/internal/models"
	"github.com/xhad/docrag/internal/types"
)

const (
	DefaultChunkTokens   = 700
	DefaultOverlapTokens = 120
)

type ChunkerConfig struct {
	ChunkTokens   int
	OverlapTokens int
}

// Chunker splits page text into overlapping token windows.
type Chunker struct {
	config    ChunkerConfig
	tokenizer types.Tokenizer
}

// Validate checks the window parameters. It never touches the tokenizer.
func Validate(chunkTokens, overlapTokens int) error {
	if chunkTokens <= 0 {
		return fmt.Errorf("%w: chunk_tokens must be > 0, got %d", types.ErrInvalidConfig, chunkTokens)
	}
	if overlapTokens < 0 || overlapTokens >= chunkTokens {
		return fmt.Errorf("%w: overlap_tokens must be >= 0 and < chunk_tokens, got %d", types.ErrInvalidConfig, overlapTokens)
	}
	return nil
}

func NewWithConfig(config ChunkerConfig, tokenizer types.Tokenizer) (*Chunker, error) {
	if err := Validate(config.ChunkTokens, config.OverlapTokens); err != nil {
		return nil, err
	}
	if tokenizer == nil {
		return nil, fmt.Errorf("%w: tokenizer is required", types.ErrInvalidConfig)
	}
	return &Chunker{config: config, tokenizer: tokenizer}, nil
}

// ChunkPages chunks every page of a document, pages numbered from 1.
func (c *Chunker) ChunkPages(docID string, pages []string) []models.Chunk {
	var chunks []models.Chunk
	for i, text := range pages {
		chunks = append(chunks, c.ChunkPage(docID, i+1, text)...)
	}
	return chunks
}

// ChunkPage emits windows [start, min(start+ChunkTokens, n)) and slides the
// start back by OverlapTokens from each window's end. Windows that decode to
// whitespace are skipped without consuming a chunk index.
func (c *Chunker) ChunkPage(docID string, page int, text string) []models.Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	tokens := c.tokenizer.Encode(text)
	total := len(tokens)

	var chunks []models.Chunk
	start := 0
	index := 0

	for start < total {
		end := start + c.config.ChunkTokens
		if end > total {
			end = total
		}

		chunkText := strings.TrimSpace(sanitizeUTF8(c.tokenizer.Decode(tokens[start:end])))
		if chunkText != "" {
			chunks = append(chunks, models.Chunk{
				ID:         models.ChunkID(docID, page, index),
				DocID:      docID,
				Page:       page,
				Text:       chunkText,
				StartToken: start,
				EndToken:   end,
			})
			index++
		}

		if end == total {
			break
		}

		start = end - c.config.OverlapTokens
		if start < 0 {
			start = 0
		}
	}

	return chunks
}

// sanitizeUTF8 drops bytes a token window cut out of a multi-byte rune.
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
