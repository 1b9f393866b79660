package chunker_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/docrag/internal/types"
	"github.com/xhad/docrag/pkg/chunker"
)

// wordTokenizer treats every whitespace-separated word as one token.
type wordTokenizer struct {
	vocab []string
	calls int
}

func (w *wordTokenizer) Encode(text string) []int {
	w.calls++
	var ids []int
	for _, word := range strings.Fields(text) {
		w.vocab = append(w.vocab, word)
		ids = append(ids, len(w.vocab)-1)
	}
	return ids
}

func (w *wordTokenizer) Decode(tokens []int) string {
	words := make([]string, len(tokens))
	for i, id := range tokens {
		words[i] = w.vocab[id]
	}
	return strings.Join(words, " ")
}

// pieceTokenizer maps token i to pieces[i] regardless of the input text.
type pieceTokenizer struct {
	pieces []string
}

func (p *pieceTokenizer) Encode(string) []int {
	ids := make([]int, len(p.pieces))
	for i := range ids {
		ids[i] = i
	}
	return ids
}

func (p *pieceTokenizer) Decode(tokens []int) string {
	var b strings.Builder
	for _, id := range tokens {
		b.WriteString(p.pieces[id])
	}
	return b.String()
}

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func newChunker(t *testing.T, chunkTokens, overlap int, tok types.Tokenizer) *chunker.Chunker {
	t.Helper()
	c, err := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkTokens: chunkTokens, OverlapTokens: overlap}, tok)
	require.NoError(t, err)
	return c
}

func TestChunkPage_SlidingWindow(t *testing.T) {
	c := newChunker(t, 700, 120, &wordTokenizer{})

	chunks := c.ChunkPage("doc.pdf", 1, words(1500))

	require.Len(t, chunks, 3)
	ranges := [][2]int{{0, 700}, {580, 1280}, {1160, 1500}}
	for i, ch := range chunks {
		assert.Equal(t, ranges[i][0], ch.StartToken)
		assert.Equal(t, ranges[i][1], ch.EndToken)
		assert.Equal(t, fmt.Sprintf("doc.pdf:p1:c%d", i), ch.ID)
		assert.Equal(t, "doc.pdf", ch.DocID)
		assert.Equal(t, 1, ch.Page)
	}
	assert.True(t, strings.HasPrefix(chunks[1].Text, "w580 "))
	assert.True(t, strings.HasSuffix(chunks[2].Text, " w1499"))
}

func TestChunkPage_OverlapIsExact(t *testing.T) {
	cases := []struct{ total, size, overlap int }{
		{100, 10, 3},
		{57, 8, 7},
		{1000, 256, 64},
		{33, 5, 1},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d/%d/%d", tc.total, tc.size, tc.overlap), func(t *testing.T) {
			c := newChunker(t, tc.size, tc.overlap, &wordTokenizer{})
			chunks := c.ChunkPage("d", 2, words(tc.total))
			require.NotEmpty(t, chunks)

			assert.Equal(t, 0, chunks[0].StartToken)
			assert.Equal(t, tc.total, chunks[len(chunks)-1].EndToken)
			for i, ch := range chunks {
				assert.Less(t, ch.StartToken, ch.EndToken)
				assert.LessOrEqual(t, ch.EndToken-ch.StartToken, tc.size)
				if i > 0 {
					prev := chunks[i-1]
					assert.Equal(t, tc.overlap, prev.EndToken-ch.StartToken)
					assert.Greater(t, ch.StartToken, prev.StartToken)
				}
			}
		})
	}
}

func TestChunkPage_NoOverlap(t *testing.T) {
	c := newChunker(t, 4, 0, &wordTokenizer{})

	chunks := c.ChunkPage("d", 1, words(10))

	require.Len(t, chunks, 3)
	assert.Equal(t, "w0 w1 w2 w3", chunks[0].Text)
	assert.Equal(t, "w4 w5 w6 w7", chunks[1].Text)
	assert.Equal(t, "w8 w9", chunks[2].Text)
}

func TestChunkPage_Deterministic(t *testing.T) {
	text := words(321)

	first := newChunker(t, 50, 10, &wordTokenizer{}).ChunkPage("report", 3, text)
	second := newChunker(t, 50, 10, &wordTokenizer{}).ChunkPage("report", 3, text)

	assert.Equal(t, first, second)

	seen := map[string]bool{}
	for _, ch := range first {
		assert.False(t, seen[ch.ID], "duplicate id %s", ch.ID)
		seen[ch.ID] = true
	}
}

func TestChunkPage_EmptyPage(t *testing.T) {
	tok := &wordTokenizer{}
	c := newChunker(t, 10, 2, tok)

	assert.Empty(t, c.ChunkPage("d", 1, ""))
	assert.Empty(t, c.ChunkPage("d", 1, "  \n\t "))
	assert.Equal(t, 0, tok.calls)
}

func TestChunkPage_SkipsBlankWindowsWithoutConsumingIndex(t *testing.T) {
	pieces := []string{"alpha", " beta", "   ", "  ", "\n", " gamma", " delta"}
	c := newChunker(t, 2, 0, &pieceTokenizer{pieces: pieces})

	chunks := c.ChunkPage("d", 1, "ignored")

	require.Len(t, chunks, 3)
	assert.Equal(t, "d:p1:c0", chunks[0].ID)
	assert.Equal(t, "alpha beta", chunks[0].Text)
	assert.Equal(t, "d:p1:c1", chunks[1].ID)
	assert.Equal(t, "gamma", chunks[1].Text)
	assert.Equal(t, 4, chunks[1].StartToken)
	assert.Equal(t, "d:p1:c2", chunks[2].ID)
	assert.Equal(t, "delta", chunks[2].Text)
}

func TestChunkPage_DropsBrokenUTF8(t *testing.T) {
	euro := "€"
	pieces := []string{"price ", euro[:1], euro[1:], " 5"}
	c := newChunker(t, 2, 0, &pieceTokenizer{pieces: pieces})

	chunks := c.ChunkPage("d", 1, "ignored")

	require.Len(t, chunks, 2)
	assert.Equal(t, "price", chunks[0].Text)
	assert.Equal(t, "5", chunks[1].Text)
}

func TestChunkPages_PageOrder(t *testing.T) {
	c := newChunker(t, 3, 1, &wordTokenizer{})

	chunks := c.ChunkPages("book", []string{words(5), "", words(2)})

	require.Len(t, chunks, 3)
	assert.Equal(t, "book:p1:c0", chunks[0].ID)
	assert.Equal(t, "book:p1:c1", chunks[1].ID)
	assert.Equal(t, "book:p3:c0", chunks[2].ID)
	assert.Equal(t, 3, chunks[2].Page)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		valid   bool
	}{
		{"defaults", chunker.DefaultChunkTokens, chunker.DefaultOverlapTokens, true},
		{"zero overlap", 10, 0, true},
		{"zero size", 0, 0, false},
		{"negative size", -5, 0, false},
		{"negative overlap", 10, -1, false},
		{"overlap equals size", 10, 10, false},
		{"overlap exceeds size", 10, 11, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := chunker.Validate(tt.size, tt.overlap)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, types.ErrInvalidConfig)
		})
	}
}

func TestNewWithConfig_RejectsBeforeTokenizing(t *testing.T) {
	tok := &wordTokenizer{}

	_, err := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkTokens: 5, OverlapTokens: 5}, tok)

	assert.ErrorIs(t, err, types.ErrInvalidConfig)
	assert.Equal(t, 0, tok.calls)
}

func TestTiktokenRoundTrip(t *testing.T) {
	tok, err := chunker.NewTiktoken("")
	if err != nil {
		t.Skipf("tokenizer data unavailable: %v", err)
	}
	assert.Equal(t, chunker.DefaultEncoding, tok.Encoding())

	text := "Token-aware chunking keeps embeddings inside the model's context."
	ids := tok.Encode(text)
	assert.NotEmpty(t, ids)
	assert.Equal(t, text, tok.Decode(ids))
}
