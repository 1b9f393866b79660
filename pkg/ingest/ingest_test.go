package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xhad/docrag/internal/models"
	"github.com/xhad/docrag/internal/testutil"
	"github.com/xhad/docrag/internal/types"
	"github.com/xhad/docrag/pkg/ingest"
	"github.com/xhad/docrag/pkg/pdftext"
	"github.com/xhad/docrag/pkg/store"
)

var fakePDF = []byte("%PDF-1.4\n%fake")

// wordTokenizer treats every whitespace-separated word as one token.
type wordTokenizer struct {
	vocab []string
}

func (w *wordTokenizer) Encode(text string) []int {
	words := strings.Fields(text)
	ids := make([]int, len(words))
	for i, word := range words {
		ids[i] = len(w.vocab)
		w.vocab = append(w.vocab, word)
	}
	return ids
}

func (w *wordTokenizer) Decode(tokens []int) string {
	words := make([]string, len(tokens))
	for i, t := range tokens {
		words[i] = w.vocab[t]
	}
	return strings.Join(words, " ")
}

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(w, " ")
}

type mockExtractor struct{ mock.Mock }

func (m *mockExtractor) ExtractPages(pdf []byte) ([]string, error) {
	args := m.Called(pdf)
	pages, _ := args.Get(0).([]string)
	return pages, args.Error(1)
}

type mockEmbedder struct{ mock.Mock }

func (m *mockEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	vectors, _ := args.Get(0).([][]float32)
	return vectors, args.Error(1)
}

type mockStore struct{ mock.Mock }

func (m *mockStore) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	return m.Called(ctx, name, vectorSize).Error(0)
}

func (m *mockStore) Upsert(ctx context.Context, name string, stableIDs []string, vectors [][]float32, payloads []models.Payload) error {
	return m.Called(ctx, name, stableIDs, vectors, payloads).Error(0)
}

func (m *mockStore) Search(ctx context.Context, name string, vector []float32, topK int, docID string) ([]models.Hit, error) {
	args := m.Called(ctx, name, vector, topK, docID)
	hits, _ := args.Get(0).([]models.Hit)
	return hits, args.Error(1)
}

func (m *mockStore) DeleteDocument(ctx context.Context, name string, docID string) error {
	return m.Called(ctx, name, docID).Error(0)
}

// constantEmbedder returns one fixed-size vector per text.
type constantEmbedder struct {
	dim   int
	calls int
}

func (c *constantEmbedder) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, c.dim)
		v[0] = 1
		v[1] = float32(len(text))
		out[i] = v
	}
	return out, nil
}

func vectors(n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, dim)
		out[i][0] = float32(i + 1)
	}
	return out
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	extractor := &mockExtractor{}
	embedder := &mockEmbedder{}
	st := &mockStore{}

	extractor.On("ExtractPages", fakePDF).Return([]string{words(1500), "", "short page"}, nil).Once()
	embedder.On("CreateEmbedding", ctx, mock.MatchedBy(func(texts []string) bool { return len(texts) == 4 })).
		Return(vectors(4, 3), nil).Once()
	st.On("EnsureCollection", ctx, "docs", 3).Return(nil).Once()
	st.On("Upsert", ctx, "docs",
		[]string{"doc.pdf:p1:c0", "doc.pdf:p1:c1", "doc.pdf:p1:c2", "doc.pdf:p3:c0"},
		vectors(4, 3),
		mock.MatchedBy(func(p []models.Payload) bool {
			return len(p) == 4 &&
				p[0].StartToken == 0 && p[0].EndToken == 700 &&
				p[1].StartToken == 580 && p[1].EndToken == 1280 &&
				p[2].StartToken == 1160 && p[2].EndToken == 1500 &&
				p[3].Page == 3 && p[3].Text == "short page"
		}),
	).Return(nil).Once()

	p := ingest.New(extractor, &wordTokenizer{}, embedder, st, ingest.Options{})
	result, err := p.Ingest(ctx, ingest.Request{PDF: fakePDF, DocID: "doc.pdf"})

	require.NoError(t, err)
	assert.Equal(t, models.IngestResult{DocID: "doc.pdf", Chunks: 4, Pages: 3, Status: models.StatusOK}, result)
	extractor.AssertExpectations(t)
	embedder.AssertNumberOfCalls(t, "CreateEmbedding", 1)
	st.AssertExpectations(t)
	st.AssertNotCalled(t, "DeleteDocument", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngest_NoTextExtracted(t *testing.T) {
	extractor := &mockExtractor{}
	embedder := &mockEmbedder{}
	st := &mockStore{}
	extractor.On("ExtractPages", fakePDF).Return([]string{"", "   \n"}, nil)

	p := ingest.New(extractor, &wordTokenizer{}, embedder, st, ingest.Options{})
	result, err := p.Ingest(context.Background(), ingest.Request{PDF: fakePDF, DocID: "scan.pdf"})

	require.NoError(t, err)
	assert.Equal(t, models.StatusNoTextExtracted, result.Status)
	assert.Equal(t, 0, result.Chunks)
	assert.Equal(t, 2, result.Pages)
	embedder.AssertNotCalled(t, "CreateEmbedding", mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "EnsureCollection", mock.Anything, mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIngest_RejectsBeforeExtraction(t *testing.T) {
	cases := []struct {
		name string
		req  ingest.Request
		want error
	}{
		{"overlap equals chunk", ingest.Request{PDF: fakePDF, DocID: "d", ChunkTokens: 100, OverlapTokens: 100}, types.ErrInvalidConfig},
		{"negative chunk", ingest.Request{PDF: fakePDF, DocID: "d", ChunkTokens: -1}, types.ErrInvalidConfig},
		{"missing doc id", ingest.Request{PDF: fakePDF}, types.ErrInvalidConfig},
		{"not a pdf", ingest.Request{PDF: []byte("hello"), DocID: "d"}, types.ErrUnsupportedInput},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			extractor := &mockExtractor{}
			p := ingest.New(extractor, &wordTokenizer{}, &mockEmbedder{}, &mockStore{}, ingest.Options{})

			_, err := p.Ingest(context.Background(), tc.req)

			assert.ErrorIs(t, err, tc.want)
			extractor.AssertNotCalled(t, "ExtractPages", mock.Anything)
		})
	}
}

func TestIngest_EncryptedPDF(t *testing.T) {
	extractor := &mockExtractor{}
	extractor.On("ExtractPages", fakePDF).Return(nil, types.ErrEncryptedPDF)
	st := &mockStore{}

	p := ingest.New(extractor, &wordTokenizer{}, &mockEmbedder{}, st, ingest.Options{})
	_, err := p.Ingest(context.Background(), ingest.Request{PDF: fakePDF, DocID: "locked.pdf"})

	assert.ErrorIs(t, err, types.ErrEncryptedPDF)
	assert.True(t, types.IsClientError(err))
	st.AssertNotCalled(t, "EnsureCollection", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngest_EmbeddingFailureIsHard(t *testing.T) {
	ctx := context.Background()
	extractor := &mockExtractor{}
	embedder := &mockEmbedder{}
	st := &mockStore{}
	boom := errors.New("provider unavailable")

	extractor.On("ExtractPages", fakePDF).Return([]string{"some text"}, nil)
	embedder.On("CreateEmbedding", ctx, []string{"some text"}).Return(nil, boom)

	p := ingest.New(extractor, &wordTokenizer{}, embedder, st, ingest.Options{})
	_, err := p.Ingest(ctx, ingest.Request{PDF: fakePDF, DocID: "d.pdf"})

	assert.ErrorIs(t, err, boom)
	st.AssertNotCalled(t, "EnsureCollection", mock.Anything, mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIngest_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	extractor := &mockExtractor{}
	embedder := &mockEmbedder{}
	st := &mockStore{}

	extractor.On("ExtractPages", fakePDF).Return([]string{"some text"}, nil)
	embedder.On("CreateEmbedding", ctx, []string{"some text"}).Return(vectors(1, 8), nil)
	st.On("EnsureCollection", ctx, "docs", 8).Return(fmt.Errorf("%w: 3 vs 8", types.ErrDimensionMismatch))

	p := ingest.New(extractor, &wordTokenizer{}, embedder, st, ingest.Options{})
	_, err := p.Ingest(ctx, ingest.Request{PDF: fakePDF, DocID: "d.pdf"})

	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
	st.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIngest_ReplaceExisting(t *testing.T) {
	ctx := context.Background()
	extractor := &mockExtractor{}
	embedder := &mockEmbedder{}
	st := &mockStore{}

	extractor.On("ExtractPages", fakePDF).Return([]string{"some text"}, nil)
	embedder.On("CreateEmbedding", ctx, []string{"some text"}).Return(vectors(1, 2), nil)
	st.On("EnsureCollection", ctx, "manuals", 2).Return(nil)
	st.On("DeleteDocument", ctx, "manuals", "d.pdf").Return(nil).Once()
	st.On("Upsert", ctx, "manuals", []string{"d.pdf:p1:c0"}, vectors(1, 2), mock.Anything).Return(nil).Once()

	p := ingest.New(extractor, &wordTokenizer{}, embedder, st, ingest.Options{Collection: "manuals"})
	result, err := p.Ingest(ctx, ingest.Request{PDF: fakePDF, DocID: "d.pdf", ReplaceExisting: true})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Chunks)
	st.AssertExpectations(t)
}

func TestIngest_ReingestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	adapter, err := store.NewAdapter(mem)
	require.NoError(t, err)
	embedder := &constantEmbedder{dim: 4}

	pdf := testutil.BuildPDF(words(300), "", words(50))
	p := ingest.New(pdftext.New(), &wordTokenizer{}, embedder, adapter, ingest.Options{ChunkTokens: 100, OverlapTokens: 20})

	first, err := p.Ingest(ctx, ingest.Request{PDF: pdf, DocID: "book.pdf"})
	require.NoError(t, err)
	second, err := p.Ingest(ctx, ingest.Request{PDF: pdf, DocID: "book.pdf"})
	require.NoError(t, err)

	// page 1: [0,100) [80,180) [160,260) [240,300); page 3: [0,50)
	assert.Equal(t, 5, first.Chunks)
	assert.Equal(t, 3, first.Pages)
	assert.Equal(t, first, second)
	assert.Equal(t, 5, mem.Count("docs"))
	assert.Equal(t, 2, embedder.calls)

	hits, err := adapter.Search(ctx, "docs", []float32{1, 0, 0, 0}, 10, "book.pdf")
	require.NoError(t, err)
	assert.Len(t, hits, 5)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	st := &mockStore{}
	st.On("DeleteDocument", ctx, "docs", "a.pdf").Return(nil).Once()

	p := ingest.New(&mockExtractor{}, &wordTokenizer{}, &mockEmbedder{}, st, ingest.Options{})

	require.NoError(t, p.Delete(ctx, "", "a.pdf"))
	assert.ErrorIs(t, p.Delete(ctx, "docs", " "), types.ErrInvalidConfig)
	st.AssertExpectations(t)
}

func TestDocIDFromFilename(t *testing.T) {
	assert.Equal(t, "cv.pdf", ingest.DocIDFromFilename("cv.pdf"))
	assert.Equal(t, "cv.pdf", ingest.DocIDFromFilename("/home/me/docs/cv.pdf"))
	assert.Equal(t, "cv.pdf", ingest.DocIDFromFilename(`C:\Users\me\cv.pdf`))
	assert.Equal(t, "", ingest.DocIDFromFilename(""))
}
