package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/docrag/internal/types"
	"github.com/xhad/docrag/pkg/store"
)

func TestChromem_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client, err := store.NewChromem("")
	require.NoError(t, err)
	a, err := store.NewAdapter(client)
	require.NoError(t, err)

	seed(t, a, "docs")
	seed(t, a, "docs")

	infos, err := client.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []store.CollectionInfo{{Name: "docs", VectorSize: 3}}, infos)

	hits, err := a.Search(ctx, "docs", []float32{1, 0, 0}, 10, "")
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, payload("a.pdf", 1, 0), hits[0].Payload)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)

	hits, err = a.Search(ctx, "docs", []float32{1, 0, 0}, 10, "b.pdf")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b.pdf:p1:c0", hits[0].Payload.StableID)

	require.NoError(t, a.DeleteDocument(ctx, "docs", "a.pdf"))
	hits, err = a.Search(ctx, "docs", []float32{1, 0, 0}, 10, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b.pdf", hits[0].Payload.DocID)
}

func TestChromem_DimensionGuard(t *testing.T) {
	ctx := context.Background()
	client, err := store.NewChromem("")
	require.NoError(t, err)
	a, err := store.NewAdapter(client)
	require.NoError(t, err)

	require.NoError(t, a.EnsureCollection(ctx, "docs", 3))

	assert.ErrorIs(t, a.EnsureCollection(ctx, "docs", 8), types.ErrDimensionMismatch)
}

func TestChromem_EmptyCollection(t *testing.T) {
	ctx := context.Background()
	client, err := store.NewChromem("")
	require.NoError(t, err)
	a, err := store.NewAdapter(client)
	require.NoError(t, err)
	require.NoError(t, a.EnsureCollection(ctx, "docs", 3))

	hits, err := a.Search(ctx, "docs", []float32{1, 0, 0}, 5, "")
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = a.Search(ctx, "absent", []float32{1, 0, 0}, 5, "")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChromem_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	client, err := store.NewChromem(dir)
	require.NoError(t, err)
	a, err := store.NewAdapter(client)
	require.NoError(t, err)
	seed(t, a, "docs")

	reopened, err := store.NewChromem(dir)
	require.NoError(t, err)
	a, err = store.NewAdapter(reopened)
	require.NoError(t, err)

	hits, err := a.Search(ctx, "docs", []float32{1, 0, 0}, 1, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a.pdf:p1:c0", hits[0].Payload.StableID)
	assert.ErrorIs(t, a.EnsureCollection(ctx, "docs", 4), types.ErrDimensionMismatch)
}

func TestChromem_ReservedName(t *testing.T) {
	client, err := store.NewChromem("")
	require.NoError(t, err)

	err = client.CreateCollection(context.Background(), "_docrag_meta", 3)

	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}
