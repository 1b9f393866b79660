package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/xhad/docrag/internal/logger"
	"github.com/xhad/docrag/internal/models"
	"github.com/xhad/docrag/internal/types"
)

type CollectionInfo struct {
	Name string
	// VectorSize is zero when the backend cannot report it.
	VectorSize int
}

// Client is the part of a vector database every backend provides.
// Missing collections are reported as types.ErrCollectionNotFound.
type Client interface {
	ListCollections(ctx context.Context) ([]CollectionInfo, error)
	CreateCollection(ctx context.Context, name string, vectorSize int) error
	UpsertPoints(ctx context.Context, name string, points []models.Point) error
	DeletePoints(ctx context.Context, name string, docID string) error
}

type SearchRequest struct {
	Vector []float32
	Limit  int
	// DocID restricts results to one document when non-empty.
	DocID string
}

// PointQuerier is the preferred search call shape.
type PointQuerier interface {
	QueryPoints(ctx context.Context, name string, req SearchRequest) ([]models.Hit, error)
}

// PointSearcher is the legacy search call shape.
type PointSearcher interface {
	SearchPoints(ctx context.Context, name string, req SearchRequest) ([]models.Hit, error)
}

type Capability string

const (
	CapQueryPoints  Capability = "query_points"
	CapSearchPoints Capability = "search_points"
)

// CapabilityReporter lets a client whose server decides the available
// endpoints veto a call shape it implements.
type CapabilityReporter interface {
	Supports(c Capability) bool
}

type searchFunc func(ctx context.Context, name string, req SearchRequest) ([]models.Hit, error)

// Adapter manages collections and points on top of a Client. The search
// call shape is chosen once, in NewAdapter.
type Adapter struct {
	client Client
	search searchFunc
	shape  Capability
}

var _ types.VectorStore = (*Adapter)(nil)

func NewAdapter(client Client) (*Adapter, error) {
	a := &Adapter{client: client}

	if q, ok := client.(PointQuerier); ok && supports(client, CapQueryPoints) {
		a.search, a.shape = q.QueryPoints, CapQueryPoints
	} else if s, ok := client.(PointSearcher); ok && supports(client, CapSearchPoints) {
		a.search, a.shape = s.SearchPoints, CapSearchPoints
	} else {
		return nil, fmt.Errorf("%w: %T supports neither %s nor %s; upgrade the vector database or its client",
			types.ErrUnsupportedClient, client, CapQueryPoints, CapSearchPoints)
	}

	logger.Debug("vector store %T using %s", client, a.shape)
	return a, nil
}

func supports(client Client, c Capability) bool {
	if r, ok := client.(CapabilityReporter); ok {
		return r.Supports(c)
	}
	return true
}

// SearchShape reports the call shape selected at construction.
func (a *Adapter) SearchShape() Capability {
	return a.shape
}

// PointID derives the store id of a chunk: a name-based (SHA-1, URL
// namespace) UUID, so the same stable id always maps to the same point.
func PointID(stableID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(stableID)).String()
}

// EnsureCollection creates name with vectorSize dimensions unless it exists.
// An existing collection of a different size is an error.
func (a *Adapter) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	if vectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive, got %d", types.ErrInvalidConfig, vectorSize)
	}

	existing, err := a.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, c := range existing {
		if c.Name != name {
			continue
		}
		if c.VectorSize != 0 && c.VectorSize != vectorSize {
			return fmt.Errorf("%w: collection %q holds %d-dimensional vectors, embeddings have %d; use a new collection name",
				types.ErrDimensionMismatch, name, c.VectorSize, vectorSize)
		}
		return nil
	}

	logger.Info("creating collection %q (dim=%d)", name, vectorSize)
	if err := a.client.CreateCollection(ctx, name, vectorSize); err != nil {
		return fmt.Errorf("failed to create collection %q: %w", name, err)
	}
	return nil
}

func (a *Adapter) Upsert(ctx context.Context, name string, stableIDs []string, vectors [][]float32, payloads []models.Payload) error {
	if len(stableIDs) != len(vectors) || len(stableIDs) != len(payloads) {
		return fmt.Errorf("%w: %d ids, %d vectors, %d payloads", types.ErrInvalidConfig, len(stableIDs), len(vectors), len(payloads))
	}
	if len(stableIDs) == 0 {
		return nil
	}

	points := make([]models.Point, len(stableIDs))
	for i := range stableIDs {
		points[i] = models.Point{
			ID:      PointID(stableIDs[i]),
			Vector:  vectors[i],
			Payload: payloads[i],
		}
	}

	if err := a.client.UpsertPoints(ctx, name, points); err != nil {
		return fmt.Errorf("failed to upsert %d points into %q: %w", len(points), name, err)
	}
	return nil
}

// Search returns at most topK hits by descending cosine similarity. A
// collection that does not exist yet yields no hits.
func (a *Adapter) Search(ctx context.Context, name string, vector []float32, topK int, docID string) ([]models.Hit, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be >= 1, got %d", types.ErrInvalidConfig, topK)
	}

	hits, err := a.search(ctx, name, SearchRequest{Vector: vector, Limit: topK, DocID: docID})
	if errors.Is(err, types.ErrCollectionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to search %q: %w", name, err)
	}

	if docID != "" {
		kept := hits[:0]
		for _, h := range hits {
			if h.Payload.DocID == docID {
				kept = append(kept, h)
			}
		}
		hits = kept
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (a *Adapter) DeleteDocument(ctx context.Context, name string, docID string) error {
	err := a.client.DeletePoints(ctx, name, docID)
	if err != nil && !errors.Is(err, types.ErrCollectionNotFound) {
		return fmt.Errorf("failed to delete %q from %q: %w", docID, name, err)
	}
	return nil
}
