package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/xhad/docrag/internal/models"
	"github.com/xhad/docrag/internal/types"
)

// Memory is an in-process vector store using brute-force cosine similarity.
// It only offers the legacy search shape.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	size   int
	points map[string]models.Point
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memoryCollection)}
}

func (m *Memory) ListCollections(_ context.Context) ([]CollectionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]CollectionInfo, 0, len(m.collections))
	for name, c := range m.collections {
		infos = append(infos, CollectionInfo{Name: name, VectorSize: c.size})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (m *Memory) CreateCollection(_ context.Context, name string, vectorSize int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[name]; ok {
		return fmt.Errorf("collection %q already exists", name)
	}
	m.collections[name] = &memoryCollection{size: vectorSize, points: make(map[string]models.Point)}
	return nil
}

func (m *Memory) UpsertPoints(_ context.Context, name string, points []models.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[name]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrCollectionNotFound, name)
	}
	for _, p := range points {
		if len(p.Vector) != c.size {
			return fmt.Errorf("%w: point %s has %d dimensions, collection has %d", types.ErrDimensionMismatch, p.ID, len(p.Vector), c.size)
		}
	}
	for _, p := range points {
		c.points[p.ID] = p
	}
	return nil
}

func (m *Memory) DeletePoints(_ context.Context, name string, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[name]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrCollectionNotFound, name)
	}
	for id, p := range c.points {
		if p.Payload.DocID == docID {
			delete(c.points, id)
		}
	}
	return nil
}

func (m *Memory) SearchPoints(_ context.Context, name string, req SearchRequest) ([]models.Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrCollectionNotFound, name)
	}
	if len(req.Vector) != c.size {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d", types.ErrDimensionMismatch, len(req.Vector), c.size)
	}

	type scored struct {
		id  string
		hit models.Hit
	}
	results := make([]scored, 0, len(c.points))
	for id, p := range c.points {
		if req.DocID != "" && p.Payload.DocID != req.DocID {
			continue
		}
		results = append(results, scored{id: id, hit: models.Hit{Score: cosine(req.Vector, p.Vector), Payload: p.Payload}})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].hit.Score != results[j].hit.Score {
			return results[i].hit.Score > results[j].hit.Score
		}
		return results[i].id < results[j].id
	})

	limit := req.Limit
	if limit > len(results) {
		limit = len(results)
	}
	hits := make([]models.Hit, limit)
	for i := range hits {
		hits[i] = results[i].hit
	}
	return hits, nil
}

// Count returns the number of points in a collection.
func (m *Memory) Count(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collections[name]; ok {
		return len(c.points)
	}
	return 0
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
