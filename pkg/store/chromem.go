package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"

	"github.com/xhad/docrag/internal/models"
	"github.com/xhad/docrag/internal/types"
)

// metaCollection records the vector size of every collection, one document
// per collection name.
const metaCollection = "_docrag_meta"

var errNoEmbedding = errors.New("chromem: embeddings must be supplied by the caller")

// Vectors always arrive precomputed; this keeps chromem from falling back
// to its default OpenAI embedding function.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

// Chromem is an embedded vector store, persisted to disk when a path is set.
type Chromem struct {
	db *chromem.DB
}

func NewChromem(path string) (*Chromem, error) {
	if path == "" {
		return &Chromem{db: chromem.NewDB()}, nil
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open chromem db at %s: %w", path, err)
	}
	return &Chromem{db: db}, nil
}

func (c *Chromem) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	var infos []CollectionInfo
	for name := range c.db.ListCollections() {
		if name == metaCollection {
			continue
		}
		size, err := c.vectorSize(ctx, name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, CollectionInfo{Name: name, VectorSize: size})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (c *Chromem) vectorSize(ctx context.Context, name string) (int, error) {
	meta := c.db.GetCollection(metaCollection, noEmbedding)
	if meta == nil {
		return 0, nil
	}
	doc, err := meta.GetByID(ctx, name)
	if err != nil {
		// Collections created outside this package carry no record.
		return 0, nil
	}
	size, err := strconv.Atoi(doc.Content)
	if err != nil {
		return 0, fmt.Errorf("corrupt vector size %q for collection %q", doc.Content, name)
	}
	return size, nil
}

func (c *Chromem) CreateCollection(ctx context.Context, name string, vectorSize int) error {
	if name == metaCollection {
		return fmt.Errorf("%w: collection name %q is reserved", types.ErrInvalidConfig, name)
	}

	meta, err := c.db.GetOrCreateCollection(metaCollection, nil, noEmbedding)
	if err != nil {
		return err
	}
	err = meta.Add(ctx,
		[]string{name},
		[][]float32{{1}},
		[]map[string]string{{"vector_size": strconv.Itoa(vectorSize)}},
		[]string{strconv.Itoa(vectorSize)},
	)
	if err != nil {
		return fmt.Errorf("failed to record vector size: %w", err)
	}

	metadata := map[string]string{"hnsw:space": "cosine"}
	if _, err := c.db.GetOrCreateCollection(name, metadata, noEmbedding); err != nil {
		return err
	}
	return nil
}

func (c *Chromem) collection(name string) (*chromem.Collection, error) {
	col := c.db.GetCollection(name, noEmbedding)
	if col == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrCollectionNotFound, name)
	}
	return col, nil
}

func (c *Chromem) UpsertPoints(ctx context.Context, name string, points []models.Point) error {
	col, err := c.collection(name)
	if err != nil {
		return err
	}

	ids := make([]string, len(points))
	vectors := make([][]float32, len(points))
	metadatas := make([]map[string]string, len(points))
	contents := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.ID
		vectors[i] = p.Vector
		metadatas[i] = map[string]string{
			"stable_id":   p.Payload.StableID,
			"doc_id":      p.Payload.DocID,
			"page":        strconv.Itoa(p.Payload.Page),
			"start_token": strconv.Itoa(p.Payload.StartToken),
			"end_token":   strconv.Itoa(p.Payload.EndToken),
		}
		contents[i] = p.Payload.Text
	}

	// Documents are keyed by id, so re-adding overwrites.
	return col.Add(ctx, ids, vectors, metadatas, contents)
}

func (c *Chromem) DeletePoints(ctx context.Context, name string, docID string) error {
	col, err := c.collection(name)
	if err != nil {
		return err
	}
	return col.Delete(ctx, map[string]string{"doc_id": docID}, nil)
}

func (c *Chromem) QueryPoints(ctx context.Context, name string, req SearchRequest) ([]models.Hit, error) {
	col, err := c.collection(name)
	if err != nil {
		return nil, err
	}

	// nResults may not exceed the collection size.
	limit := req.Limit
	if n := col.Count(); n < limit {
		limit = n
	}
	if limit == 0 {
		return nil, nil
	}

	var where map[string]string
	if req.DocID != "" {
		where = map[string]string{"doc_id": req.DocID}
	}

	results, err := col.QueryEmbedding(ctx, req.Vector, limit, where, nil)
	if err != nil {
		return nil, err
	}

	hits := make([]models.Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, models.Hit{
			Score: float64(r.Similarity),
			Payload: models.Payload{
				StableID:   r.Metadata["stable_id"],
				DocID:      r.Metadata["doc_id"],
				Page:       atoi(r.Metadata["page"]),
				Text:       r.Content,
				StartToken: atoi(r.Metadata["start_token"]),
				EndToken:   atoi(r.Metadata["end_token"]),
			},
		})
	}
	return hits, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
