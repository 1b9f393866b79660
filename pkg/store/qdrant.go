package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xhad/docrag/internal/models"
	"github.com/xhad/docrag/internal/types"
)

// queryAPIVersion is the first Qdrant release serving /points/query.
var queryAPIVersion = [3]int{1, 10, 0}

type QdrantConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Qdrant is a minimal REST client to Qdrant using cosine distance.
type Qdrant struct {
	url      string
	apiKey   string
	client   *http.Client
	version  string
	queryAPI bool
}

// NewQdrant connects to the server and records its version, which decides
// whether the query endpoint is available.
func NewQdrant(ctx context.Context, cfg QdrantConfig) (*Qdrant, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	q := &Qdrant{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}

	var info struct {
		Title   string `json:"title"`
		Version string `json:"version"`
	}
	if err := q.do(ctx, http.MethodGet, "/", nil, &info); err != nil {
		return nil, fmt.Errorf("failed to reach qdrant at %s: %w", q.url, err)
	}
	q.version = info.Version
	q.queryAPI = versionAtLeast(info.Version, queryAPIVersion)
	return q, nil
}

func (q *Qdrant) Version() string {
	return q.version
}

func (q *Qdrant) Supports(c Capability) bool {
	switch c {
	case CapQueryPoints:
		return q.queryAPI
	case CapSearchPoints:
		return true
	}
	return false
}

func (q *Qdrant) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodGet, "/collections", nil, &resp); err != nil {
		return nil, err
	}

	infos := make([]CollectionInfo, 0, len(resp.Result.Collections))
	for _, c := range resp.Result.Collections {
		size, err := q.vectorSize(ctx, c.Name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, CollectionInfo{Name: c.Name, VectorSize: size})
	}
	return infos, nil
}

// vectorSize reads the size of the collection's unnamed vector, or zero for
// collections configured with named vectors.
func (q *Qdrant) vectorSize(ctx context.Context, name string) (int, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors json.RawMessage `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodGet, collectionPath(name), nil, &resp); err != nil {
		return 0, err
	}

	var single struct {
		Size int `json:"size"`
	}
	if err := json.Unmarshal(resp.Result.Config.Params.Vectors, &single); err != nil {
		return 0, nil
	}
	return single.Size, nil
}

func (q *Qdrant) CreateCollection(ctx context.Context, name string, vectorSize int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	return q.do(ctx, http.MethodPut, collectionPath(name), body, nil)
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload models.Payload `json:"payload"`
}

func (q *Qdrant) UpsertPoints(ctx context.Context, name string, points []models.Point) error {
	body := struct {
		Points []qdrantPoint `json:"points"`
	}{Points: make([]qdrantPoint, len(points))}
	for i, p := range points {
		body.Points[i] = qdrantPoint{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
	}
	return q.do(ctx, http.MethodPut, collectionPath(name)+"/points?wait=true", body, nil)
}

func (q *Qdrant) DeletePoints(ctx context.Context, name string, docID string) error {
	body := map[string]any{"filter": docFilter(docID)}
	return q.do(ctx, http.MethodPost, collectionPath(name)+"/points/delete?wait=true", body, nil)
}

type qdrantScoredPoint struct {
	Score   float64        `json:"score"`
	Payload models.Payload `json:"payload"`
}

func (q *Qdrant) QueryPoints(ctx context.Context, name string, req SearchRequest) ([]models.Hit, error) {
	body := map[string]any{
		"query":        req.Vector,
		"limit":        req.Limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if req.DocID != "" {
		body["filter"] = docFilter(req.DocID)
	}

	var resp struct {
		Result struct {
			Points []qdrantScoredPoint `json:"points"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, collectionPath(name)+"/points/query", body, &resp); err != nil {
		return nil, err
	}
	return toHits(resp.Result.Points), nil
}

func (q *Qdrant) SearchPoints(ctx context.Context, name string, req SearchRequest) ([]models.Hit, error) {
	body := map[string]any{
		"vector":       req.Vector,
		"limit":        req.Limit,
		"with_payload": true,
	}
	if req.DocID != "" {
		body["filter"] = docFilter(req.DocID)
	}

	var resp struct {
		Result []qdrantScoredPoint `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, collectionPath(name)+"/points/search", body, &resp); err != nil {
		return nil, err
	}
	return toHits(resp.Result), nil
}

func toHits(points []qdrantScoredPoint) []models.Hit {
	hits := make([]models.Hit, len(points))
	for i, p := range points {
		hits[i] = models.Hit{Score: p.Score, Payload: p.Payload}
	}
	return hits
}

func docFilter(docID string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "doc_id", "match": map[string]any{"value": docID}},
		},
	}
}

func collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

func (q *Qdrant) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.url+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: qdrant %s %s", types.ErrCollectionNotFound, method, path)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode qdrant response: %w", err)
		}
	}
	return nil
}

// versionAtLeast compares dotted versions such as "1.12.4" or "v1.9.0-rc1".
// Unparseable versions count as new.
func versionAtLeast(version string, min [3]int) bool {
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	if version == "" {
		return true
	}
	if i := strings.IndexAny(version, "-+"); i >= 0 {
		version = version[:i]
	}

	parts := strings.Split(version, ".")
	for i := 0; i < 3; i++ {
		n := 0
		if i < len(parts) {
			v, err := strconv.Atoi(parts[i])
			if err != nil {
				return true
			}
			n = v
		}
		if n != min[i] {
			return n > min[i]
		}
	}
	return true
}
