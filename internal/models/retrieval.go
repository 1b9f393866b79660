package models

// Point is a vector store record before it is written.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Hit is one scored search result.
type Hit struct {
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}

// Citation points at the chunk that grounded part of an answer.
// Index is the 1-based rank shown in the context block.
type Citation struct {
	Index    int     `json:"i"`
	DocID    string  `json:"doc_id"`
	Page     int     `json:"page"`
	StableID string  `json:"stable_id"`
	Score    float64 `json:"score"`
}

// Retrieval is the per-query result handed to the answer generator.
type Retrieval struct {
	Citations []Citation
	Context   string
}

// Ingestion outcomes.
const (
	StatusOK              = "ok"
	StatusNoTextExtracted = "no_text_extracted"
)

type IngestResult struct {
	DocID  string `json:"doc_id"`
	Chunks int    `json:"chunks"`
	Pages  int    `json:"pages"`
	Status string `json:"status"`
}
