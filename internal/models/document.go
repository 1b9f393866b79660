package models

import "fmt"

// Chunk is a contiguous, token-bounded slice of one page's extracted text.
// StartToken and EndToken are offsets into the page's token stream.
type Chunk struct {
	ID         string
	DocID      string
	Page       int
	Text       string
	StartToken int
	EndToken   int
}

// ChunkID formats the stable identifier of the index-th chunk of a page.
func ChunkID(docID string, page, index int) string {
	return fmt.Sprintf("%s:p%d:c%d", docID, page, index)
}

// Payload is the durable per-point record kept by the vector store.
// It is the only copy of the chunk text.
type Payload struct {
	StableID   string `json:"stable_id"`
	DocID      string `json:"doc_id"`
	Page       int    `json:"page"`
	Text       string `json:"text"`
	StartToken int    `json:"start_token"`
	EndToken   int    `json:"end_token"`
}

// Payload converts the chunk into its stored representation.
func (c Chunk) Payload() Payload {
	return Payload{
		StableID:   c.ID,
		DocID:      c.DocID,
		Page:       c.Page,
		Text:       c.Text,
		StartToken: c.StartToken,
		EndToken:   c.EndToken,
	}
}

type ProcessedDocument struct {
	DocID  string
	Pages  int
	Chunks []Chunk
}

// Texts returns the chunk texts in order, ready for a single embedding batch.
func (d ProcessedDocument) Texts() []string {
	texts := make([]string, len(d.Chunks))
	for i, c := range d.Chunks {
		texts[i] = c.Text
	}
	return texts
}
