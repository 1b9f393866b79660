package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	embeddingProviders = map[string]bool{"openai": true, "ollama": true, "gemini": true}
	llmProviders       = map[string]bool{"openai": true, "ollama": true}
	storeBackends      = map[string]bool{"qdrant": true, "pgvector": true, "chromem": true, "memory": true}
)

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Embedding
	if !embeddingProviders[c.Embedding.Provider] {
		errors = append(errors, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unknown provider %q", c.Embedding.Provider),
		})
	}
	if (c.Embedding.Provider == "openai" || c.Embedding.Provider == "gemini") && c.Embedding.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "embedding.api_key",
			Message: "api key is required for " + c.Embedding.Provider,
		})
	}
	if c.Embedding.BatchSize < 0 {
		errors = append(errors, ValidationError{
			Field:   "embedding.batch_size",
			Message: "batch_size must not be negative",
		})
	}

	// LLM
	if !llmProviders[c.LLM.Provider] {
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider %q", c.LLM.Provider),
		})
	}
	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 32768 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 32768",
		})
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	// Store
	if !storeBackends[c.Store.Backend] {
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Message: fmt.Sprintf("unknown backend %q", c.Store.Backend),
		})
	}
	if c.Store.Backend == "pgvector" && c.Store.DatabaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "store.database_url",
			Message: "database_url is required for pgvector",
		})
	}
	if c.Store.Backend == "qdrant" {
		if u, err := url.Parse(c.Store.QdrantURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "store.qdrant_url",
				Message: "invalid qdrant URL",
			})
		}
	}
	if c.Store.Collection == "" {
		errors = append(errors, ValidationError{
			Field:   "store.collection",
			Message: "collection is required",
		})
	}

	// Chunking
	if c.Chunking.ChunkTokens < 1 {
		errors = append(errors, ValidationError{
			Field:   "chunking.chunk_tokens",
			Message: "chunk_tokens must be positive",
		})
	}
	if c.Chunking.OverlapTokens < 0 || c.Chunking.OverlapTokens >= c.Chunking.ChunkTokens {
		errors = append(errors, ValidationError{
			Field:   "chunking.overlap_tokens",
			Message: "overlap_tokens must be non-negative and less than chunk_tokens",
		})
	}

	// Retrieval
	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > c.Retrieval.MaxTopK {
		errors = append(errors, ValidationError{
			Field:   "retrieval.top_k",
			Message: fmt.Sprintf("top_k must be between 1 and %d", c.Retrieval.MaxTopK),
		})
	}

	// Scraper
	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	return errors
}
