package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	BatchSize int    `yaml:"batch_size"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type StoreConfig struct {
	Backend      string        `yaml:"backend"`
	Collection   string        `yaml:"collection"`
	DatabaseURL  string        `yaml:"database_url"`
	QdrantURL    string        `yaml:"qdrant_url"`
	QdrantAPIKey string        `yaml:"qdrant_api_key"`
	ChromemPath  string        `yaml:"chromem_path"`
	Timeout      time.Duration `yaml:"timeout"`
}

type ChunkingConfig struct {
	ChunkTokens   int    `yaml:"chunk_tokens"`
	OverlapTokens int    `yaml:"overlap_tokens"`
	Encoding      string `yaml:"encoding"`
}

type RetrievalConfig struct {
	TopK    int `yaml:"top_k"`
	MaxTopK int `yaml:"max_top_k"`
}

type ServerConfig struct {
	Addr          string `yaml:"addr"`
	AllowedOrigin string `yaml:"allowed_origin"`
	MaxUploadMB   int    `yaml:"max_upload_mb"`
}

type ScraperConfig struct {
	MaxDepth  int           `yaml:"max_depth"`
	RateLimit float64       `yaml:"rate_limit"`
	Timeout   time.Duration `yaml:"timeout"`
}

type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Store     StoreConfig     `yaml:"store"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Server    ServerConfig    `yaml:"server"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Verbose   bool            `yaml:"verbose"`
}

// LoadConfig reads path (or the first default location that exists), then
// .env, then the environment, then fills defaults.
func LoadConfig(path string) (*Config, error) {
	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	if path == "" {
		locations := []string{
			"docrag.yaml",
			"config.yaml",
			filepath.Join(os.Getenv("HOME"), ".config/docrag/config.yaml"),
			"/etc/docrag/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	var set explicit
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config, set)

	return &config, nil
}

// explicit records the keys whose zero value is a valid setting, so an
// explicit 0 in the file is kept instead of being defaulted.
type explicit struct {
	LLM struct {
		Temperature *float64 `yaml:"temperature"`
	} `yaml:"llm"`
	Chunking struct {
		ChunkTokens   *int `yaml:"chunk_tokens"`
		OverlapTokens *int `yaml:"overlap_tokens"`
	} `yaml:"chunking"`
	Scraper struct {
		MaxDepth *int `yaml:"max_depth"`
	} `yaml:"scraper"`
}

func getDefaultConfig() *Config {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config, explicit{})
	return config
}

func applyDefaults(config *Config, set explicit) {
	if config.Embedding.Provider == "" {
		config.Embedding.Provider = "openai"
	}
	if config.Embedding.Model == "" {
		switch config.Embedding.Provider {
		case "ollama":
			config.Embedding.Model = "nomic-embed-text:latest"
		case "gemini":
			config.Embedding.Model = "text-embedding-004"
		default:
			config.Embedding.Model = "text-embedding-3-small"
		}
	}
	if config.Embedding.Provider == "ollama" && config.Embedding.BaseURL == "" {
		config.Embedding.BaseURL = "http://localhost:11434"
	}

	if config.LLM.Provider == "" {
		config.LLM.Provider = "openai"
	}
	if config.LLM.Model == "" {
		if config.LLM.Provider == "ollama" {
			config.LLM.Model = "mistral"
		} else {
			config.LLM.Model = "gpt-4.1-mini"
		}
	}
	if config.LLM.Provider == "ollama" && config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if set.LLM.Temperature == nil && config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.2
	}

	if config.Store.Backend == "" {
		config.Store.Backend = "qdrant"
	}
	if config.Store.Collection == "" {
		config.Store.Collection = "docs"
	}
	if config.Store.QdrantURL == "" {
		config.Store.QdrantURL = "http://localhost:6333"
	}
	if config.Store.ChromemPath == "" {
		config.Store.ChromemPath = "./docrag.db"
	}
	if config.Store.Timeout == 0 {
		config.Store.Timeout = 30 * time.Second
	}

	// The default overlap only applies alongside the default chunk size; a
	// custom chunk size without an overlap gets none.
	if set.Chunking.ChunkTokens == nil && config.Chunking.ChunkTokens == 0 {
		config.Chunking.ChunkTokens = 700
		if set.Chunking.OverlapTokens == nil && config.Chunking.OverlapTokens == 0 {
			config.Chunking.OverlapTokens = 120
		}
	}
	if config.Chunking.Encoding == "" {
		config.Chunking.Encoding = "cl100k_base"
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 6
	}
	if config.Retrieval.MaxTopK == 0 {
		config.Retrieval.MaxTopK = 20
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.MaxUploadMB == 0 {
		config.Server.MaxUploadMB = 32
	}

	if set.Scraper.MaxDepth == nil && config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 1
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.Timeout == 0 {
		config.Scraper.Timeout = 60 * time.Second
	}
}

func mergeWithEnv(config *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if config.Embedding.APIKey == "" && config.Embedding.Provider != "gemini" {
			config.Embedding.APIKey = key
		}
		if config.LLM.APIKey == "" {
			config.LLM.APIKey = key
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && config.Embedding.Provider == "gemini" {
		config.Embedding.APIKey = key
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		if config.Embedding.Provider == "ollama" {
			config.Embedding.BaseURL = baseURL
		}
		if config.LLM.Provider == "ollama" {
			config.LLM.BaseURL = baseURL
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Store.DatabaseURL = dbURL
	}
	if qdrantURL := os.Getenv("QDRANT_URL"); qdrantURL != "" {
		config.Store.QdrantURL = qdrantURL
	}
	if key := os.Getenv("QDRANT_API_KEY"); key != "" {
		config.Store.QdrantAPIKey = key
	}
	if collection := os.Getenv("DOCRAG_COLLECTION"); collection != "" {
		config.Store.Collection = collection
	}
}
