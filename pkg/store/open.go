package store

import (
	"context"
	"fmt"
	"time"

	"github.com/xhad/docrag/internal/types"
)

type Config struct {
	Backend      string
	DatabaseURL  string
	QdrantURL    string
	QdrantAPIKey string
	ChromemPath  string
	Timeout      time.Duration
}

// Open connects the configured backend and wraps it in an Adapter. The
// returned func releases the backend's resources.
func Open(ctx context.Context, cfg Config) (*Adapter, func(), error) {
	var (
		client Client
		closer = func() {}
	)

	switch cfg.Backend {
	case "qdrant":
		q, err := NewQdrant(ctx, QdrantConfig{URL: cfg.QdrantURL, APIKey: cfg.QdrantAPIKey, Timeout: cfg.Timeout})
		if err != nil {
			return nil, nil, err
		}
		client = q
	case "pgvector":
		pg, err := NewPGVector(ctx, PGVectorConfig{ConnString: cfg.DatabaseURL})
		if err != nil {
			return nil, nil, err
		}
		client, closer = pg, pg.Close
	case "chromem":
		c, err := NewChromem(cfg.ChromemPath)
		if err != nil {
			return nil, nil, err
		}
		client = c
	case "memory":
		client = NewMemory()
	default:
		return nil, nil, fmt.Errorf("%w: unknown store backend %q", types.ErrInvalidConfig, cfg.Backend)
	}

	adapter, err := NewAdapter(client)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return adapter, closer, nil
}
