package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/docrag/internal/models"
	"github.com/xhad/docrag/internal/types"
)

// Indexes on vector columns are limited to this many dimensions.
const maxIndexedDims = 2000

const undefinedTable = "42P01"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

type PGVectorConfig struct {
	ConnString string
}

// PGVector keeps each collection in its own table with an embedding column.
type PGVector struct {
	pool *pgxpool.Pool
}

func NewPGVector(ctx context.Context, config PGVectorConfig) (*PGVector, error) {
	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create vector extension: %w", err)
	}

	return &PGVector{pool: pool}, nil
}

func (vs *PGVector) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func table(name string) (string, error) {
	if !tableName.MatchString(name) {
		return "", fmt.Errorf("%w: collection %q is not a valid table name", types.ErrInvalidConfig, name)
	}
	return pgx.Identifier{name}.Sanitize(), nil
}

// ListCollections reports every table in the current schema with a vector
// column named embedding. atttypmod holds the declared dimension.
func (vs *PGVector) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	rows, err := vs.pool.Query(ctx, `
		SELECT c.relname, a.atttypmod
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_type t ON t.oid = a.atttypid
		WHERE a.attname = 'embedding'
			AND t.typname = 'vector'
			AND c.relkind = 'r'
			AND n.nspname = current_schema()
			AND NOT a.attisdropped
		ORDER BY c.relname`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var infos []CollectionInfo
	for rows.Next() {
		var (
			info   CollectionInfo
			typmod int32
		)
		if err := rows.Scan(&info.Name, &typmod); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if typmod > 0 {
			info.VectorSize = int(typmod)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (vs *PGVector) CreateCollection(ctx context.Context, name string, vectorSize int) error {
	tbl, err := table(name)
	if err != nil {
		return err
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			stable_id TEXT NOT NULL,
			doc_id TEXT NOT NULL,
			page INTEGER NOT NULL,
			text TEXT NOT NULL,
			start_token INTEGER NOT NULL,
			end_token INTEGER NOT NULL,
			embedding vector(%d) NOT NULL
		)`, tbl, vectorSize)
	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createDocIndex := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (doc_id)`,
		pgx.Identifier{name + "_doc_id_idx"}.Sanitize(), tbl)
	if _, err := vs.pool.Exec(ctx, createDocIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if vectorSize <= maxIndexedDims {
		createVectorIndex := fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s
			ON %s
			USING hnsw (embedding vector_cosine_ops)`,
			pgx.Identifier{name + "_embedding_idx"}.Sanitize(), tbl)
		if _, err := vs.pool.Exec(ctx, createVectorIndex); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

func (vs *PGVector) UpsertPoints(ctx context.Context, name string, points []models.Point) error {
	tbl, err := table(name)
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, stable_id, doc_id, page, text, start_token, end_token, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			stable_id = EXCLUDED.stable_id,
			doc_id = EXCLUDED.doc_id,
			page = EXCLUDED.page,
			text = EXCLUDED.text,
			start_token = EXCLUDED.start_token,
			end_token = EXCLUDED.end_token,
			embedding = EXCLUDED.embedding`, tbl)

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(stmt,
			p.ID,
			p.Payload.StableID,
			p.Payload.DocID,
			p.Payload.Page,
			stripNUL(p.Payload.Text),
			p.Payload.StartToken,
			p.Payload.EndToken,
			pgvector.NewVector(p.Vector),
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range points {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return notFound(fmt.Errorf("failed to insert point: %w", err), name)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to insert points: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (vs *PGVector) DeletePoints(ctx context.Context, name string, docID string) error {
	tbl, err := table(name)
	if err != nil {
		return err
	}

	_, err = vs.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE doc_id = $1", tbl), docID)
	if err != nil {
		return notFound(fmt.Errorf("failed to delete points: %w", err), name)
	}
	return nil
}

func (vs *PGVector) QueryPoints(ctx context.Context, name string, req SearchRequest) ([]models.Hit, error) {
	tbl, err := table(name)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT stable_id, doc_id, page, text, start_token, end_token,
			1 - (embedding <=> $1) AS score
		FROM %s
		WHERE ($3::text = '' OR doc_id = $3)
		ORDER BY embedding <=> $1
		LIMIT $2`, tbl)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(req.Vector), req.Limit, req.DocID)
	if err != nil {
		return nil, notFound(fmt.Errorf("failed to query points: %w", err), name)
	}
	defer rows.Close()

	var hits []models.Hit
	for rows.Next() {
		var h models.Hit
		err := rows.Scan(
			&h.Payload.StableID,
			&h.Payload.DocID,
			&h.Payload.Page,
			&h.Payload.Text,
			&h.Payload.StartToken,
			&h.Payload.EndToken,
			&h.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, notFound(fmt.Errorf("failed to query points: %w", err), name)
	}
	return hits, nil
}

// notFound rewraps a missing-table error as types.ErrCollectionNotFound.
func notFound(err error, name string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return fmt.Errorf("%w: %s", types.ErrCollectionNotFound, name)
	}
	return err
}

// Postgres text columns reject NUL bytes, which PDF text can contain.
func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
