// Package postgres provides a PostgreSQL + pgvector implementation of the
// memory store.
//
// All collections share a single memories table keyed by collection name,
// with an HNSW cosine index over the embedding column. The pgvector extension
// must be available in the target database; [Migrate] installs it
// automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, embedder)
//	if err != nil { … }
//	id, err := store.Add(ctx, "dad", "Le code wifi est 1234", "conversation", nil)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlMemories returns the memories DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlMemories(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memories (
    id          TEXT         PRIMARY KEY,
    collection  TEXT         NOT NULL,
    content     TEXT         NOT NULL,
    embedding   vector(%d),
    user_id     TEXT         NOT NULL,
    source      TEXT         NOT NULL DEFAULT '',
    timestamp   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    metadata    JSONB        NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_memories_collection
    ON memories (collection);

CREATE INDEX IF NOT EXISTS idx_memories_embedding
    ON memories USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures the memories table and pgvector extension exist.
// It is idempotent and safe to call on every service start.
//
// embeddingDimensions must match the embedding model configured for the
// deployment (384 for all-minilm). Changing this value after the first
// migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlMemories(embeddingDimensions)); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
