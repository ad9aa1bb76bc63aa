package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/foyer-ai/foyer/pkg/memory"
	"github.com/foyer-ai/foyer/pkg/provider/embeddings"
)

// Compile-time interface check.
var _ memory.Store = (*Store)(nil)

// Store is the pgvector-backed memory store. It holds a single
// [pgxpool.Pool] and the embeddings provider used for both writes and
// queries. All operations are safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// NewStore creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and runs
// [Migrate] with the embedder's dimension so the schema always matches the
// model.
func NewStore(ctx context.Context, dsn string, embedder embeddings.Provider) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("memory store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("memory store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("memory store: ping: %w", err)
	}

	dims := embedder.Dimensions()
	if dims <= 0 {
		pool.Close()
		return nil, fmt.Errorf("memory store: embedder reports invalid dimension %d", dims)
	}
	if err := Migrate(ctx, pool, dims); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool, embedder: embedder}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Add implements memory.Store.
func (s *Store) Add(ctx context.Context, userID, content, source string, metadata map[string]any) (string, error) {
	if err := memory.ValidateAddUser(userID); err != nil {
		return "", err
	}

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("memory store: embed content: %w", err)
	}

	id := uuid.NewString()
	ts := time.Now().UTC()
	if metadata == nil {
		metadata = map[string]any{}
	}

	const q = `
		INSERT INTO memories (id, collection, content, embedding, user_id, source, timestamp, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = s.pool.Exec(ctx, q,
		id,
		memory.CollectionName(userID),
		content,
		pgvector.NewVector(vec),
		userID,
		source,
		ts,
		metadata,
	)
	if err != nil {
		return "", fmt.Errorf("memory store: add: %w", err)
	}
	return id, nil
}

// Search implements memory.Store. The user's own collection and the shared
// collection are each queried for up to topK neighbours; the merged list is
// sorted by score descending and capped at topK.
func (s *Store) Search(ctx context.Context, userID, query string, topK int) ([]memory.SearchResult, error) {
	if err := memory.ValidateSearchUser(userID); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []memory.SearchResult{}, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory store: embed query: %w", err)
	}
	queryVec := pgvector.NewVector(vec)

	own, err := s.searchCollection(ctx, memory.CollectionName(userID), queryVec, topK)
	if err != nil {
		return nil, err
	}
	shared, err := s.searchCollection(ctx, memory.CollectionName(memory.SharedUser), queryVec, topK)
	if err != nil {
		return nil, err
	}

	return memory.MergeTopK(topK, own, shared), nil
}

// searchCollection runs a nearest-neighbour query against one collection.
func (s *Store) searchCollection(ctx context.Context, collection string, queryVec pgvector.Vector, topK int) ([]memory.SearchResult, error) {
	const q = `
		SELECT id, content, user_id, source, timestamp, metadata,
		       embedding <=> $1 AS distance
		FROM   memories
		WHERE  collection = $2
		ORDER  BY distance
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, queryVec, collection, topK)
	if err != nil {
		return nil, fmt.Errorf("memory store: search %s: %w", collection, err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.SearchResult, error) {
		var (
			r        memory.SearchResult
			distance float64
		)
		if err := row.Scan(
			&r.ID,
			&r.Content,
			&r.UserID,
			&r.Source,
			&r.Timestamp,
			&r.Metadata,
			&distance,
		); err != nil {
			return memory.SearchResult{}, err
		}
		r.Score = memory.ScoreFromCosineDistance(distance)
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("memory store: scan rows: %w", err)
	}
	if results == nil {
		results = []memory.SearchResult{}
	}
	return results, nil
}

// Delete implements memory.Store. The user's own collection is checked first,
// then the shared collection.
func (s *Store) Delete(ctx context.Context, userID, memoryID string) (bool, error) {
	if err := memory.ValidateSearchUser(userID); err != nil {
		return false, err
	}

	for _, collection := range []string{
		memory.CollectionName(userID),
		memory.CollectionName(memory.SharedUser),
	} {
		tag, err := s.pool.Exec(ctx,
			`DELETE FROM memories WHERE id = $1 AND collection = $2`,
			memoryID, collection,
		)
		if err != nil {
			return false, fmt.Errorf("memory store: delete from %s: %w", collection, err)
		}
		if tag.RowsAffected() > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Healthy implements memory.Store via a pool ping.
func (s *Store) Healthy(ctx context.Context) bool {
	return s.pool.Ping(ctx) == nil
}
