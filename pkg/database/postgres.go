package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// maxIndexedDimension is the largest vector size pgvector can build an HNSW
// index for. Larger embeddings fall back to exact search.
const maxIndexedDimension = 2000

// PostgresDB holds the connection pool shared by jobs, logs and findings.
type PostgresDB struct {
	Pool *pgxpool.Pool
}

// NewPostgresDB connects to databaseURL and verifies the connection.
// maxConns <= 0 keeps the pgxpool default.
func NewPostgresDB(ctx context.Context, databaseURL string, maxConns int) (*PostgresDB, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = int32(maxConns)
		poolConfig.MinConns = min(2, int32(maxConns))
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresDB{Pool: pool}, nil
}

func (db *PostgresDB) Close() {
	db.Pool.Close()
}

// findingsTableStatements returns the DDL for a pgvector findings table: the
// table, a containment index on metadata for job-scoped filters, and an HNSW
// cosine index when the dimension allows one.
func findingsTableStatements(tableName string, dimension int) []string {
	table := pgx.Identifier{tableName}.Sanitize()
	stmts := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			embedding vector(%d),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`, table, dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING gin (metadata jsonb_path_ops)`,
			pgx.Identifier{tableName + "_metadata_idx"}.Sanitize(), table),
	}
	if dimension <= maxIndexedDimension {
		stmts = append(stmts, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
			pgx.Identifier{tableName + "_embedding_idx"}.Sanitize(), table))
	}
	return stmts
}
