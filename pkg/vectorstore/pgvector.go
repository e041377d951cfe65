package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Filter selects documents by metadata. Plain keys match with JSONB
// containment; "$and" and "$or" take a list of filters and "$not" takes one.
type Filter = map[string]any

// Document is a stored finding with its embedding.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"embedding,omitempty"`
}

// SimilaritySearchResult is a document with its cosine similarity to the query.
type SimilaritySearchResult struct {
	Document Document
	Score    float64
}

// PGVectorStore keeps findings in a pgvector table created by
// database.InitFindings.
type PGVectorStore struct {
	pool      *pgxpool.Pool
	tableName string
}

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-zA-Z0-9_]{0,62}$`)

// isValidTableName accepts lowercase-leading identifiers of at most 63
// characters, the PostgreSQL limit.
func isValidTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}

// NewPGVectorStore creates a store over tableName.
func NewPGVectorStore(pool *pgxpool.Pool, tableName string) (*PGVectorStore, error) {
	if !isValidTableName(tableName) {
		return nil, fmt.Errorf("invalid table name %q: use letters, digits and underscores, start with a lowercase letter or underscore, at most 63 characters", tableName)
	}
	return &PGVectorStore{pool: pool, tableName: tableName}, nil
}

func (vs *PGVectorStore) table() string {
	return pgx.Identifier{vs.tableName}.Sanitize()
}

// AddDocuments inserts docs in a single batch.
func (vs *PGVectorStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s (content, metadata, embedding) VALUES ($1, $2, $3)`, vs.table())

	batch := &pgx.Batch{}
	for _, doc := range docs {
		metadataJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		batch.Queue(query, doc.Content, metadataJSON, pgvector.NewVector(doc.Embedding))
	}

	br := vs.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range docs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert document %d: %w", i, err)
		}
	}
	return nil
}

// SimilaritySearch returns the topK documents matching filter that are
// closest to queryEmbedding, best first.
func (vs *PGVectorStore) SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, filter Filter) ([]SimilaritySearchResult, error) {
	query, args, err := vs.similarityQuery(queryEmbedding, topK, filter)
	if err != nil {
		return nil, err
	}

	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute similarity search: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SimilaritySearchResult, error) {
		var r SimilaritySearchResult
		err := scanDocument(row, &r.Document, &r.Score)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read similarity results: %w", err)
	}
	return results, nil
}

// similarityQuery binds the embedding to $1 and the limit to the last
// placeholder; filter conditions take the ones in between.
func (vs *PGVectorStore) similarityQuery(queryEmbedding []float32, topK int, filter Filter) (string, []any, error) {
	args := []any{pgvector.NewVector(queryEmbedding)}
	where, err := buildMetadataQuery(filter, &args)
	if err != nil {
		return "", nil, fmt.Errorf("failed to build metadata query: %w", err)
	}
	args = append(args, topK)

	query := fmt.Sprintf(`
		SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE %s
		ORDER BY embedding <=> $1
		LIMIT $%d
	`, vs.table(), where, len(args))
	return query, args, nil
}

// GetContentByMetadata returns every document matching filter in insertion order.
func (vs *PGVectorStore) GetContentByMetadata(ctx context.Context, filter Filter) ([]Document, error) {
	var args []any
	where, err := buildMetadataQuery(filter, &args)
	if err != nil {
		return nil, fmt.Errorf("failed to build metadata query: %w", err)
	}
	query := fmt.Sprintf(`SELECT id, content, metadata FROM %s WHERE %s ORDER BY created_at, (metadata->>'chunk')::int`, vs.table(), where)

	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Document, error) {
		var d Document
		err := scanDocument(row, &d)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return docs, nil
}

// DeleteByMetadata removes every document matching filter and reports how
// many were deleted. An empty filter is rejected.
func (vs *PGVectorStore) DeleteByMetadata(ctx context.Context, filter Filter) (int64, error) {
	if len(filter) == 0 {
		return 0, fmt.Errorf("refusing to delete with an empty filter")
	}
	var args []any
	where, err := buildMetadataQuery(filter, &args)
	if err != nil {
		return 0, fmt.Errorf("failed to build metadata query: %w", err)
	}

	tag, err := vs.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s`, vs.table(), where), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanDocument reads id, content and metadata into doc, followed by any
// extra columns.
func scanDocument(row pgx.CollectableRow, doc *Document, extra ...any) error {
	var metadataJSON []byte
	dest := append([]any{&doc.ID, &doc.Content, &metadataJSON}, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	if len(metadataJSON) == 0 {
		return nil
	}
	return json.Unmarshal(metadataJSON, &doc.Metadata)
}

// buildMetadataQuery turns filter into a WHERE clause, appending one
// argument per containment match. Keys are visited in sorted order so the
// same filter always yields the same SQL.
func buildMetadataQuery(filter Filter, args *[]any) (string, error) {
	var conditions []string

	for _, key := range slices.Sorted(maps.Keys(filter)) {
		value := filter[key]
		switch key {
		case "$and", "$or":
			list, ok := value.([]any)
			if !ok {
				return "", fmt.Errorf("value for %s must be a list of conditions", key)
			}
			var parts []string
			for _, item := range list {
				sub, ok := item.(map[string]any)
				if !ok {
					return "", fmt.Errorf("item in %s list must be a JSON object", key)
				}
				clause, err := buildMetadataQuery(sub, args)
				if err != nil {
					return "", err
				}
				parts = append(parts, "("+clause+")")
			}
			if len(parts) == 0 {
				continue
			}
			op := " AND "
			if key == "$or" {
				op = " OR "
			}
			conditions = append(conditions, "("+strings.Join(parts, op)+")")

		case "$not":
			sub, ok := value.(map[string]any)
			if !ok {
				return "", fmt.Errorf("value for $not must be a JSON object")
			}
			clause, err := buildMetadataQuery(sub, args)
			if err != nil {
				return "", err
			}
			conditions = append(conditions, "NOT ("+clause+")")

		default:
			pair, err := json.Marshal(map[string]any{key: value})
			if err != nil {
				return "", fmt.Errorf("failed to marshal metadata pair: %w", err)
			}
			*args = append(*args, pair)
			conditions = append(conditions, fmt.Sprintf("metadata @> $%d", len(*args)))
		}
	}

	if len(conditions) == 0 {
		return "TRUE", nil
	}
	return strings.Join(conditions, " AND "), nil
}
