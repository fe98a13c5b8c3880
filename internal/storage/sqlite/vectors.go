package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/zabob/memgraph/internal/storage"
	"github.com/zabob/memgraph/internal/types"
	"github.com/zabob/memgraph/internal/vector"
)

// The vector store lives in the same durable file as the graph. Rows are
// keyed (entity_id, model_name); an entity may carry embeddings from
// several models at once. Retrieval is a linear cosine scan — fine up to
// roughly 10^4 entities, and the interface matches an ANN backend so the
// scan can be swapped out without touching callers.

// PutEmbedding upserts one embedding row. Dimensions are derived from the
// vector length; a regeneration replaces the row rather than mutating it.
func (s *Store) PutEmbedding(ctx context.Context, row *types.EmbeddingRow) error {
	return putEmbedding(ctx, s.db, row)
}

func putEmbedding(ctx context.Context, q dbtx, row *types.EmbeddingRow) error {
	if len(row.Vector) == 0 {
		return fmt.Errorf("%w: embedding vector must be non-empty", storage.ErrInvalid)
	}
	if row.ModelName == "" {
		return fmt.Errorf("%w: model name must be non-empty", storage.ErrInvalid)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO embeddings (entity_id, model_name, dimensions, embedding, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_id, model_name) DO UPDATE SET
			dimensions = excluded.dimensions,
			embedding = excluded.embedding,
			created_at = excluded.created_at`,
		row.EntityID, row.ModelName, len(row.Vector), vector.Encode(row.Vector), now())
	if err != nil {
		return mapSQLiteErr(fmt.Errorf("put embedding: %w", err))
	}
	return nil
}

// PutEmbeddings upserts a batch in one transaction.
func (s *Store) PutEmbeddings(ctx context.Context, rows []*types.EmbeddingRow) error {
	if len(rows) == 0 {
		return nil
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return mapSQLiteErr(fmt.Errorf("begin batch put: %w", err))
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()
	for _, row := range rows {
		if err := putEmbedding(ctx, conn, row); err != nil {
			return err
		}
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return mapSQLiteErr(fmt.Errorf("commit batch put: %w", err))
	}
	committed = true
	return nil
}

// GetEmbedding returns the row for (entityID, modelName). With modelName
// empty, any one embedding for the entity is returned (ordered by model
// name for determinism), for compatibility with single-model callers.
func (s *Store) GetEmbedding(ctx context.Context, entityID int64, modelName string) (*types.EmbeddingRow, error) {
	query := `
		SELECT entity_id, model_name, dimensions, embedding, created_at
		FROM embeddings WHERE entity_id = ?`
	args := []any{entityID}
	if modelName != "" {
		query += ` AND model_name = ?`
		args = append(args, modelName)
	}
	query += ` ORDER BY model_name LIMIT 1`

	row := &types.EmbeddingRow{}
	var blob []byte
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&row.EntityID, &row.ModelName, &row.Dimensions, &blob, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding: %w", err)
	}
	if row.Vector, err = vector.Decode(blob); err != nil {
		return nil, fmt.Errorf("embedding for entity %d: %w", entityID, err)
	}
	return row, nil
}

// HasEmbedding reports whether (entityID, modelName) exists; with modelName
// empty it checks for any embedding. Used by generate_embeddings to skip
// entities already embedded for the current model.
func (s *Store) HasEmbedding(ctx context.Context, entityID int64, modelName string) (bool, error) {
	query := `SELECT COUNT(*) FROM embeddings WHERE entity_id = ?`
	args := []any{entityID}
	if modelName != "" {
		query += ` AND model_name = ?`
		args = append(args, modelName)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("has embedding: %w", err)
	}
	return n > 0, nil
}

// DeleteEmbeddings removes the (entityID, modelName) row; with modelName
// empty, all of the entity's embeddings.
func (s *Store) DeleteEmbeddings(ctx context.Context, entityID int64, modelName string) error {
	query := `DELETE FROM embeddings WHERE entity_id = ?`
	args := []any{entityID}
	if modelName != "" {
		query += ` AND model_name = ?`
		args = append(args, modelName)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return mapSQLiteErr(fmt.Errorf("delete embeddings: %w", err))
	}
	return nil
}

// SearchSimilar scans embeddings (filtered by model when given), computes
// cosine similarity in process, keeps hits at or above threshold, and
// returns the top k by descending similarity.
func (s *Store) SearchSimilar(ctx context.Context, query []float32, k int, threshold float64, modelName string) ([]*types.SimilarityHit, error) {
	if k <= 0 {
		k = 10
	}
	sqlQuery := `SELECT entity_id, embedding FROM embeddings`
	var args []any
	if modelName != "" {
		sqlQuery += ` WHERE model_name = ?`
		args = append(args, modelName)
	}
	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("scan embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := []*types.SimilarityHit{}
	for rows.Next() {
		var entityID int64
		var blob []byte
		if err := rows.Scan(&entityID, &blob); err != nil {
			return nil, err
		}
		v, err := vector.Decode(blob)
		if err != nil {
			return nil, fmt.Errorf("embedding for entity %d: %w", entityID, err)
		}
		sim := vector.Cosine(query, v)
		if sim >= threshold {
			hits = append(hits, &types.SimilarityHit{EntityID: entityID, Similarity: sim})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].EntityID < hits[j].EntityID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// EntitiesMissingEmbedding returns ids of entities with no embedding row
// for the given model.
func (s *Store) EntitiesMissingEmbedding(ctx context.Context, modelName string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id FROM entities e
		WHERE NOT EXISTS (
			SELECT 1 FROM embeddings m WHERE m.entity_id = e.id AND m.model_name = ?
		)
		ORDER BY e.id`, modelName)
	if err != nil {
		return nil, fmt.Errorf("entities missing embedding: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
