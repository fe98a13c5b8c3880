package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zabob/memgraph/internal/storage"
)

// AddObservation appends an observation to the named entity. Observations
// are append-only at this layer; removal happens only via entity deletion.
func (s *Store) AddObservation(ctx context.Context, entityName, content string) (int64, error) {
	return addObservation(ctx, s.db, entityName, content)
}

func addObservation(ctx context.Context, q dbtx, entityName, content string) (int64, error) {
	if content == "" {
		return 0, fmt.Errorf("%w: observation content must be non-empty", storage.ErrInvalid)
	}
	var entityID int64
	err := q.QueryRowContext(ctx, `SELECT id FROM entities WHERE name = ?`, entityName).Scan(&entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("entity %q: %w", entityName, storage.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("look up entity %q: %w", entityName, err)
	}

	ts := now()
	res, err := q.ExecContext(ctx, `
		INSERT INTO observations (entity_id, content, created_at)
		VALUES (?, ?, ?)`, entityID, content, ts)
	if err != nil {
		return 0, mapSQLiteErr(fmt.Errorf("add observation: %w", err))
	}
	if _, err := q.ExecContext(ctx, `UPDATE entities SET updated_at = ? WHERE id = ?`, ts, entityID); err != nil {
		return 0, fmt.Errorf("touch entity: %w", err)
	}
	return res.LastInsertId()
}
